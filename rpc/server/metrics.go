package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"google.golang.org/grpc/codes"
)

// serverMetrics records per message type request counts and durations
type serverMetrics struct {
	set *metrics.Set
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{set: metrics.NewSet()}
}

// observe records one handled request
func (m *serverMetrics) observe(msgType common.MessageType, resp *common.Message, start time.Time) {
	code := codes.Code(resp.Code)
	m.set.GetOrCreateCounter(fmt.Sprintf(`kvproxy_requests_total{type=%q,code=%q}`, msgType, code)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`kvproxy_request_duration_seconds{type=%q}`, msgType)).UpdateDuration(start)
}

// rejected records a request that could not be dispatched to an adapter
func (m *serverMetrics) rejected(reason string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`kvproxy_requests_rejected_total{reason=%q}`, reason)).Inc()
}

// sessionGauge exports the live sessions of a txn shard
func (m *serverMetrics) sessionGauge(shardID uint64, adapter *TxnServerAdapter) {
	m.set.NewGauge(fmt.Sprintf(`kvproxy_sessions{shard="%d"}`, shardID), func() float64 {
		return float64(adapter.Sessions())
	})
}

// handler serves the metrics in the prometheus text format
func (m *serverMetrics) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		m.set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
}
