package txn

import (
	"context"
	"testing"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/kv/kvtest"
	"github.com/ValentinKolb/kvproxy/lib/proxy"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localAPI serves txnAPI from an in-process proxy
type localAPI struct {
	p *proxy.TxnProxy
}

func (a localAPI) Begin(mode kv.Mode) (uint32, error) { return a.p.Begin(context.Background(), mode) }
func (a localAPI) Get(id uint32, key []byte) ([]byte, error) {
	return a.p.Get(context.Background(), id, key)
}
func (a localAPI) Put(id uint32, key, value []byte) error {
	return a.p.Put(context.Background(), id, key, value)
}
func (a localAPI) Delete(id uint32, key []byte) error {
	return a.p.Delete(context.Background(), id, key)
}
func (a localAPI) Commit(id uint32) error   { return a.p.Commit(context.Background(), id) }
func (a localAPI) Rollback(id uint32) error { return a.p.Rollback(context.Background(), id) }

func newLocalRunner(t *testing.T, conf perfConfig) (*perfRunner, *kvtest.Store, *proxy.TxnProxy) {
	t.Helper()
	store := kvtest.NewStore()
	p := proxy.NewTxnProxy(store.Txn(), proxy.TxnOptions{})
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return newPerfRunner(localAPI{p: p}, conf), store, p
}

func TestPerfWorkloads(t *testing.T) {
	conf := perfConfig{Threads: 4, Txns: 40, OpsPerTxn: 3, Keys: 10, ValueSize: 8, Mode: kv.ModeOptimistic}

	for _, workload := range workloads {
		t.Run(workload, func(t *testing.T) {
			runner, store, p := newLocalRunner(t, conf)

			result, err := runner.run(context.Background(), workload)
			require.NoError(t, err)
			assert.Equal(t, workload, result.Name)

			txns := metrics.GetOrRegisterTimer("txn", result.Registry)
			assert.Equal(t, int64(conf.Txns), txns.Count())
			assert.Equal(t, []string{"OK=40"}, result.outcomes())
			assert.Contains(t, result.timers(), "begin")
			assert.Contains(t, result.timers(), "commit")

			// no sessions leak and the keys are removed again
			assert.Equal(t, 0, p.Len())
			for _, key := range runner.keys(workload) {
				_, found := store.Value(key)
				assert.False(t, found)
			}
		})
	}
}

func TestPerfCountsFailedTransactions(t *testing.T) {
	conf := perfConfig{Threads: 1, Txns: 5, OpsPerTxn: 1, Keys: 2, Mode: kv.ModeOptimistic}
	runner, store, p := newLocalRunner(t, conf)

	// the seeding commit passes, then two transactions fail on commit
	store.FailWith(kvtest.OpCommit, nil)
	store.Fail(kvtest.OpCommit, kv.KindConflict)
	store.Fail(kvtest.OpCommit, kv.KindIO)

	result, err := runner.run(context.Background(), workloadWrite)
	require.NoError(t, err)
	assert.Equal(t, int64(5), metrics.GetOrRegisterTimer("txn", result.Registry).Count())
	assert.Equal(t, []string{"Aborted=1", "OK=3", "Unknown=1"}, result.outcomes())
	assert.Equal(t, 0, p.Len())
}

func TestPerfSkips(t *testing.T) {
	conf := perfConfig{Skip: []string{"read", " mixed"}}
	assert.True(t, conf.skips(workloadRead))
	assert.True(t, conf.skips(workloadMixed))
	assert.False(t, conf.skips(workloadWrite))
}
