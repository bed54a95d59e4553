package server

import (
	"net/http/httptest"
	"testing"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/kv/kvtest"
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/serializer"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

const (
	rawShard = 100
	txnShard = 200
)

// captureTransport records the registered handler instead of listening
type captureTransport struct {
	handler transport.ServerHandleFunc
	closed  bool
}

func (t *captureTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *captureTransport) Listen(_ common.ServerConfig) error { return nil }

func (t *captureTransport) Close() error {
	t.closed = true
	return nil
}

type testServer struct {
	*RPCServer
	store      *kvtest.Store
	transport  *captureTransport
	serializer serializer.IRPCSerializer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := kvtest.NewStore()
	tr := &captureTransport{}
	ser := serializer.NewJSONSerializer()

	s := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: rawShard, Type: common.ShardTypeRaw},
			{ShardID: txnShard, Type: common.ShardTypeTxn},
		},
		TimeoutSecond: 5,
	}, tr, ser, &Backends{Raw: store.Raw(), Txn: store.Txn()})

	require.NoError(t, s.init())
	require.NotNil(t, tr.handler)
	t.Cleanup(func() { _ = s.Close() })

	return &testServer{RPCServer: s, store: store, transport: tr, serializer: ser}
}

// call sends req to shard through the registered handler
func (ts *testServer) call(t *testing.T, shard uint64, req *common.Message) *common.Message {
	t.Helper()
	b, err := ts.serializer.Serialize(*req)
	require.NoError(t, err)
	return ts.callRaw(t, shard, b)
}

func (ts *testServer) callRaw(t *testing.T, shard uint64, b []byte) *common.Message {
	t.Helper()
	out := ts.transport.handler(shard, b)
	resp := &common.Message{}
	require.NoError(t, ts.serializer.Deserialize(out, resp))
	return resp
}

func code(resp *common.Message) codes.Code {
	return codes.Code(resp.Code)
}

func TestRawShard(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, rawShard, common.NewRawGetRequest([]byte("missing")))
	assert.Equal(t, common.MsgTRawGet, resp.MsgType)
	assert.Equal(t, codes.NotFound, code(resp))
	assert.Equal(t, "key is not found", resp.Err)

	resp = ts.call(t, rawShard, common.NewRawPutRequest([]byte("k"), []byte{0x00, 0xff}))
	assert.Equal(t, codes.OK, code(resp))
	assert.NoError(t, resp.Status())

	resp = ts.call(t, rawShard, common.NewRawGetRequest([]byte("k")))
	assert.Equal(t, codes.OK, code(resp))
	assert.Equal(t, []byte{0x00, 0xff}, resp.Value)

	resp = ts.call(t, rawShard, common.NewRawDeleteRequest([]byte("k")))
	assert.Equal(t, codes.OK, code(resp))
	_, found := ts.store.Value([]byte("k"))
	assert.False(t, found)

	resp = ts.call(t, rawShard, common.NewRawPutRequest(nil, []byte("v")))
	assert.Equal(t, codes.Aborted, code(resp))
}

func TestRawShardBackendFailure(t *testing.T) {
	ts := newTestServer(t)

	ts.store.Fail(kvtest.OpRawPut, kv.KindUndetermined)
	resp := ts.call(t, rawShard, common.NewRawPutRequest([]byte("k"), []byte("v")))
	assert.Equal(t, codes.Unknown, code(resp))

	ts.store.Fail(kvtest.OpRawPut, kv.KindConflict)
	resp = ts.call(t, rawShard, common.NewRawPutRequest([]byte("k"), []byte("v")))
	assert.Equal(t, codes.Aborted, code(resp))
}

func TestTxnShardScenario(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, txnShard, common.NewTxnBeginRequest(kv.ModeOptimistic))
	require.Equal(t, codes.OK, code(resp))
	id := resp.TxnID
	assert.Equal(t, uint32(1), id)

	resp = ts.call(t, txnShard, common.NewTxnPutRequest(id, []byte("a"), []byte("b")))
	assert.Equal(t, codes.OK, code(resp))

	resp = ts.call(t, txnShard, common.NewTxnGetRequest(id, []byte("a")))
	assert.Equal(t, codes.OK, code(resp))
	assert.Equal(t, []byte("b"), resp.Value)

	resp = ts.call(t, txnShard, common.NewTxnCommitRequest(id))
	assert.Equal(t, codes.OK, code(resp))

	value, found := ts.store.Value([]byte("a"))
	assert.True(t, found)
	assert.Equal(t, []byte("b"), value)

	resp = ts.call(t, txnShard, common.NewTxnGetRequest(id, []byte("a")))
	assert.Equal(t, codes.FailedPrecondition, code(resp))

	resp = ts.call(t, txnShard, common.NewTxnRollbackRequest(id))
	assert.Equal(t, codes.FailedPrecondition, code(resp))
}

func TestTxnShardInvalidMode(t *testing.T) {
	ts := newTestServer(t)

	req := common.NewTxnBeginRequest(kv.ModeOptimistic)
	req.Mode = 42
	resp := ts.call(t, txnShard, req)
	assert.Equal(t, codes.InvalidArgument, code(resp))
	assert.Equal(t, uint32(0), resp.TxnID)
}

func TestRejectedRequests(t *testing.T) {
	ts := newTestServer(t)
	valid, err := ts.serializer.Serialize(*common.NewRawGetRequest([]byte("k")))
	require.NoError(t, err)
	txnReq, err := ts.serializer.Serialize(*common.NewTxnBeginRequest(kv.ModeOptimistic))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		shard uint64
		req   []byte
	}{
		{"unknown shard", 999, valid},
		{"undecodable request", rawShard, []byte("not json")},
		{"txn message on raw shard", rawShard, txnReq},
		{"raw message on txn shard", txnShard, valid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.callRaw(t, tc.shard, tc.req)
			assert.Equal(t, common.MsgTError, resp.MsgType)
			assert.Equal(t, codes.InvalidArgument, code(resp))
			assert.NotEmpty(t, resp.Err)
		})
	}
	assert.Equal(t, int64(0), ts.store.Begins())
}

func TestCloseRollsBackSessions(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := ts.call(t, txnShard, common.NewTxnBeginRequest(kv.ModePessimistic))
		require.Equal(t, codes.OK, code(resp))
	}

	require.NoError(t, ts.Close())
	assert.True(t, ts.transport.closed)
	assert.Equal(t, int64(3), ts.store.Rollbacks())

	// closing twice is harmless
	require.NoError(t, ts.Close())
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)

	ts.call(t, rawShard, common.NewRawGetRequest([]byte("missing")))
	ts.call(t, txnShard, common.NewTxnBeginRequest(kv.ModeOptimistic))
	ts.callRaw(t, 999, []byte("{}"))

	rec := httptest.NewRecorder()
	ts.metrics.handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `kvproxy_requests_total{type="raw.get",code="NotFound"} 1`)
	assert.Contains(t, body, `kvproxy_requests_total{type="txn.begin",code="OK"} 1`)
	assert.Contains(t, body, `kvproxy_requests_rejected_total{reason="unknown_shard"} 1`)
	assert.Contains(t, body, `kvproxy_sessions{shard="200"} 1`)
	assert.Contains(t, body, `kvproxy_request_duration_seconds_bucket`)
}

func TestOpenBackends(t *testing.T) {
	config := common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: rawShard, Type: common.ShardTypeRaw},
			{ShardID: txnShard, Type: common.ShardTypeTxn},
		},
	}

	b, err := OpenBackends(config)
	require.NoError(t, err)
	assert.NotNil(t, b.Raw)
	assert.NotNil(t, b.Txn)
	require.NoError(t, b.Close())

	config.Backend.RawBackend = "memcached"
	_, err = OpenBackends(config)
	assert.Error(t, err)
}
