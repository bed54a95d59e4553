package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ValentinKolb/kvproxy/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, maxBodySize int64) (*httpServerTransport, *int) {
	t.Helper()
	calls := 0
	tr := NewHttpServerTransport().(*httpServerTransport)
	require.Equal(t, int64(base.MaxFrameSize), tr.maxBodySize)
	tr.maxBodySize = maxBodySize
	tr.RegisterHandler(func(shardId uint64, req []byte) []byte {
		calls++
		return append([]byte("echo:"), req...)
	})
	return tr, &calls
}

func post(tr *httpServerTransport, shardId string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/"+shardId, bytes.NewReader(body))
	req.SetPathValue("shardId", shardId)
	rec := httptest.NewRecorder()
	tr.handleRequest(rec, req)
	return rec
}

func TestHandleRequest(t *testing.T) {
	tr, calls := newTestTransport(t, 16)

	rec := post(tr, "100", []byte("hello"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo:hello", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))

	// exactly at the limit
	rec = post(tr, "100", bytes.Repeat([]byte("x"), 16))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *calls)
}

func TestHandleRequestRejected(t *testing.T) {
	testCases := []struct {
		name    string
		shardId string
		body    []byte
		want    int
	}{
		{"invalid shard", "abc", []byte("x"), http.StatusBadRequest},
		{"body too large", "100", bytes.Repeat([]byte("x"), 17), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr, calls := newTestTransport(t, 16)
			rec := post(tr, tc.shardId, tc.body)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, 0, *calls)
		})
	}
}
