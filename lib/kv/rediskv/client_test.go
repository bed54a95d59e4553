package rediskv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// replyErr is an error reply as returned by go-redis
type replyErr string

func (e replyErr) Error() string { return string(e) }
func (replyErr) RedisError()     {}

func TestTranslate(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want kv.Kind
	}{
		{"closed", redis.ErrClosed, kv.KindIO},
		{"eof", io.EOF, kv.KindTransport},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, kv.KindTransport},
		{"timeout", timeoutErr{}, kv.KindUndetermined},
		{"readonly reply", replyErr("READONLY You can't write against a read only replica."), kv.KindUnsupported},
		{"wrongtype reply", fmt.Errorf("get: %w", replyErr("WRONGTYPE Operation against a key holding the wrong kind of value")), kv.KindUnsupported},
		{"other", errors.New("something else"), kv.KindInternal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, kv.KindOf(translate("put", tc.err)))
		})
	}

	assert.NoError(t, translate("put", nil))
	assert.ErrorIs(t, translate("put", context.DeadlineExceeded), context.DeadlineExceeded)
}

func TestEmptyKeyRejected(t *testing.T) {
	c := New(Options{Address: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = c.Close() })

	err := c.Put(context.Background(), nil, []byte("v"))
	assert.Equal(t, kv.KindInvalidKey, kv.KindOf(err))
	_, _, err = c.Get(context.Background(), []byte{})
	assert.Equal(t, kv.KindInvalidKey, kv.KindOf(err))
}

func TestUnreachableServer(t *testing.T) {
	c := New(Options{Address: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := c.Get(ctx, []byte("k"))
	require.Error(t, err)
	assert.Equal(t, kv.KindTransport, kv.KindOf(err))
}
