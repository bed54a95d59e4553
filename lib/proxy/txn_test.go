package proxy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func newTestProxy(t *testing.T, opts TxnOptions) (*TxnProxy, *kvtest.Store) {
	t.Helper()
	store := kvtest.NewStore()
	p := NewTxnProxy(store.Txn(), opts)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, store
}

func TestTxnScenario(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	require.NoError(t, p.Put(ctx, id, []byte("a"), []byte("b")))

	value, err := p.Get(ctx, id, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), value)

	require.NoError(t, p.Commit(ctx, id))
	committed, ok := store.Value([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), committed)

	_, err = p.Get(ctx, id, []byte("a"))
	assert.True(t, classify.IsProtocolViolation(err))
	assert.Equal(t, 0, p.Len())
}

func TestTxnTwoConcurrentBegins(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProxy(t, TxnOptions{})

	ids := make([]uint32, 2)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.Begin(ctx, kv.ModePessimistic)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []uint32{1, 2}, ids)
}

func TestTxnConcurrentBeginsUnique(t *testing.T) {
	const workers = 64
	const perWorker = 50

	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	var mu sync.Mutex
	seen := make(map[uint32]struct{})
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := p.Begin(ctx, kv.ModeOptimistic)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				_, dup := seen[id]
				seen[id] = struct{}{}
				mu.Unlock()
				assert.False(t, dup, "duplicate session id %d", id)
				assert.NotZero(t, id)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, p.Len())
	assert.Equal(t, int64(workers*perWorker), store.Begins())
}

func TestTxnTerminatedSessionIsProtocolViolation(t *testing.T) {
	ctx := context.Background()

	for _, end := range []string{"commit", "rollback"} {
		t.Run(end, func(t *testing.T) {
			p, _ := newTestProxy(t, TxnOptions{})
			id, err := p.Begin(ctx, kv.ModeOptimistic)
			require.NoError(t, err)

			if end == "commit" {
				require.NoError(t, p.Commit(ctx, id))
			} else {
				require.NoError(t, p.Rollback(ctx, id))
			}

			_, err = p.Get(ctx, id, []byte("a"))
			assert.True(t, classify.IsProtocolViolation(err))
			assert.True(t, classify.IsProtocolViolation(p.Put(ctx, id, []byte("a"), []byte("b"))))
			assert.True(t, classify.IsProtocolViolation(p.Delete(ctx, id, []byte("a"))))
			assert.True(t, classify.IsProtocolViolation(p.Commit(ctx, id)))
			assert.True(t, classify.IsProtocolViolation(p.Rollback(ctx, id)))
		})
	}
}

func TestTxnUnknownSession(t *testing.T) {
	p, _ := newTestProxy(t, TxnOptions{})
	_, err := p.Get(context.Background(), 42, []byte("a"))
	assert.True(t, classify.IsProtocolViolation(err))
	assert.Contains(t, err.Error(), "42")
}

func TestTxnErrorClassification(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name string
		kind kv.Kind
		want codes.Code
	}{
		{"undetermined", kv.KindUndetermined, codes.Unknown},
		{"conflict", kv.KindConflict, codes.Aborted},
		{"lock timeout", kv.KindLockTimeout, codes.Aborted},
		{"transport", kv.KindTransport, codes.Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, store := newTestProxy(t, TxnOptions{})
			id, err := p.Begin(ctx, kv.ModeOptimistic)
			require.NoError(t, err)

			store.Fail(kvtest.OpPut, tc.kind)
			err = p.Put(ctx, id, []byte("a"), []byte("b"))
			require.Error(t, err)
			assert.Equal(t, tc.want, classify.Code(err))

			// a failed put does not end the session
			require.NoError(t, p.Put(ctx, id, []byte("a"), []byte("c")))
			assert.Equal(t, 1, p.Len())
		})
	}
}

func TestTxnFailedCommitEndsSession(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, id, []byte("a"), []byte("b")))

	store.Fail(kvtest.OpCommit, kv.KindUndetermined)
	err = p.Commit(ctx, id)
	assert.Equal(t, codes.Unknown, classify.Code(err))
	assert.Contains(t, err.Error(), "reconcile")

	assert.Equal(t, 0, p.Len())
	assert.True(t, classify.IsProtocolViolation(p.Commit(ctx, id)))
	assert.Equal(t, int64(1), store.Commits())

	id, err = p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	store.Fail(kvtest.OpCommit, kv.KindConflict)
	err = p.Commit(ctx, id)
	assert.Equal(t, codes.Aborted, classify.Code(err))
	assert.Equal(t, 0, p.Len())
}

func TestTxnFailedRollbackEndsSession(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)

	store.FailWith(kvtest.OpRollback, kvtest.ErrInjected)
	err = p.Rollback(ctx, id)
	assert.Equal(t, codes.Unknown, classify.Code(err))
	assert.True(t, classify.IsProtocolViolation(p.Rollback(ctx, id)))
}

func TestTxnBeginFailure(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	store.Fail(kvtest.OpBegin, kv.KindTransport)
	_, err := p.Begin(ctx, kv.ModeOptimistic)
	assert.Equal(t, codes.Unknown, classify.Code(err))
	assert.Equal(t, 0, p.Len())

	_, err = p.Begin(ctx, kv.Mode(7))
	assert.Equal(t, codes.InvalidArgument, classify.Code(err))

	// the failed attempts did not consume ids
	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}

func TestTxnIdCollisionAfterWraparound(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})

	first, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	require.Equal(t, uint32(1), first)

	p.sessions.(*registry).next.Store(math.MaxUint32)

	_, err = p.Begin(ctx, kv.ModeOptimistic)
	require.Error(t, err)
	assert.Equal(t, codes.Aborted, classify.Code(err))
	assert.Contains(t, err.Error(), "session id allocation failed")

	// the new handle was rolled back, the old session is untouched
	assert.Equal(t, int64(1), store.Rollbacks())
	assert.Equal(t, 1, p.Len())
	require.NoError(t, p.Put(ctx, first, []byte("a"), []byte("b")))

	// the counter moves on
	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)
}

func TestTxnSameSessionCallsSerialized(t *testing.T) {
	const writers = 32

	ctx := context.Background()
	p, store := newTestProxy(t, TxnOptions{})
	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte(fmt.Sprintf("key-%d", i))
			assert.NoError(t, p.Put(ctx, id, key, []byte("v")))
			_, err := p.Get(ctx, id, key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, p.Commit(ctx, id))
	for i := 0; i < writers; i++ {
		_, ok := store.Value([]byte(fmt.Sprintf("key-%d", i)))
		assert.True(t, ok)
	}
}

func TestTxnCallsRacingCommit(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProxy(t, TxnOptions{})
	id, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Put(ctx, id, []byte("a"), []byte("b"))
			if err != nil {
				assert.True(t, classify.IsProtocolViolation(err), "unexpected error %v", err)
			}
		}()
	}
	assert.NoError(t, p.Commit(ctx, id))
	wg.Wait()
	assert.Equal(t, 0, p.Len())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTxnIdleReaper(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p, store := newTestProxy(t, TxnOptions{IdleTimeout: time.Minute, ReapInterval: time.Hour, Now: clock.Now})

	idle, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)
	busy, err := p.Begin(ctx, kv.ModeOptimistic)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	require.NoError(t, p.Put(ctx, busy, []byte("a"), []byte("b")))
	assert.Equal(t, 0, p.reap(ctx))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, p.reap(ctx))
	assert.Equal(t, int64(1), store.Rollbacks())

	_, err = p.Get(ctx, idle, []byte("a"))
	assert.True(t, classify.IsProtocolViolation(err))
	value, err := p.Get(ctx, busy, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), value)
}

func TestTxnCloseRollsBackSessions(t *testing.T) {
	ctx := context.Background()
	store := kvtest.NewStore()
	p := NewTxnProxy(store.Txn(), TxnOptions{IdleTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := p.Begin(ctx, kv.ModePessimistic)
		require.NoError(t, err)
	}

	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int64(3), store.Rollbacks())

	_, err := p.Begin(ctx, kv.ModeOptimistic)
	assert.Equal(t, codes.Aborted, classify.Code(err))

	// closing twice is harmless
	require.NoError(t, p.Close(ctx))
}
