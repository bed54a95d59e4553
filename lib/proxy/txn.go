package proxy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TxnOptions configures a TxnProxy.
type TxnOptions struct {
	// IdleTimeout rolls back sessions that were not used for this long.
	// Zero disables idle reaping.
	IdleTimeout time.Duration
	// ReapInterval is the period of the idle check. Defaults to IdleTimeout/2.
	ReapInterval time.Duration
	// Now is the clock used for idle tracking. Defaults to time.Now.
	Now func() time.Time
}

// TxnProxy manages transaction sessions on top of a transactional kv client.
// It is safe for concurrent use. Calls on different sessions run in parallel,
// calls on the same session are serialized.
type TxnProxy struct {
	client   kv.ITxnClient
	sessions arena
	opts     TxnOptions

	closed    atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTxnProxy creates a TxnProxy for client and starts the idle reaper if
// configured.
func NewTxnProxy(client kv.ITxnClient, opts TxnOptions) *TxnProxy {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdleTimeout > 0 && opts.ReapInterval <= 0 {
		opts.ReapInterval = opts.IdleTimeout / 2
	}

	p := &TxnProxy{
		client:   client,
		sessions: newRegistry(),
		opts:     opts,
		stop:     make(chan struct{}),
	}

	if opts.IdleTimeout > 0 {
		Logger.Infof("rolling back sessions idle for more than %s (checked every %s)", opts.IdleTimeout, opts.ReapInterval)
		p.wg.Add(1)
		go p.reapLoop()
	}
	return p
}

// Begin starts a new transaction in the given mode and returns its session id.
func (p *TxnProxy) Begin(ctx context.Context, mode kv.Mode) (uint32, error) {
	if !mode.Valid() {
		return 0, classify.InvalidArgument("unknown transaction mode %d", uint8(mode))
	}
	if p.closed.Load() {
		return 0, status.Error(codes.Aborted, "txn begin aborted: proxy is shutting down")
	}

	txn, err := p.client.Begin(ctx, mode)
	if err != nil {
		return 0, failed("txn begin", err)
	}

	s := &session{txn: txn, mode: mode}
	s.touch(p.opts.Now())

	id, ok := p.sessions.Allocate(s)
	if !ok {
		p.discard(ctx, txn)
		Logger.Errorf("session id allocation failed (%d live sessions)", p.sessions.Len())
		return 0, status.Error(codes.Aborted, "txn begin aborted: session id allocation failed")
	}

	// lost a race with Close
	if p.closed.Load() {
		if removed, ok := p.sessions.Remove(id); ok {
			removed.mu.Lock()
			removed.done = true
			removed.mu.Unlock()
			p.discard(ctx, txn)
		}
		return 0, status.Error(codes.Aborted, "txn begin aborted: proxy is shutting down")
	}

	Logger.Debugf("began %s session %d", mode, id)
	return id, nil
}

// Get reads key within the session. Writes made earlier in the session are
// visible.
func (p *TxnProxy) Get(ctx context.Context, id uint32, key []byte) ([]byte, error) {
	if err := checkKey("txn get", key); err != nil {
		return nil, err
	}
	s, err := p.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	value, found, err := s.txn.Get(ctx, key)
	if err != nil {
		return nil, failed("txn get", err)
	}
	if !found {
		return nil, classify.NotFound()
	}
	return value, nil
}

// Put buffers a write within the session.
func (p *TxnProxy) Put(ctx context.Context, id uint32, key, value []byte) error {
	if err := checkKey("txn put", key); err != nil {
		return err
	}
	s, err := p.acquire(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.txn.Put(ctx, key, value); err != nil {
		return failed("txn put", err)
	}
	return nil
}

// Delete buffers a deletion within the session.
func (p *TxnProxy) Delete(ctx context.Context, id uint32, key []byte) error {
	if err := checkKey("txn delete", key); err != nil {
		return err
	}
	s, err := p.acquire(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.txn.Delete(ctx, key); err != nil {
		return failed("txn delete", err)
	}
	return nil
}

// Commit commits the session's transaction. The session ends whatever the
// outcome. An Unknown status means the commit may or may not have been
// applied.
func (p *TxnProxy) Commit(ctx context.Context, id uint32) error {
	s, err := p.release(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.txn.Commit(ctx); err != nil {
		st := classify.CommitError("txn commit", err)
		if classify.Code(st) == codes.Unknown {
			Logger.Warningf("commit of session %d undetermined: %v", id, err)
		} else {
			Logger.Debugf("commit of session %d aborted: %v", id, err)
		}
		return st
	}
	Logger.Debugf("committed session %d", id)
	return nil
}

// Rollback discards the session's transaction. The session ends whatever the
// outcome.
func (p *TxnProxy) Rollback(ctx context.Context, id uint32) error {
	s, err := p.release(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.txn.Rollback(ctx); err != nil {
		return failed("txn rollback", err)
	}
	Logger.Debugf("rolled back session %d", id)
	return nil
}

// Len returns the number of live sessions.
func (p *TxnProxy) Len() int {
	return p.sessions.Len()
}

// Close stops the idle reaper, rolls back every live session and closes the
// client. Begin fails once Close was called.
func (p *TxnProxy) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
		p.wg.Wait()

		n := 0
		p.sessions.Range(func(id uint32, _ *session) bool {
			if s, err := p.release(id); err == nil {
				p.discard(ctx, s.txn)
				s.mu.Unlock()
				n++
			}
			return true
		})
		if n > 0 {
			Logger.Infof("rolled back %d live sessions on close", n)
		}
		err = p.client.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Session handling
// --------------------------------------------------------------------------

// acquire looks up a live session and locks it. The caller must unlock s.mu.
func (p *TxnProxy) acquire(id uint32) (*session, error) {
	s, ok := p.sessions.Lookup(id)
	if !ok {
		return nil, classify.UnknownSession(id)
	}
	s.mu.Lock()
	if s.done {
		// ended while we were waiting for the lock
		s.mu.Unlock()
		return nil, classify.UnknownSession(id)
	}
	s.touch(p.opts.Now())
	return s, nil
}

// release removes a session from the registry and locks it, marking it done.
// In-flight calls on the session finish first. The caller must unlock s.mu.
func (p *TxnProxy) release(id uint32) (*session, error) {
	s, ok := p.sessions.Remove(id)
	if !ok {
		return nil, classify.UnknownSession(id)
	}
	s.mu.Lock()
	s.done = true
	return s, nil
}

// discard rolls back a transaction that never reached or already left the
// registry. Failures are only logged.
func (p *TxnProxy) discard(ctx context.Context, txn kv.ITxn) {
	if err := txn.Rollback(ctx); err != nil {
		Logger.Warningf("rollback of discarded transaction failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Idle reaping
// --------------------------------------------------------------------------

func (p *TxnProxy) reapLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reap(context.Background())
		}
	}
}

// reap rolls back every session idle for longer than the idle timeout.
// Sessions with a call in flight are skipped. It returns the number of
// sessions rolled back.
func (p *TxnProxy) reap(ctx context.Context) int {
	now := p.opts.Now()
	n := 0
	p.sessions.Range(func(id uint32, s *session) bool {
		if now.Sub(s.idleSince()) <= p.opts.IdleTimeout {
			return true
		}
		if !s.mu.TryLock() {
			return true
		}
		defer s.mu.Unlock()
		if s.done {
			return true
		}
		if _, ok := p.sessions.Remove(id); !ok {
			// being committed or rolled back right now
			return true
		}
		s.done = true
		p.discard(ctx, s.txn)
		n++
		Logger.Infof("rolled back session %d after being idle since %s", id, s.idleSince().Format(time.RFC3339))
		return true
	})
	return n
}
