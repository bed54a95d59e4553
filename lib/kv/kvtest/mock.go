// Package kvtest provides an in-memory implementation of the kv client
// capability with fault injection. It is meant for tests of the layers above
// the capability: it keeps all data in a map, buffers transactional writes until
// commit and never detects conflicts on its own. Failures are scripted with Fail.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kvproxy/lib/kv"
)

// Operation names accepted by Store.Fail
const (
	OpRawGet    = "raw.get"
	OpRawPut    = "raw.put"
	OpRawDelete = "raw.delete"
	OpBegin     = "begin"
	OpGet       = "get"
	OpPut       = "put"
	OpDelete    = "delete"
	OpCommit    = "commit"
	OpRollback  = "rollback"
)

// Store is a mock key-value store shared by a raw and a transactional client.
type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	faults map[string][]error

	begins    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		data:   make(map[string][]byte),
		faults: make(map[string][]error),
	}
}

// Fail makes the next call to op fail with a *kv.Error of the given kind.
// Multiple calls queue up failures in order.
func (s *Store) Fail(op string, kind kv.Kind) {
	s.FailWith(op, kv.NewError(kind, op, fmt.Errorf("injected %s failure", kind)))
}

// FailWith makes the next call to op fail with err.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Set writes a key directly, bypassing faults.
func (s *Store) Set(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
}

// Value reads a key directly, bypassing faults.
func (s *Store) Value(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[string(key)]
	return v, ok
}

// Begins returns how many transactions were started successfully.
func (s *Store) Begins() int64 { return s.begins.Load() }

// Commits returns how many commit calls reached the store (including failed ones).
func (s *Store) Commits() int64 { return s.commits.Load() }

// Rollbacks returns how many rollback calls reached the store (including failed ones).
func (s *Store) Rollbacks() int64 { return s.rollbacks.Load() }

// Raw returns a raw client on the store.
func (s *Store) Raw() kv.IRawClient { return &rawClient{s: s} }

// Txn returns a transactional client on the store.
func (s *Store) Txn() kv.ITxnClient { return &txnClient{s: s} }

// fault pops the next scripted failure for op. Must be called with mu held.
func (s *Store) fault(op string) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

func (s *Store) popFault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault(op)
}

// --------------------------------------------------------------------------
// Raw client
// --------------------------------------------------------------------------

type rawClient struct {
	s *Store
}

func (c *rawClient) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.fault(OpRawGet); err != nil {
		return nil, false, err
	}
	v, ok := c.s.data[string(key)]
	return v, ok, nil
}

func (c *rawClient) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.fault(OpRawPut); err != nil {
		return err
	}
	c.s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (c *rawClient) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.fault(OpRawDelete); err != nil {
		return err
	}
	delete(c.s.data, string(key))
	return nil
}

func (c *rawClient) Close() error { return nil }

// --------------------------------------------------------------------------
// Transactional client
// --------------------------------------------------------------------------

type txnClient struct {
	s *Store
}

func (c *txnClient) Begin(ctx context.Context, mode kv.Mode) (kv.ITxn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, kv.Errorf(kv.KindUnsupported, OpBegin, "unsupported mode %s", mode)
	}
	if err := c.s.popFault(OpBegin); err != nil {
		return nil, err
	}
	c.s.begins.Add(1)
	return &Txn{s: c.s, Mode: mode, writes: make(map[string]*[]byte)}, nil
}

func (c *txnClient) Close() error { return nil }

// Txn is a buffered mock transaction. Writes are kept in a local buffer until
// commit; a nil entry in the buffer marks a deletion.
type Txn struct {
	s         *Store
	Mode      kv.Mode
	writes    map[string]*[]byte
	finalized bool
}

func (t *Txn) check(op string) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, op, kv.ErrTxnFinalized)
	}
	return t.s.popFault(op)
}

func (t *Txn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := t.check(OpGet); err != nil {
		return nil, false, err
	}
	if w, ok := t.writes[string(key)]; ok {
		if w == nil {
			return nil, false, nil
		}
		return *w, true, nil
	}
	v, ok := t.s.Value(key)
	return v, ok, nil
}

func (t *Txn) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.check(OpPut); err != nil {
		return err
	}
	v := append([]byte(nil), value...)
	t.writes[string(key)] = &v
	return nil
}

func (t *Txn) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.check(OpDelete); err != nil {
		return err
	}
	t.writes[string(key)] = nil
	return nil
}

func (t *Txn) Commit(ctx context.Context) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, OpCommit, kv.ErrTxnFinalized)
	}
	t.finalized = true
	t.s.commits.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fault(OpCommit); err != nil {
		return err
	}
	for k, w := range t.writes {
		if w == nil {
			delete(t.s.data, k)
		} else {
			t.s.data[k] = *w
		}
	}
	return nil
}

func (t *Txn) Rollback(ctx context.Context) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, OpRollback, kv.ErrTxnFinalized)
	}
	t.finalized = true
	t.s.rollbacks.Add(1)
	t.writes = nil
	if err := t.s.popFault(OpRollback); err != nil {
		return err
	}
	return ctx.Err()
}

// ErrInjected is a plain, unclassified error for FailWith.
var ErrInjected = errors.New("injected failure")
