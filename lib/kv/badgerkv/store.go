package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("kv/badger")

const defaultLockWaitTimeout = 3 * time.Second

// Config configures the embedded database.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps all data in memory, nothing is written to disk.
	InMemory bool
	// LockWaitTimeout bounds how long a pessimistic transaction waits for a key
	// locked by another transaction. Zero selects the default (3s), a negative
	// value waits until the request context ends.
	LockWaitTimeout time.Duration
	// Logger receives Badger's internal log output. Nil disables it.
	Logger badger.Logger
}

// Store is an embedded Badger database exposed through the kv client
// capability. A single Store serves both a raw and a transactional client.
type Store struct {
	db        *badger.DB
	locks     *lockManager
	nextTxnID atomic.Uint64
}

// Open opens (or creates) the database described by config.
func Open(config Config) (*Store, error) {
	dir := config.Dir
	if config.InMemory {
		dir = ""
	}
	opts := badger.DefaultOptions(dir).
		WithInMemory(config.InMemory).
		WithLogger(config.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}

	timeout := config.LockWaitTimeout
	if timeout == 0 {
		timeout = defaultLockWaitTimeout
	} else if timeout < 0 {
		timeout = 0
	}

	Logger.Infof("opened badger store (in-memory: %t, dir: %q, lock wait timeout: %s)", config.InMemory, dir, timeout)

	return &Store{
		db:    db,
		locks: newLockManager(timeout),
	}, nil
}

// Raw returns a raw client backed by the store.
func (s *Store) Raw() kv.IRawClient { return &rawClient{s: s} }

// Txn returns a transactional client backed by the store.
func (s *Store) Txn() kv.ITxnClient { return &txnClient{s: s} }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Raw client
// --------------------------------------------------------------------------

type rawClient struct {
	s *Store
}

func (c *rawClient) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	err = c.s.db.View(func(txn *badger.Txn) error {
		value, found, err = getFromTxn(txn, key)
		return err
	})
	if err != nil {
		return nil, false, translate("get", err)
	}
	return value, found, nil
}

func (c *rawClient) Put(ctx context.Context, key, value []byte) error {
	return c.write(ctx, "put", key, func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (c *rawClient) Delete(ctx context.Context, key []byte) error {
	return c.write(ctx, "delete", key, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// write applies fn while holding the key lock, waiting for a pessimistic
// transaction that owns the key
func (c *rawClient) write(ctx context.Context, op string, key []byte, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return kv.NewError(kv.KindInvalidKey, op, badger.ErrEmptyKey)
	}
	id := c.s.nextTxnID.Add(1)
	if err := c.s.locks.AcquireLock(ctx, key, id); err != nil {
		return err
	}
	defer c.s.locks.ReleaseLock(string(key), id)
	return translate(op, c.s.db.Update(fn))
}

// Close is a no-op, the store is closed through Store.Close
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
	if c.s.db.IsClosed() {
		return nil, kv.NewError(kv.KindIO, "begin", badger.ErrDBClosed)
	}
	switch mode {
	case kv.ModeOptimistic:
		return &optimisticTxn{
			s:      c.s,
			id:     c.s.nextTxnID.Add(1),
			txn:    c.s.db.NewTransaction(true),
			writes: make(map[string]struct{}),
		}, nil
	case kv.ModePessimistic:
		return &pessimisticTxn{
			s:      c.s,
			id:     c.s.nextTxnID.Add(1),
			writes: make(map[string]*[]byte),
		}, nil
	default:
		return nil, kv.Errorf(kv.KindUnsupported, "begin", "unsupported transaction mode %s", mode)
	}
}

// Close is a no-op, the store is closed through Store.Close
func (c *txnClient) Close() error { return nil }

// optimisticTxn wraps a read-write badger transaction. Reads see the snapshot
// taken at begin, badger detects read-write conflicts at commit time. A
// written key that is locked by a pessimistic transaction at commit time is
// a conflict as well.
type optimisticTxn struct {
	s         *Store
	id        uint64
	txn       *badger.Txn
	writes    map[string]struct{}
	finalized bool
}

func (t *optimisticTxn) check(ctx context.Context, op string) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, op, kv.ErrTxnFinalized)
	}
	return ctx.Err()
}

func (t *optimisticTxn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := t.check(ctx, "get"); err != nil {
		return nil, false, err
	}
	value, found, err := getFromTxn(t.txn, key)
	if err != nil {
		return nil, false, translate("get", err)
	}
	return value, found, nil
}

func (t *optimisticTxn) Put(ctx context.Context, key, value []byte) error {
	if err := t.check(ctx, "put"); err != nil {
		return err
	}
	if err := t.txn.Set(key, value); err != nil {
		return translate("put", err)
	}
	t.writes[string(key)] = struct{}{}
	return nil
}

func (t *optimisticTxn) Delete(ctx context.Context, key []byte) error {
	if err := t.check(ctx, "delete"); err != nil {
		return err
	}
	if err := t.txn.Delete(key); err != nil {
		return translate("delete", err)
	}
	t.writes[string(key)] = struct{}{}
	return nil
}

func (t *optimisticTxn) Commit(ctx context.Context) error {
	if err := t.check(ctx, "commit"); err != nil {
		if !t.finalized {
			t.finalized = true
			t.txn.Discard()
		}
		return err
	}
	t.finalized = true

	locked := make([]string, 0, len(t.writes))
	defer func() {
		for _, k := range locked {
			t.s.locks.ReleaseLock(k, t.id)
		}
	}()
	for k := range t.writes {
		if !t.s.locks.TryAcquireLock(k, t.id) {
			t.txn.Discard()
			return kv.NewError(kv.KindConflict, "commit",
				fmt.Errorf("key %q is locked by a pessimistic transaction", k))
		}
		locked = append(locked, k)
	}
	return translate("commit", t.txn.Commit())
}

func (t *optimisticTxn) Rollback(_ context.Context) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, "rollback", kv.ErrTxnFinalized)
	}
	t.finalized = true
	t.txn.Discard()
	return nil
}

// pessimisticTxn locks every key on first access and keeps its writes in a
// local buffer (a nil entry marks a deletion). Reads of keys it has not
// written go to the latest committed state. Every writer of the store holds
// the key lock while writing, so that state does not change while this
// transaction owns the key. The buffer is applied in a single badger update on
// commit.
type pessimisticTxn struct {
	s         *Store
	id        uint64
	writes    map[string]*[]byte
	locked    []string
	finalized bool
}

func (t *pessimisticTxn) lock(ctx context.Context, op string, key []byte) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, op, kv.ErrTxnFinalized)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return kv.NewError(kv.KindInvalidKey, op, badger.ErrEmptyKey)
	}
	if _, ok := t.writes[string(key)]; ok {
		return nil // already locked by us
	}
	for _, k := range t.locked {
		if k == string(key) {
			return nil
		}
	}
	if err := t.s.locks.AcquireLock(ctx, key, t.id); err != nil {
		return err
	}
	t.locked = append(t.locked, string(key))
	return nil
}

func (t *pessimisticTxn) unlockAll() {
	for _, k := range t.locked {
		t.s.locks.ReleaseLock(k, t.id)
	}
	t.locked = nil
}

func (t *pessimisticTxn) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	if err := t.lock(ctx, "get", key); err != nil {
		return nil, false, err
	}
	if w, ok := t.writes[string(key)]; ok {
		if w == nil {
			return nil, false, nil
		}
		return append([]byte(nil), (*w)...), true, nil
	}
	err = t.s.db.View(func(txn *badger.Txn) error {
		value, found, err = getFromTxn(txn, key)
		return err
	})
	if err != nil {
		return nil, false, translate("get", err)
	}
	return value, found, nil
}

func (t *pessimisticTxn) Put(ctx context.Context, key, value []byte) error {
	if err := t.lock(ctx, "put", key); err != nil {
		return err
	}
	v := append([]byte(nil), value...)
	t.writes[string(key)] = &v
	return nil
}

func (t *pessimisticTxn) Delete(ctx context.Context, key []byte) error {
	if err := t.lock(ctx, "delete", key); err != nil {
		return err
	}
	t.writes[string(key)] = nil
	return nil
}

func (t *pessimisticTxn) Commit(ctx context.Context) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, "commit", kv.ErrTxnFinalized)
	}
	t.finalized = true
	defer t.unlockAll()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.writes) == 0 {
		return nil
	}
	return translate("commit", t.s.db.Update(func(txn *badger.Txn) error {
		for k, w := range t.writes {
			var err error
			if w == nil {
				err = txn.Delete([]byte(k))
			} else {
				err = txn.Set([]byte(k), *w)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func (t *pessimisticTxn) Rollback(_ context.Context) error {
	if t.finalized {
		return kv.NewError(kv.KindTxnFinalized, "rollback", kv.ErrTxnFinalized)
	}
	t.finalized = true
	t.writes = nil
	t.unlockAll()
	return nil
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// getFromTxn reads a key and copies its value out of the transaction.
// A missing key is reported as found=false without an error.
func getFromTxn(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// translate maps badger errors onto kv error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var kvErr *kv.Error
	if errors.As(err, &kvErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pathErr *fs.PathError
	switch {
	case errors.Is(err, badger.ErrConflict):
		return kv.NewError(kv.KindConflict, op, err)
	case errors.Is(err, badger.ErrTxnTooBig):
		return kv.NewError(kv.KindTxnTooLarge, op, err)
	case errors.Is(err, badger.ErrDiscardedTxn):
		return kv.NewError(kv.KindTxnFinalized, op, err)
	case errors.Is(err, badger.ErrEmptyKey), errors.Is(err, badger.ErrInvalidKey):
		return kv.NewError(kv.KindInvalidKey, op, err)
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrBlockedWrites), errors.As(err, &pathErr):
		return kv.NewError(kv.KindIO, op, err)
	default:
		return kv.NewError(kv.KindInternal, op, err)
	}
}
