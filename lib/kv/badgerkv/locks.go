package badgerkv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/kv"
)

// lockManager hands out exclusive per-key locks. Pessimistic transactions
// hold them from first access until commit or rollback, every other writer
// (raw writes, optimistic commits) holds them while its write is applied.
// A lock is owned by a transaction id and is re-entrant for its owner. Waiters
// block until the owner releases the key, the context ends or the wait timeout
// expires; there is no deadlock detection, a cycle resolves through the timeout.
type lockManager struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	timeout time.Duration
}

type keyLock struct {
	ownerID  uint64
	released chan struct{} // closed when the owner releases the key
}

func newLockManager(timeout time.Duration) *lockManager {
	return &lockManager{
		locks:   make(map[string]*keyLock),
		timeout: timeout,
	}
}

// AcquireLock blocks until ownerID holds the lock for key.
// It returns a *kv.Error of kind KindLockTimeout if the wait timed out.
func (lm *lockManager) AcquireLock(ctx context.Context, key []byte, ownerID uint64) error {
	var deadline <-chan time.Time
	if lm.timeout > 0 {
		timer := time.NewTimer(lm.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		lm.mu.Lock()
		current, ok := lm.locks[string(key)]
		if !ok {
			lm.locks[string(key)] = &keyLock{ownerID: ownerID, released: make(chan struct{})}
			lm.mu.Unlock()
			return nil
		}
		if current.ownerID == ownerID {
			lm.mu.Unlock()
			return nil
		}
		released := current.released
		lm.mu.Unlock()

		// Wait for the owner, then race the other waiters for the key
		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return kv.NewError(kv.KindLockTimeout, "lock",
				fmt.Errorf("waiting for lock on key %q (held by txn %d) timed out after %s", key, current.ownerID, lm.timeout))
		}
	}
}

// TryAcquireLock takes the lock for key if it is free or already owned by
// ownerID. It never waits.
func (lm *lockManager) TryAcquireLock(key string, ownerID uint64) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	current, ok := lm.locks[key]
	if ok {
		return current.ownerID == ownerID
	}
	lm.locks[key] = &keyLock{ownerID: ownerID, released: make(chan struct{})}
	return true
}

// ReleaseLock releases the lock for key if it is held by ownerID.
// It returns whether a lock was released.
func (lm *lockManager) ReleaseLock(key string, ownerID uint64) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	current, ok := lm.locks[key]
	if !ok || current.ownerID != ownerID {
		return false
	}
	delete(lm.locks, key)
	close(current.released)
	return true
}

// Held returns the number of keys currently locked.
func (lm *lockManager) Held() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
