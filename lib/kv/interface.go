package kv

import (
	"context"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IRawClient is the stateless client capability. Every call is an independent
// operation against a single key.
type IRawClient interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	// A missing key is not an error.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// Put inserts or updates a key–value pair.
	Put(ctx context.Context, key, value []byte) (err error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) (err error)
	// Close releases the resources held by the client.
	Close() error
}

// ITxnClient is a factory for logical transactions.
type ITxnClient interface {
	// Begin starts a new transaction with the given concurrency mode.
	Begin(ctx context.Context, mode Mode) (ITxn, error)
	// Close releases the resources held by the client.
	Close() error
}

// ITxn is a single in-progress transaction. It is not safe for concurrent use;
// callers must serialize access. After Commit or Rollback returned (with or
// without error) the transaction must not be used again.
type ITxn interface {
	// Get reads a key. Writes made earlier in the same transaction are visible.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// Put buffers a write.
	Put(ctx context.Context, key, value []byte) (err error)
	// Delete buffers a deletion.
	Delete(ctx context.Context, key []byte) (err error)
	// Commit makes all buffered writes visible atomically.
	Commit(ctx context.Context) (err error)
	// Rollback discards all buffered writes.
	Rollback(ctx context.Context) (err error)
}

// --------------------------------------------------------------------------
// Transaction Mode
// --------------------------------------------------------------------------

// Mode is the conflict detection strategy of a transaction. It is fixed when
// the transaction begins.
type Mode uint8

const (
	// ModeOptimistic detects conflicts at commit time.
	ModeOptimistic Mode = iota
	// ModePessimistic locks keys on first access and holds the locks until the
	// transaction finishes.
	ModePessimistic
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case ModeOptimistic:
		return "optimistic"
	case ModePessimistic:
		return "pessimistic"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeOptimistic || m == ModePessimistic
}

// ParseMode parses "optimistic" or "pessimistic" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optimistic", "opt":
		return ModeOptimistic, nil
	case "pessimistic", "pes":
		return ModePessimistic, nil
	default:
		return 0, fmt.Errorf("invalid transaction mode %q (expected optimistic or pessimistic)", s)
	}
}
