package kv

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Kind is the backend independent category of a failure. Backends map their
// native errors onto a Kind exactly once, when the error leaves the backend.
type Kind uint8

const (
	KindUnknown      Kind = iota // 0: Not categorized.
	KindIO                       // 1: Local I/O failure.
	KindTransport                // 2: Network or RPC layer failure talking to the store.
	KindUndetermined             // 3: The store could not tell whether the operation took effect.
	KindMultiple                 // 4: Several errors were aggregated.
	KindInternal                 // 5: Internal error inside the client or store.
	KindConflict                 // 6: Logical conflict with a concurrent transaction.
	KindTxnFinalized             // 7: The transaction was already committed or rolled back.
	KindKeyRange                 // 8: The key is outside the range served by the store.
	KindInvalidKey               // 9: The key is empty or otherwise rejected.
	KindLockTimeout              // 10: Waiting for a pessimistic lock timed out.
	KindTxnTooLarge              // 11: The transaction exceeds the store's size limits.
	KindUnsupported              // 12: The backend does not support or rejected the operation.
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTransport:
		return "transport"
	case KindUndetermined:
		return "undetermined"
	case KindMultiple:
		return "multiple"
	case KindInternal:
		return "internal"
	case KindConflict:
		return "conflict"
	case KindTxnFinalized:
		return "txn-finalized"
	case KindKeyRange:
		return "key-range"
	case KindInvalidKey:
		return "invalid-key"
	case KindLockTimeout:
		return "lock-timeout"
	case KindTxnTooLarge:
		return "txn-too-large"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all client capabilities.
type Error struct {
	Kind  Kind   // The category of the failure
	Op    string // The operation that failed (e.g. "get", "commit")
	Cause error  // The native error, may be nil
	Msg   string // Optional message used when Cause is nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	detail := e.Msg
	if e.Cause != nil {
		detail = e.Cause.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("kv error (%s): %s", e.Kind, detail)
	}
	return fmt.Sprintf("kv %s error (%s): %s", e.Op, e.Kind, detail)
}

// Unwrap returns the native cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error wrapping a native cause.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Errorf creates a new Error with a formatted message and no native cause.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var kvErr *Error
	if errors.As(err, &kvErr) {
		return kvErr.Kind
	}
	return KindUnknown
}

// ErrTxnFinalized is returned by transactions used after Commit or Rollback.
var ErrTxnFinalized = errors.New("transaction already finalized")
