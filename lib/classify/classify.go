// Package classify maps failures of the kv client capability onto the small
// status vocabulary the proxy exposes to its callers.
//
//   - codes.Unknown: the outcome is ambiguous, the operation may or may not have
//     taken effect (I/O and transport failures, undetermined results, aggregated
//     and internal errors, cancelled calls).
//   - codes.Aborted: the operation definitively did not take effect and can be
//     retried from scratch (conflicts, finalized transactions, rejected keys, ...).
//   - codes.NotFound: a successful read without a value.
//   - codes.FailedPrecondition: the caller referenced a session that does not exist.
//
// This is the only place where errors are translated. Nothing downstream
// re-interprets them.
package classify

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProtocolViolation is the code used when a caller references an unknown or
// already terminated session.
const ProtocolViolation = codes.FailedPrecondition

// Outcome returns the status code an underlying error maps to.
func Outcome(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var kvErr *kv.Error
	if !errors.As(err, &kvErr) {
		// context cancellation, deadlines and foreign errors leave the outcome open
		return codes.Unknown
	}
	switch kvErr.Kind {
	case kv.KindIO, kv.KindTransport, kv.KindUndetermined, kv.KindMultiple, kv.KindInternal, kv.KindUnknown:
		return codes.Unknown
	default:
		return codes.Aborted
	}
}

// Error classifies err and returns a status error whose message contains the
// operation name and the underlying cause. It returns nil for a nil err.
func Error(op string, err error) error {
	if err == nil {
		return nil
	}
	code := Outcome(err)
	if code == codes.Unknown {
		return status.Errorf(codes.Unknown, "%s failed: %v", op, err)
	}
	return status.Errorf(code, "%s aborted: %v", op, err)
}

// CommitError is like Error but marks an ambiguous commit, which must be
// reconciled against the store instead of being retried blindly.
func CommitError(op string, err error) error {
	if err == nil {
		return nil
	}
	if Outcome(err) == codes.Unknown {
		return status.Errorf(codes.Unknown, "%s failed, outcome undetermined (reconcile against the store before retrying): %v", op, err)
	}
	return Error(op, err)
}

// NotFound returns the status for a successful read without a value.
func NotFound() error {
	return status.Error(codes.NotFound, "key is not found")
}

// UnknownSession returns the status for a reference to a session id that is
// not (or no longer) registered.
func UnknownSession(id uint32) error {
	return status.Errorf(ProtocolViolation, "session %d not found (never started, committed or rolled back)", id)
}

// InvalidArgument returns the status for malformed requests.
func InvalidArgument(format string, args ...interface{}) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf(format, args...))
}

// Code extracts the status code of an error produced by this package (or any
// grpc status error). Non status errors yield codes.Unknown, nil yields codes.OK.
func Code(err error) codes.Code {
	return status.Code(err)
}

// Retryable reports whether the whole operation (or transaction) can be
// retried from scratch without reconciliation.
func Retryable(err error) bool {
	return Code(err) == codes.Aborted
}

// IsNotFound reports whether err is the empty read status.
func IsNotFound(err error) bool {
	return Code(err) == codes.NotFound
}

// IsProtocolViolation reports whether err is the unknown session status.
func IsProtocolViolation(err error) bool {
	return Code(err) == ProtocolViolation
}
