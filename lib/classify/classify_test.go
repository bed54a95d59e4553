package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestOutcome(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"io", kv.NewError(kv.KindIO, "get", errors.New("disk")), codes.Unknown},
		{"transport", kv.NewError(kv.KindTransport, "get", errors.New("conn reset")), codes.Unknown},
		{"undetermined", kv.NewError(kv.KindUndetermined, "commit", errors.New("timeout")), codes.Unknown},
		{"multiple", kv.NewError(kv.KindMultiple, "put", errors.New("a; b")), codes.Unknown},
		{"internal", kv.NewError(kv.KindInternal, "put", errors.New("bug")), codes.Unknown},
		{"uncategorized", kv.NewError(kv.KindUnknown, "put", errors.New("?")), codes.Unknown},
		{"conflict", kv.NewError(kv.KindConflict, "commit", errors.New("write conflict")), codes.Aborted},
		{"finalized", kv.NewError(kv.KindTxnFinalized, "put", kv.ErrTxnFinalized), codes.Aborted},
		{"key range", kv.NewError(kv.KindKeyRange, "get", errors.New("out of range")), codes.Aborted},
		{"invalid key", kv.Errorf(kv.KindInvalidKey, "get", "empty key"), codes.Aborted},
		{"lock timeout", kv.NewError(kv.KindLockTimeout, "put", errors.New("wait")), codes.Aborted},
		{"too large", kv.NewError(kv.KindTxnTooLarge, "put", errors.New("big")), codes.Aborted},
		{"unsupported", kv.NewError(kv.KindUnsupported, "put", errors.New("no")), codes.Aborted},
		{"wrapped conflict", fmt.Errorf("outer: %w", kv.NewError(kv.KindConflict, "commit", nil)), codes.Aborted},
		{"foreign error", errors.New("boom"), codes.Unknown},
		{"context cancelled", context.Canceled, codes.Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Outcome(tc.err))
		})
	}
}

func TestErrorCarriesCause(t *testing.T) {
	err := Error("txn put", kv.NewError(kv.KindUndetermined, "put", errors.New("region unavailable")))
	require.Error(t, err)
	assert.Equal(t, codes.Unknown, Code(err))
	assert.Contains(t, err.Error(), "txn put failed")
	assert.Contains(t, err.Error(), "region unavailable")
	assert.False(t, Retryable(err))

	err = Error("txn put", kv.NewError(kv.KindConflict, "put", errors.New("write conflict")))
	assert.Equal(t, codes.Aborted, Code(err))
	assert.Contains(t, err.Error(), "txn put aborted")
	assert.True(t, Retryable(err))

	assert.NoError(t, Error("noop", nil))
}

func TestCommitError(t *testing.T) {
	err := CommitError("txn commit", kv.NewError(kv.KindTransport, "commit", errors.New("eof")))
	assert.Equal(t, codes.Unknown, Code(err))
	assert.True(t, strings.Contains(err.Error(), "reconcile"))

	err = CommitError("txn commit", kv.NewError(kv.KindConflict, "commit", errors.New("conflict")))
	assert.Equal(t, codes.Aborted, Code(err))
	assert.False(t, strings.Contains(err.Error(), "reconcile"))

	assert.NoError(t, CommitError("txn commit", nil))
}

func TestSpecialStatuses(t *testing.T) {
	assert.True(t, IsNotFound(NotFound()))
	assert.False(t, Retryable(NotFound()))

	err := UnknownSession(42)
	assert.True(t, IsProtocolViolation(err))
	assert.Contains(t, err.Error(), "42")

	assert.Equal(t, codes.InvalidArgument, Code(InvalidArgument("bad %s", "thing")))
	assert.Equal(t, codes.OK, Code(nil))
}
