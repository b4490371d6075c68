package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

func TestNewFerryError(t *testing.T) {
	originalErr := errors.New("connection refused")
	fe := exception.NewFerryError(exception.ConnectionError, "statestore", "persist failed", originalErr)

	assert.Equal(t, exception.ConnectionError, fe.Kind)
	assert.Equal(t, "statestore", fe.Module)
	assert.Equal(t, originalErr, fe.Unwrap())
	assert.Equal(t, "[statestore] persist failed: connection refused", fe.Error())
	assert.NotEmpty(t, fe.StackTrace)
}

func TestNewFerryErrorf(t *testing.T) {
	fe1 := exception.NewFerryErrorf(exception.ValidationError, "registry", "unknown capability %q", "a.b.c")
	assert.Nil(t, fe1.Unwrap())
	assert.Equal(t, `unknown capability "a.b.c"`, fe1.Message)

	cause := errors.New("eof")
	fe2 := exception.NewFerryErrorf(exception.ParseError, "worker", "bad message from %s", "stdin", cause)
	assert.Equal(t, cause, fe2.Unwrap())
	assert.Equal(t, "bad message from stdin", fe2.Message)
}

func TestIsKind_ThroughWrapping(t *testing.T) {
	fe := exception.NewFerryError(exception.CrashError, "dispatch", "no envelope", nil)
	wrapped := fmt.Errorf("job_002: %w", fe)

	assert.True(t, exception.IsKind(wrapped, exception.CrashError))
	assert.False(t, exception.IsKind(wrapped, exception.ParseError))
	assert.Equal(t, exception.CrashError, exception.KindOf(wrapped))
	assert.Equal(t, exception.Kind(""), exception.KindOf(errors.New("plain")))
	assert.False(t, exception.IsKind(nil, exception.CrashError))
}

func TestSentinel_MatchesKindThroughCause(t *testing.T) {
	fe := exception.NewFerryError(exception.TransferError, "transfer", "copy failed", context.DeadlineExceeded)

	assert.ErrorIs(t, fe, exception.Sentinel(exception.TransferError))
	assert.ErrorIs(t, fe, context.DeadlineExceeded)
	assert.NotErrorIs(t, fe, exception.Sentinel(exception.CleanupError))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))

	fe := exception.NewFerryError(exception.ProbeError, "audit", "count failed", errors.New("timeout"))
	assert.Equal(t, "count failed: timeout", exception.ExtractErrorMessage(fe))
}
