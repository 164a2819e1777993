package mcperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_UnwrapsThroughFmtErrorf(t *testing.T) {
	base := New(KindConnection, "dial failed", errors.New("refused"))
	plain := errors.New("while starting upstream: " + base.Error())
	assert.Equal(t, KindUnknown, KindOf(plain))

	wrapped := fmt.Errorf("while starting upstream: %w", base)
	assert.Equal(t, KindConnection, KindOf(wrapped))
}

func TestRetriable(t *testing.T) {
	assert.True(t, KindConnection.Retriable())
	assert.False(t, KindTimeout.Retriable())
	assert.False(t, KindMCP.Retriable())
	assert.False(t, KindValidation.Retriable())
}

func TestRateLimited_CarriesResetAt(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	err := RateLimited("too many requests", reset)
	assert.Equal(t, KindRateLimit, err.Kind)
	assert.Equal(t, reset, err.ResetAt)
	assert.True(t, Is(err, KindRateLimit))
}

func TestError_MessageIncludesWrappedError(t *testing.T) {
	inner := errors.New("connection refused")
	err := New(KindConnection, "dial upstream", inner)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "dial upstream")
	assert.ErrorIs(t, err, inner)
}

func TestIs_FalseForDifferentKind(t *testing.T) {
	err := New(KindTimeout, "deadline exceeded", nil)
	assert.False(t, Is(err, KindConnection))
}
