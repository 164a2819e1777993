package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

func TestRateLimiter_AllowsUpToConfiguredRate(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 2, WindowSeconds: 60})

	require.NoError(t, rl.Allow("alice"))
	require.NoError(t, rl.Allow("alice"))
}

func TestRateLimiter_RejectsExcessRequestsWithResetTime(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 1, WindowSeconds: 60})

	require.NoError(t, rl.Allow("bob"))
	err := rl.Allow("bob")
	require.Error(t, err)
	assert.Equal(t, mcperr.KindRateLimit, mcperr.KindOf(err))

	var mcpErr *mcperr.Error
	require.ErrorAs(t, err, &mcpErr)
	assert.False(t, mcpErr.ResetAt.IsZero())
}

func TestRateLimiter_TracksUsersIndependently(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 1, WindowSeconds: 60})

	require.NoError(t, rl.Allow("carol"))
	require.NoError(t, rl.Allow("dave"))
}
