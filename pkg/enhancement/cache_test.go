package enhancement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedCache_SetGetDelete(t *testing.T) {
	c := newEnhancedCache()
	_, _, ok := c.get("t")
	require.False(t, ok)

	c.set("t", EnhancedToolDefinition{EnhancementSource: SourceBase}, Fingerprint("fp1"))
	got, fp, ok := c.get("t")
	require.True(t, ok)
	assert.Equal(t, Fingerprint("fp1"), fp)
	assert.Equal(t, SourceBase, got.EnhancementSource)

	c.delete("t")
	_, _, ok = c.get("t")
	assert.False(t, ok)
}

func TestFailureCache_CooldownTracksRecentFailure(t *testing.T) {
	f := newFailureCache()
	assert.False(t, f.withinCooldown("t"))

	f.record("t")
	assert.True(t, f.withinCooldown("t"))

	f.clear("t")
	assert.False(t, f.withinCooldown("t"))
}
