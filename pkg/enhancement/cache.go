package enhancement

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const failureCooldown = 60 * time.Minute

// enhancedCache is the in-memory, authoritative-for-serving cache of
// generated enhancements, keyed by tool name (spec.md section 4.E).
type enhancedCache struct {
	mu      sync.RWMutex
	entries map[string]cachedEnhancement
}

// cachedEnhancement pairs an enhancement with the fingerprint it was
// generated against, so a later fingerprint mismatch can be detected
// without recomputing the hash of the cached tool definition.
type cachedEnhancement struct {
	enhanced    EnhancedToolDefinition
	fingerprint Fingerprint
}

func newEnhancedCache() *enhancedCache {
	return &enhancedCache{entries: make(map[string]cachedEnhancement)}
}

func (c *enhancedCache) get(name string) (EnhancedToolDefinition, Fingerprint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e.enhanced, e.fingerprint, ok
}

func (c *enhancedCache) set(name string, enhanced EnhancedToolDefinition, fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cachedEnhancement{enhanced: enhanced, fingerprint: fp}
}

func (c *enhancedCache) delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

func (c *enhancedCache) snapshot() map[string]EnhancedToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]EnhancedToolDefinition, len(c.entries))
	for name, e := range c.entries {
		out[name] = e.enhanced
	}
	return out
}

// failureCache tracks the last failure time per tool, expiring entries
// automatically after the 60-minute cooldown spec.md section 4.E names.
// Built on the pack's expirable LRU rather than a hand-rolled map+timer,
// matching how the pack's token-accounting services reach for the same
// library for TTL-bounded state.
type failureCache struct {
	lru *expirable.LRU[string, time.Time]
}

func newFailureCache() *failureCache {
	return &failureCache{lru: expirable.NewLRU[string, time.Time](0, nil, failureCooldown)}
}

func (f *failureCache) record(name string) {
	f.lru.Add(name, time.Now())
}

// withinCooldown reports whether name failed recently enough that the
// pipeline should skip regeneration and fall back to the base tool.
func (f *failureCache) withinCooldown(name string) bool {
	failedAt, ok := f.lru.Get(name)
	if !ok {
		return false
	}
	return time.Since(failedAt) < failureCooldown
}

func (f *failureCache) clear(name string) {
	f.lru.Remove(name)
}
