// Package upstream implements the Upstream Manager (spec.md section
// 4.B): the component that loads the upstream-spec document, starts one
// transport per declared upstream, routes tool calls to them, and runs
// the periodic capability-discovery and health loops.
package upstream

import (
	"sync"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/mcptypes"
	"github.com/kadirpekel/magictunnel-core/pkg/transport"
)

// Health is an upstream's observed reachability, rolled into metrics by
// the health loop (spec.md section 4.B point 2).
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthDown      Health = "down"
)

// Status is the Manager's snapshot of one upstream for callers of
// list_upstreams/health_of_all.
type Status struct {
	Name             string
	Kind             transport.Kind
	State            transport.State
	Health           Health
	LastError        string
	LastDiscoveredAt time.Time
	LastHealthCheck  time.Time
}

// entry is the Manager's private bookkeeping for one upstream: its live
// transport plus the state Status is derived from.
type entry struct {
	mu sync.RWMutex

	name string
	kind transport.Kind
	tr   transport.Transport

	health          Health
	lastError       string
	lastDiscovered  time.Time
	lastHealthCheck time.Time

	tools        []mcptypes.ToolSchema
	resources    []mcptypes.ResourceSchema
	prompts      []mcptypes.PromptSchema
	roots        []mcptypes.Root
	capabilities mcptypes.Capabilities

	// lastClientID is the downstream client id that most recently invoked
	// a tool on this upstream, used by the Bidirectional Router's
	// ClientIDResolver to find where to forward a reverse request.
	lastClientID string
	hasClientID  bool
}

func (e *entry) snapshot() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Name:             e.name,
		Kind:             e.kind,
		State:            e.tr.State(),
		Health:           e.health,
		LastError:        e.lastError,
		LastDiscoveredAt: e.lastDiscovered,
		LastHealthCheck:  e.lastHealthCheck,
	}
}

func (e *entry) setHealth(h Health, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health = h
	e.lastError = errMsg
	e.lastHealthCheck = time.Now()
}

func (e *entry) setDiscovery(tools []mcptypes.ToolSchema, resources []mcptypes.ResourceSchema, prompts []mcptypes.PromptSchema, roots []mcptypes.Root, caps mcptypes.Capabilities) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools = tools
	e.resources = resources
	e.prompts = prompts
	e.roots = roots
	e.capabilities = caps
	e.lastDiscovered = time.Now()
}

func (e *entry) toolsSnapshot() []mcptypes.ToolSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]mcptypes.ToolSchema, len(e.tools))
	copy(out, e.tools)
	return out
}

func (e *entry) recordClientID(clientID string) {
	if clientID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastClientID = clientID
	e.hasClientID = true
}

func (e *entry) resolveClientID() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastClientID, e.hasClientID
}
