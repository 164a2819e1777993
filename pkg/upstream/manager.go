package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/mcptypes"
	"github.com/kadirpekel/magictunnel-core/pkg/router"
	"github.com/kadirpekel/magictunnel-core/pkg/transport"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// Manager owns every upstream connection and is the single point other
// components call through to reach them: execute_tool, discovery, health,
// and the generic send_request escape hatch (spec.md section 4.B).
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	metrics      *Metrics
	router       *router.Router
	catalogStore CatalogWriter

	discoveryInterval time.Duration
	healthInterval    time.Duration

	stopDiscovery chan struct{}
	stopHealth    chan struct{}
	loopsOnce     sync.Once
	loopsWG       sync.WaitGroup
}

// NewManager builds an empty Manager. discoveryInterval <= 0 uses
// spec.md's documented default of 5 minutes; healthInterval <= 0 uses the
// spec's fixed 30s.
func NewManager(metrics *Metrics, rtr *router.Router, discoveryInterval, healthInterval time.Duration) *Manager {
	if discoveryInterval <= 0 {
		discoveryInterval = 5 * time.Minute
	}
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	return &Manager{
		entries:           make(map[string]*entry),
		metrics:           metrics,
		router:            rtr,
		discoveryInterval: discoveryInterval,
		healthInterval:    healthInterval,
		stopDiscovery:     make(chan struct{}),
		stopHealth:        make(chan struct{}),
	}
}

// StartAll builds one transport per upstream declared in doc and connects
// them in parallel via errgroup, per spec.md section 4.B: "Starts each
// specified upstream in parallel; tracks started/total, fails only if
// zero start successfully." Individual connect failures are logged and
// leave that upstream Disconnected/Failed rather than aborting the
// others.
func (m *Manager) StartAll(ctx context.Context, doc *upstreamconfig.Document) error {
	total := len(doc.MCPServers) + len(doc.HTTPServices) + len(doc.SSEServices) + len(doc.WebSocketServices)
	if total == 0 {
		return fmt.Errorf("upstream: no upstreams declared in upstream-spec document")
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	var started int32
	var mu sync.Mutex

	add := func(name string, kind transport.Kind, tr transport.Transport) {
		m.mu.Lock()
		m.entries[name] = &entry{name: name, kind: kind, tr: tr, health: HealthDown}
		m.mu.Unlock()

		g.Go(func() error {
			if err := tr.Connect(gctx); err != nil {
				slog.Warn("upstream: failed to connect", "upstream", name, "kind", kind, "error", err)
				return nil
			}
			mu.Lock()
			started++
			mu.Unlock()
			slog.Info("upstream: connected", "upstream", name, "kind", kind)
			return nil
		})
	}

	for name, spec := range doc.MCPServers {
		add(name, transport.KindStdio, transport.NewFromStdioSpec(name, spec, m.handleRequest, m.handleNotification))
	}
	for name, spec := range doc.HTTPServices {
		kind := transport.KindHTTP
		if spec.Streaming {
			kind = transport.KindStreamableHTTP
		}
		add(name, kind, transport.NewFromHTTPSpec(name, spec, m.handleRequest, m.handleNotification))
	}
	for name, spec := range doc.SSEServices {
		add(name, transport.KindSSE, transport.NewFromSSESpec(name, spec, m.handleRequest, m.handleNotification))
	}
	for name, spec := range doc.WebSocketServices {
		add(name, transport.KindWebSocket, transport.NewFromWebSocketSpec(name, spec, m.handleRequest, m.handleNotification))
	}

	_ = g.Wait()

	slog.Info("upstream: start complete", "started", started, "total", total)
	if started == 0 {
		return fmt.Errorf("upstream: 0/%d upstreams started successfully", total)
	}

	m.startLoops()
	return nil
}

// handleRequest adapts the router into a transport.InboundRequestHandler;
// every transport shares the same handler since the upstream name it was
// invoked for arrives as a parameter on each call.
func (m *Manager) handleRequest(ctx context.Context, upstream string, req *jsonrpc.Request) *jsonrpc.Response {
	if m.router == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "No request forwarder configured")
	}
	return m.router.HandleRequest(ctx, upstream, req)
}

func (m *Manager) handleNotification(upstream string, n *jsonrpc.Notification) {
	if m.router == nil {
		slog.Warn("upstream: dropped notification, no router configured", "upstream", upstream, "method", n.Method)
		return
	}
	m.router.HandleNotification(upstream, n)
}

// ClientIDResolver implements router.ClientIDResolver by reading back the
// last client id recorded against the given upstream.
func (m *Manager) ClientIDResolver(upstream string) (string, bool) {
	e, ok := m.lookup(upstream)
	if !ok {
		return "", false
	}
	return e.resolveClientID()
}

func (m *Manager) lookup(upstream string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[upstream]
	return e, ok
}

// ExecuteTool forwards a tools/call to upstream for originalTool with
// args, recording per-upstream timing and error categorization in
// metrics (spec.md section 4.B).
func (m *Manager) ExecuteTool(ctx context.Context, downstreamClientID, upstream, originalTool string, args map[string]any) (mcptypes.ToolCallResult, error) {
	e, ok := m.lookup(upstream)
	if !ok {
		return mcptypes.ToolCallResult{}, mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	e.recordClientID(downstreamClientID)

	start := time.Now()
	raw, err := e.tr.Send(ctx, "tools/call", map[string]any{"name": originalTool, "arguments": args})
	duration := time.Since(start).Seconds()

	if err != nil {
		m.metrics.observeCall(upstream, originalTool, duration, mcperr.KindOf(err).String())
		return mcptypes.ToolCallResult{}, fmt.Errorf("upstream: execute_tool %s/%s: %w", upstream, originalTool, err)
	}

	var result mcptypes.ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		m.metrics.observeCall(upstream, originalTool, duration, mcperr.KindProtocol.String())
		return mcptypes.ToolCallResult{}, fmt.Errorf("upstream: decode tools/call result from %s: %w", upstream, err)
	}

	m.metrics.observeCall(upstream, originalTool, duration, "")
	return result, nil
}

// SendRequest is the generic escape hatch for code paths that need to
// speak a method this package doesn't otherwise wrap. The discovery and
// health loops call the transport directly rather than through it.
func (m *Manager) SendRequest(ctx context.Context, upstream, method string, params any) (json.RawMessage, error) {
	e, ok := m.lookup(upstream)
	if !ok {
		return nil, mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	return e.tr.Send(ctx, method, params)
}

// ListUpstreams returns every upstream's current Status.
func (m *Manager) ListUpstreams() []Status {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Status, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	return out
}

// ToolsOf returns the last-discovered tool list for one upstream.
func (m *Manager) ToolsOf(upstream string) ([]mcptypes.ToolSchema, error) {
	e, ok := m.lookup(upstream)
	if !ok {
		return nil, mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	return e.toolsSnapshot(), nil
}

// AllTools returns every upstream's tools, keyed by upstream name.
func (m *Manager) AllTools() map[string][]mcptypes.ToolSchema {
	m.mu.RLock()
	entries := make(map[string]*entry, len(m.entries))
	for name, e := range m.entries {
		entries[name] = e
	}
	m.mu.RUnlock()

	out := make(map[string][]mcptypes.ToolSchema, len(entries))
	for name, e := range entries {
		out[name] = e.toolsSnapshot()
	}
	return out
}

// HealthOfAll returns the current Health of every upstream, keyed by name.
func (m *Manager) HealthOfAll() map[string]Health {
	statuses := m.ListUpstreams()
	out := make(map[string]Health, len(statuses))
	for _, s := range statuses {
		out[s.Name] = s.Health
	}
	return out
}

// Stop disconnects one upstream. Idempotent: stopping an already-
// disconnected upstream is a no-op.
func (m *Manager) Stop(ctx context.Context, upstream string) error {
	e, ok := m.lookup(upstream)
	if !ok {
		return mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	if e.tr.State() == transport.Disconnected {
		return nil
	}
	return e.tr.Disconnect(ctx)
}

// Restart disconnects then reconnects one upstream.
func (m *Manager) Restart(ctx context.Context, upstream string) error {
	e, ok := m.lookup(upstream)
	if !ok {
		return mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	if err := e.tr.Disconnect(ctx); err != nil {
		slog.Warn("upstream: disconnect before restart failed", "upstream", upstream, "error", err)
	}
	return e.tr.Connect(ctx)
}

// StopAll disconnects every upstream and stops the background loops.
// Idempotent.
func (m *Manager) StopAll(ctx context.Context) {
	m.loopsOnce.Do(func() {
		close(m.stopDiscovery)
		close(m.stopHealth)
	})
	m.loopsWG.Wait()

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if e.tr.State() == transport.Disconnected {
			continue
		}
		if err := e.tr.Disconnect(ctx); err != nil {
			slog.Warn("upstream: disconnect during stop_all failed", "upstream", e.name, "error", err)
		}
	}
}

func (m *Manager) startLoops() {
	m.loopsWG.Add(2)
	go m.runDiscoveryLoop()
	go m.runHealthLoop()
}
