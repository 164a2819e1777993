package upstream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/transport"
)

// fakeTransport is an in-memory transport.Transport double for exercising
// the Manager without spawning real processes or sockets.
type fakeTransport struct {
	mu    sync.Mutex
	name  string
	state transport.State

	responses map[string]json.RawMessage
	errs      map[string]error
	sendDelay time.Duration
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name, state: transport.Disconnected, responses: map[string]json.RawMessage{}, errs: map[string]error{}}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.Connected
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.Disconnected
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	delay := f.sendDelay
	err := f.errs[method]
	resp := f.responses[method]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return json.RawMessage(`{}`), nil
	}
	return resp, nil
}

func (f *fakeTransport) SendNotification(ctx context.Context, method string, params any) error {
	return nil
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) setResponse(method string, v any) {
	data, _ := json.Marshal(v)
	f.mu.Lock()
	f.responses[method] = data
	f.mu.Unlock()
}

func (f *fakeTransport) setError(method string, err error) {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
}

func newManagerWithFake(t *testing.T, name string) (*Manager, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport(name)
	require.NoError(t, ft.Connect(context.Background()))

	m := NewManager(nil, nil, time.Hour, time.Hour)
	m.entries[name] = &entry{name: name, kind: transport.KindHTTP, tr: ft, health: HealthHealthy}
	return m, ft
}

func TestExecuteTool_Success(t *testing.T) {
	m, ft := newManagerWithFake(t, "upstream-a")
	ft.setResponse("tools/call", map[string]any{"content": []map[string]any{{"type": "text", "text": "ok"}}})

	result, err := m.ExecuteTool(context.Background(), "client-1", "upstream-a", "search", map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content[0].Text)

	clientID, ok := m.ClientIDResolver("upstream-a")
	assert.True(t, ok)
	assert.Equal(t, "client-1", clientID)
}

func TestExecuteTool_UnknownUpstream(t *testing.T) {
	m, _ := newManagerWithFake(t, "upstream-a")
	_, err := m.ExecuteTool(context.Background(), "client-1", "nope", "search", nil)
	require.Error(t, err)
	assert.Equal(t, mcperr.KindValidation, mcperr.KindOf(err))
}

func TestExecuteTool_PropagatesUpstreamError(t *testing.T) {
	m, ft := newManagerWithFake(t, "upstream-a")
	ft.setError("tools/call", mcperr.New(mcperr.KindTimeout, "request timed out", nil))

	_, err := m.ExecuteTool(context.Background(), "client-1", "upstream-a", "search", nil)
	require.Error(t, err)
	assert.Equal(t, mcperr.KindTimeout, mcperr.KindOf(err))
}

func TestListUpstreamsAndToolsOf(t *testing.T) {
	m, _ := newManagerWithFake(t, "upstream-a")

	statuses := m.ListUpstreams()
	require.Len(t, statuses, 1)
	assert.Equal(t, "upstream-a", statuses[0].Name)
	assert.Equal(t, HealthHealthy, statuses[0].Health)

	tools, err := m.ToolsOf("upstream-a")
	require.NoError(t, err)
	assert.Empty(t, tools)

	_, err = m.ToolsOf("missing")
	require.Error(t, err)
}

func TestHealthOfAll(t *testing.T) {
	m, _ := newManagerWithFake(t, "upstream-a")
	health := m.HealthOfAll()
	assert.Equal(t, HealthHealthy, health["upstream-a"])
}

func TestStop_IsIdempotent(t *testing.T) {
	m, ft := newManagerWithFake(t, "upstream-a")
	require.NoError(t, m.Stop(context.Background(), "upstream-a"))
	assert.Equal(t, transport.Disconnected, ft.State())
	require.NoError(t, m.Stop(context.Background(), "upstream-a"))
}

func TestStopAll_IsIdempotentAndStopsLoops(t *testing.T) {
	m, _ := newManagerWithFake(t, "upstream-a")
	m.startLoops()

	m.StopAll(context.Background())
	m.StopAll(context.Background())
}

func TestCheckOneHealth_ClassifiesStates(t *testing.T) {
	m, ft := newManagerWithFake(t, "upstream-a")
	e := m.entries["upstream-a"]

	m.checkOneHealth(context.Background(), e)
	assert.Equal(t, HealthHealthy, e.snapshot().Health)

	ft.setError("tools/list", mcperr.New(mcperr.KindConnection, "dial failed", nil))
	m.checkOneHealth(context.Background(), e)
	assert.Equal(t, HealthDown, e.snapshot().Health)

	require.NoError(t, ft.Disconnect(context.Background()))
	m.checkOneHealth(context.Background(), e)
	assert.Equal(t, HealthDown, e.snapshot().Health)
}

func TestDiscoverOne_BuildsAndWritesCapabilityFile(t *testing.T) {
	m, ft := newManagerWithFake(t, "upstream-a")
	ft.setResponse("tools/list", map[string]any{
		"tools": []map[string]any{
			{"name": "search", "description": "Search things", "inputSchema": map[string]any{"type": "object"}},
		},
	})
	ft.setError("sampling/createMessage", mcperr.New(mcperr.KindMCP, "method not found", nil))
	ft.setError("elicitation/create", mcperr.New(mcperr.KindMCP, "method not found", nil))

	store := newFakeCatalogWriter()
	e := m.entries["upstream-a"]
	err := m.discoverOne(context.Background(), e, store)
	require.NoError(t, err)

	cf := store.written["upstream-a"]
	require.NotNil(t, cf)
	require.Len(t, cf.Tools, 1)
	assert.Equal(t, "search_upstream-a", cf.Tools[0].Name)
	assert.Equal(t, "false", cf.Tools[0].Annotations["sampling_observed"])

	tools, err := m.ToolsOf("upstream-a")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name)
}

type fakeCatalogWriter struct {
	written map[string]*catalog.CapabilityFile
}

func newFakeCatalogWriter() *fakeCatalogWriter {
	return &fakeCatalogWriter{written: map[string]*catalog.CapabilityFile{}}
}

func (f *fakeCatalogWriter) Write(upstream string, fresh *catalog.CapabilityFile) error {
	f.written[upstream] = fresh
	return nil
}

func TestAdvertiseCapabilities_UnknownDownstreamUsesConservativeDefault(t *testing.T) {
	advertised := AdvertiseCapabilities("client-1", nil)
	roots := advertised["roots"].(map[string]any)
	assert.Equal(t, true, roots["listChanged"])
	_, hasSampling := advertised["sampling"]
	assert.False(t, hasSampling)
}

func TestAdvertiseCapabilities_EchoesKnownDownstreamSafely(t *testing.T) {
	downstream := &DownstreamCapabilities{}
	downstream.Roots.ListChanged = false
	downstream.Sampling = &struct{}{}

	advertised := AdvertiseCapabilities("client-1", downstream)
	roots := advertised["roots"].(map[string]any)
	assert.Equal(t, false, roots["listChanged"])
	_, hasSampling := advertised["sampling"]
	assert.True(t, hasSampling)
}
