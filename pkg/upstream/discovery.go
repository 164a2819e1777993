package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
	"github.com/kadirpekel/magictunnel-core/pkg/mcptypes"
	"github.com/kadirpekel/magictunnel-core/pkg/transport"
)

// CatalogWriter is the subset of *catalog.Store the discovery loop needs.
// Keeping it an interface lets the Manager be constructed without a
// catalog store for tests that only exercise execute_tool/health.
type CatalogWriter interface {
	Write(upstream string, fresh *catalog.CapabilityFile) error
}

// SetCatalog wires the catalog store the discovery loop writes generated
// CapabilityFile documents to. Discovery is a no-op until this is set.
func (m *Manager) SetCatalog(store CatalogWriter) {
	m.mu.Lock()
	m.catalogStore = store
	m.mu.Unlock()
}

func (m *Manager) runDiscoveryLoop() {
	defer m.loopsWG.Done()
	ticker := time.NewTicker(m.discoveryInterval)
	defer ticker.Stop()

	m.discoverAll(context.Background())

	for {
		select {
		case <-ticker.C:
			m.discoverAll(context.Background())
		case <-m.stopDiscovery:
			return
		}
	}
}

func (m *Manager) discoverAll(ctx context.Context) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	store := m.catalogStore
	m.mu.RUnlock()

	for _, e := range entries {
		if e.tr.State() != transport.Connected {
			continue
		}
		if err := m.discoverOne(ctx, e, store); err != nil {
			slog.Warn("upstream: discovery failed", "upstream", e.name, "error", err)
		}
	}
}

// discoverOne implements spec.md section 4.B point 1: tools/list, probe
// sampling/createMessage and elicitation/create, query resources/list,
// prompts/list, roots/list, then generate the capability file.
func (m *Manager) discoverOne(ctx context.Context, e *entry, store CatalogWriter) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tools, err := m.listTools(ctx, e)
	if err != nil {
		m.metrics.observeDiscovery(e.name, 0, err)
		return fmt.Errorf("tools/list: %w", err)
	}

	caps := mcptypes.Capabilities{Tools: len(tools) > 0}
	caps.Sampling = m.probeSampling(ctx, e)
	caps.Elicitation = m.probeElicitation(ctx, e)

	resources := m.listResources(ctx, e)
	caps.Resources = len(resources) > 0
	prompts := m.listPrompts(ctx, e)
	caps.Prompts = len(prompts) > 0
	roots := m.listRoots(ctx, e)
	caps.Roots = len(roots) > 0

	e.setDiscovery(tools, resources, prompts, roots, caps)
	m.metrics.observeDiscovery(e.name, len(tools), nil)

	if store == nil {
		return nil
	}
	cf := buildCapabilityFile(e.name, tools, caps)
	return store.Write(e.name, cf)
}

func (m *Manager) listTools(ctx context.Context, e *entry) ([]mcptypes.ToolSchema, error) {
	raw, err := e.tr.Send(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result mcptypes.ToolListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

func (m *Manager) listResources(ctx context.Context, e *entry) []mcptypes.ResourceSchema {
	raw, err := e.tr.Send(ctx, "resources/list", map[string]any{})
	if err != nil {
		return nil
	}
	var result mcptypes.ResourceListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result.Resources
}

func (m *Manager) listPrompts(ctx context.Context, e *entry) []mcptypes.PromptSchema {
	raw, err := e.tr.Send(ctx, "prompts/list", map[string]any{})
	if err != nil {
		return nil
	}
	var result mcptypes.PromptListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result.Prompts
}

func (m *Manager) listRoots(ctx context.Context, e *entry) []mcptypes.Root {
	raw, err := e.tr.Send(ctx, "roots/list", map[string]any{})
	if err != nil {
		return nil
	}
	var result mcptypes.RootsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result.Roots
}

// probeSampling sends a minimal sampling/createMessage test payload. A
// successful reply (even one describing a model-side failure, since that
// still means the upstream understood the method) marks the capability
// present; any transport/protocol error is treated as unsupported.
func (m *Manager) probeSampling(ctx context.Context, e *entry) bool {
	_, err := e.tr.Send(ctx, "sampling/createMessage", mcptypes.SamplingRequest{
		Messages:  []mcptypes.SamplingMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	return err == nil
}

func (m *Manager) probeElicitation(ctx context.Context, e *entry) bool {
	_, err := e.tr.Send(ctx, "elicitation/create", mcptypes.ElicitationRequest{Message: "ping"})
	return err == nil
}

// buildCapabilityFile synthesizes a CapabilityFile per spec.md section
// 4.D: deterministic metadata, one ToolDefinition per discovered tool
// namespaced "<orig>_<upstream>", with a fixed routing template back to
// this upstream and annotations recording observed capabilities.
func buildCapabilityFile(upstream string, tools []mcptypes.ToolSchema, caps mcptypes.Capabilities) *catalog.CapabilityFile {
	cf := &catalog.CapabilityFile{
		Metadata: catalog.Metadata{
			Name:        upstream,
			Version:     "1.0.0",
			Description: fmt.Sprintf("Auto-generated capability file for upstream %q", upstream),
			Author:      "magictunnel-core",
			Tags:        []string{"generated", "external_mcp"},
		},
	}

	for _, t := range tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = []byte("{}")
		}
		description := t.Description
		if description == "" {
			description = fmt.Sprintf("Proxied tool %q from upstream %q", t.Name, upstream)
		}
		cf.Tools = append(cf.Tools, catalog.ToolDefinition{
			Name:        fmt.Sprintf("%s_%s", t.Name, upstream),
			Description: description,
			InputSchema: schema,
			Routing: catalog.Routing{
				Type: "external_mcp",
				Config: catalog.RoutingConfig{
					ServerName: upstream,
					ToolName:   t.Name,
					Method:     "tools/call",
				},
			},
			Annotations: map[string]string{
				"source":               "external",
				"sampling_observed":    boolString(caps.Sampling),
				"elicitation_observed": boolString(caps.Elicitation),
			},
		})
	}

	return cf
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
