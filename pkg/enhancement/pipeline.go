package enhancement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

var tracer = otel.Tracer("github.com/kadirpekel/magictunnel-core/pkg/enhancement")

// upstreamRoutingTypes names the catalog.Routing.Type values spec.md
// section 4.E calls out as "the upstream's responsibility": tools the
// catalog generated from a discovered external upstream rather than one
// defined locally.
var upstreamRoutingTypes = map[string]bool{
	"external_mcp": true,
	"websocket":    true,
}

// DefaultReservedToolName is the smart-discovery tool's own name, which
// the pipeline never enhances to avoid recursion (spec.md section 4.E).
const DefaultReservedToolName = "smart_tool_discovery"

// Config drives the pipeline's per-tool decisions (spec.md section 4.E).
type Config struct {
	CacheEnhancements  bool
	SamplingEnabled    bool
	ElicitationEnabled bool

	// BatchSize > 1 processes a work set in that many concurrent
	// goroutines; <= 1 processes sequentially.
	BatchSize int

	// PropagateSamplingFailures, when true, surfaces a sampling-step
	// failure as a fatal per-tool error instead of gracefully degrading
	// to the base/elicitation-only result.
	PropagateSamplingFailures bool

	// RespectExternalAuthority suppresses local enhancement of an
	// upstream-sourced tool that already declares the capability being
	// generated, unless that tool carries an
	// override_elicitation_authority=true annotation.
	RespectExternalAuthority bool

	ReservedToolNames []string
}

func (c Config) isReserved(name string) bool {
	if len(c.ReservedToolNames) == 0 {
		return name == DefaultReservedToolName
	}
	for _, r := range c.ReservedToolNames {
		if r == name {
			return true
		}
	}
	return false
}

// Pipeline is the Tool Enhancement Pipeline (spec.md section 4.E):
// fingerprint-gated generation of enhanced tool metadata, backed by an
// in-memory cache, a failure cooldown, and an optional durable store.
type Pipeline struct {
	mu       sync.Mutex
	cfg      Config
	cache    *enhancedCache
	failures *failureCache
	store    *PersistentStore
	provider Provider
}

// NewPipeline builds a Pipeline. store and provider may be nil: a nil
// store means enhancements are never persisted across restarts; a nil
// provider means every tool falls through to EnhancedToolDefinition
// sources of Base only.
func NewPipeline(cfg Config, provider Provider, store *PersistentStore) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		cache:    newEnhancedCache(),
		failures: newFailureCache(),
		store:    store,
		provider: provider,
	}
}

// Initialize loads the persistent store into the in-memory cache, then
// builds and processes the work set of changed or missing tools among
// those given (spec.md section 4.E "Initialization").
func (p *Pipeline) Initialize(ctx context.Context, tools []catalog.ToolDefinition) error {
	if p.store != nil {
		loaded, err := p.store.LoadAll()
		if err != nil {
			return fmt.Errorf("enhancement: initialize: %w", err)
		}
		for name, ce := range loaded {
			p.cache.set(name, ce.enhanced, ce.fingerprint)
		}
		slog.Info("enhancement: loaded persistent store", "count", len(loaded))
	}

	work := p.buildWorkSet(tools)
	slog.Info("enhancement: initialize work set built", "total", len(tools), "work", len(work))
	errs := p.runBatch(ctx, work)
	if len(errs) > 0 {
		slog.Warn("enhancement: initialize completed with errors", "failed", len(errs), "attempted", len(work))
	}
	return nil
}

// ToolsChanged implements the "Tool-change notifications" callback:
// filter to tools whose fingerprint actually changed, then run the same
// batching discipline as Initialize over the remainder.
func (p *Pipeline) ToolsChanged(ctx context.Context, changed []catalog.ToolDefinition) error {
	work := p.buildWorkSet(changed)
	if len(work) == 0 {
		return nil
	}
	errs := p.runBatch(ctx, work)
	if len(errs) > 0 {
		return fmt.Errorf("enhancement: tools_changed: %d of %d tools failed: %w", len(errs), len(work), errs[0])
	}
	return nil
}

// buildWorkSet applies every Initialization filtering rule: enabled
// only, skip reserved names, skip upstream-sourced tools (unless an
// override forces inclusion), skip anything whose fingerprint still
// matches its cached value.
func (p *Pipeline) buildWorkSet(tools []catalog.ToolDefinition) []catalog.ToolDefinition {
	work := make([]catalog.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if !t.Enabled {
			continue
		}
		if p.cfg.isReserved(t.Name) {
			continue
		}
		if upstreamRoutingTypes[t.Routing.Type] && !p.includeUpstreamSourced(t) {
			continue
		}
		if _, cachedFP, ok := p.cache.get(t.Name); ok && cachedFP == Compute(t) {
			continue
		}
		work = append(work, t)
	}
	return work
}

// includeUpstreamSourced implements "External-capability override
// warnings": an upstream-sourced tool is normally the upstream's
// responsibility, but if it declares sampling/elicitation capability
// while local enhancement is also enabled, that conflict is logged, and
// resolved by config unless a per-tool override forces local
// enhancement anyway.
func (p *Pipeline) includeUpstreamSourced(t catalog.ToolDefinition) bool {
	if !p.cfg.SamplingEnabled && !p.cfg.ElicitationEnabled {
		return false
	}
	samplingObserved := t.Annotations["sampling_observed"] == "true"
	elicitationObserved := t.Annotations["elicitation_observed"] == "true"
	if !samplingObserved && !elicitationObserved {
		return false
	}

	override := t.Annotations["override_elicitation_authority"] == "true"
	if p.cfg.RespectExternalAuthority && !override {
		slog.Warn("enhancement: suppressing local enhancement, upstream already declares capability",
			"tool", t.Name, "sampling_observed", samplingObserved, "elicitation_observed", elicitationObserved)
		return false
	}

	slog.Warn("enhancement: running local enhancement despite upstream-declared capability",
		"tool", t.Name, "override", override, "respect_external_authority", p.cfg.RespectExternalAuthority)
	return true
}

// runBatch processes tools sequentially, or in concurrent batches of
// cfg.BatchSize when that is greater than 1.
func (p *Pipeline) runBatch(ctx context.Context, tools []catalog.ToolDefinition) []error {
	if p.cfg.BatchSize <= 1 {
		var errs []error
		for _, t := range tools {
			if _, err := p.generateOne(ctx, t); err != nil {
				errs = append(errs, err)
			}
		}
		return errs
	}

	sem := make(chan struct{}, p.cfg.BatchSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, t := range tools {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := p.generateOne(ctx, t); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

// generateOne runs the six-step per-tool pipeline (spec.md section 4.E).
func (p *Pipeline) generateOne(ctx context.Context, tool catalog.ToolDefinition) (EnhancedToolDefinition, error) {
	name := tool.Name
	fp := Compute(tool)

	// Step 1: serve the cache directly when enabled and current.
	if p.cfg.CacheEnhancements {
		if cached, cachedFP, ok := p.cache.get(name); ok && cachedFP == fp {
			return cached, nil
		}
	}

	// Step 2: a recent failure short-circuits to an unenhanced, non-
	// persisted definition rather than retrying immediately.
	if p.failures.withinCooldown(name) {
		return FromBase(tool), nil
	}

	ctx, span := tracer.Start(ctx, "enhancement.generate",
		trace.WithAttributes(attribute.String("mcp.tool", name)))
	defer span.End()

	start := time.Now()
	enhanced := FromBase(tool)
	var sawSampling, sawElicitation bool

	// Step 3: sampling produces an enhanced description.
	if p.cfg.SamplingEnabled && p.provider != nil {
		result, err := p.provider.Complete(ctx, samplingSystemPrompt, samplingUserPrompt(tool))
		switch {
		case err != nil && p.cfg.PropagateSamplingFailures:
			p.failures.record(name)
			return FromBase(tool), fmt.Errorf("enhancement: sampling generation for %s: %w", name, err)
		case err != nil:
			slog.Warn("enhancement: sampling generation failed, degrading gracefully", "tool", name, "error", err)
		default:
			enhanced.SamplingEnhancedDescription = result.Text
			enhanced.Generation.Model = result.Model
			enhanced.Generation.Confidence = result.Confidence
			sawSampling = true
		}
	}

	// Step 4: elicitation produces deduplicated keywords.
	if p.cfg.ElicitationEnabled && p.provider != nil {
		result, err := p.provider.Complete(ctx, elicitationSystemPrompt, elicitationUserPrompt(tool))
		if err != nil {
			slog.Warn("enhancement: elicitation generation failed, degrading gracefully", "tool", name, "error", err)
		} else {
			enhanced.ElicitationMetadata = &ElicitationMetadata{EnhancedKeywords: parseKeywords(result.Text)}
			if enhanced.Generation.Model == "" {
				enhanced.Generation.Model = result.Model
			}
			sawElicitation = true
		}
	}

	// Step 5/6: tag the source, stamp timing, persist.
	enhanced.EnhancementSource = sourceFrom(sawSampling, sawElicitation)
	now := time.Now()
	enhanced.Generation.GenerationTimeMs = time.Since(start).Milliseconds()
	enhanced.Generation.EnhancedAt = now
	enhanced.Generation.LastGeneratedAt = now

	p.cache.set(name, enhanced, fp)
	if p.store != nil {
		if err := p.store.Save(name, enhanced, fp); err != nil {
			slog.Warn("enhancement: failed to persist enhancement", "tool", name, "error", err)
		}
	}
	p.failures.clear(name)
	return enhanced, nil
}

func sourceFrom(sawSampling, sawElicitation bool) Source {
	switch {
	case sawSampling && sawElicitation:
		return SourceBoth
	case sawSampling:
		return SourceSampling
	case sawElicitation:
		return SourceElicitation
	default:
		return SourceBase
	}
}

// Snapshot returns every currently cached enhancement, keyed by tool
// name.
func (p *Pipeline) Snapshot() map[string]EnhancedToolDefinition {
	return p.cache.snapshot()
}

// Get returns one tool's cached enhancement, if any.
func (p *Pipeline) Get(name string) (EnhancedToolDefinition, bool) {
	enhanced, _, ok := p.cache.get(name)
	return enhanced, ok
}
