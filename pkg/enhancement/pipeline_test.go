package enhancement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

type fakeProvider struct {
	systemCalls []string
	result      CompletionResult
	err         error
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (CompletionResult, error) {
	f.systemCalls = append(f.systemCalls, systemPrompt)
	if f.err != nil {
		return CompletionResult{}, f.err
	}
	return f.result, nil
}

func tool(name string) catalog.ToolDefinition {
	return catalog.ToolDefinition{
		Name:        name,
		Description: "does a thing",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Enabled:     true,
	}
}

func TestGenerateOne_BothStepsSucceed(t *testing.T) {
	provider := &fakeProvider{result: CompletionResult{Text: "Improved description", Model: "gpt-x", Confidence: 0.9}}
	p := NewPipeline(Config{SamplingEnabled: true, ElicitationEnabled: true, CacheEnhancements: true}, provider, nil)

	enhanced, err := p.generateOne(context.Background(), tool("search_a"))
	require.NoError(t, err)
	assert.Equal(t, SourceBoth, enhanced.EnhancementSource)
	assert.Equal(t, "Improved description", enhanced.SamplingEnhancedDescription)
	assert.Equal(t, "gpt-x", enhanced.Generation.Model)
	require.NotNil(t, enhanced.ElicitationMetadata)
}

func TestGenerateOne_CacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{result: CompletionResult{Text: "x", Model: "m"}}
	p := NewPipeline(Config{SamplingEnabled: true, CacheEnhancements: true}, provider, nil)

	tl := tool("search_a")
	first, err := p.generateOne(context.Background(), tl)
	require.NoError(t, err)

	second, err := p.generateOne(context.Background(), tl)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, provider.systemCalls, 1, "second call should be served from cache without touching the provider")
}

func TestGenerateOne_FailureCooldownFallsBackToBase(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	p := NewPipeline(Config{SamplingEnabled: true, PropagateSamplingFailures: true}, provider, nil)

	tl := tool("search_a")
	_, err := p.generateOne(context.Background(), tl)
	require.Error(t, err)

	enhanced, err := p.generateOne(context.Background(), tl)
	require.NoError(t, err)
	assert.Equal(t, SourceBase, enhanced.EnhancementSource)
}

func TestGenerateOne_GracefulDegradationOnSamplingFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	p := NewPipeline(Config{SamplingEnabled: true}, provider, nil)

	enhanced, err := p.generateOne(context.Background(), tool("search_a"))
	require.NoError(t, err)
	assert.Equal(t, SourceBase, enhanced.EnhancementSource)
}

func TestBuildWorkSet_SkipsDisabledReservedAndUpstreamSourced(t *testing.T) {
	p := NewPipeline(Config{}, nil, nil)

	disabled := tool("disabled_a")
	disabled.Enabled = false

	reserved := tool(DefaultReservedToolName)
	reserved.Enabled = true

	upstream := tool("search_b")
	upstream.Routing = catalog.Routing{Type: "external_mcp"}

	local := tool("search_c")

	work := p.buildWorkSet([]catalog.ToolDefinition{disabled, reserved, upstream, local})
	require.Len(t, work, 1)
	assert.Equal(t, "search_c", work[0].Name)
}

func TestIncludeUpstreamSourced_RespectsAuthorityUnlessOverridden(t *testing.T) {
	p := NewPipeline(Config{SamplingEnabled: true, RespectExternalAuthority: true}, nil, nil)

	capable := tool("search_b")
	capable.Routing = catalog.Routing{Type: "external_mcp"}
	capable.Annotations = map[string]string{"sampling_observed": "true"}
	assert.False(t, p.includeUpstreamSourced(capable))

	capable.Annotations["override_elicitation_authority"] = "true"
	assert.True(t, p.includeUpstreamSourced(capable))
}

func TestToolsChanged_OnlyProcessesFingerprintMismatches(t *testing.T) {
	provider := &fakeProvider{result: CompletionResult{Text: "x", Model: "m"}}
	p := NewPipeline(Config{SamplingEnabled: true, CacheEnhancements: true}, provider, nil)

	tl := tool("search_a")
	_, err := p.generateOne(context.Background(), tl)
	require.NoError(t, err)

	require.NoError(t, p.ToolsChanged(context.Background(), []catalog.ToolDefinition{tl}))
	assert.Len(t, provider.systemCalls, 1, "unchanged fingerprint should not trigger regeneration")

	changed := tl
	changed.Description = "a very different description"
	require.NoError(t, p.ToolsChanged(context.Background(), []catalog.ToolDefinition{changed}))
	assert.Len(t, provider.systemCalls, 2)
}

func TestParseKeywords_DedupesAndLowercases(t *testing.T) {
	got := parseKeywords("Search, search, Lookup ,  , find")
	assert.Equal(t, []string{"search", "lookup", "find"}, got)
}
