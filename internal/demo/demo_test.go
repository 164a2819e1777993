package demo

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
	"github.com/kadirpekel/magictunnel-core/pkg/enhancement"
	"github.com/kadirpekel/magictunnel-core/pkg/llm"
	"github.com/kadirpekel/magictunnel-core/pkg/llm/llmtest"
)

func TestWire_DiscoveryWriteEnhancesToolsThroughPipeline(t *testing.T) {
	mock := &llmtest.Provider{
		Responses: []llm.ChatResponse{{Content: "an enhanced description", Model: "mock-model", StopReason: llm.StopEndTurn}},
	}
	provider := llm.SamplingAdapter{Provider: mock}

	sys := Wire(Config{
		CatalogDir:       t.TempDir(),
		CatalogRetention: 3,
		Enhancement: enhancement.Config{
			CacheEnhancements: true,
			SamplingEnabled:   true,
		},
	}, prometheus.NewRegistry(), provider, nil)

	require.NotNil(t, sys.Manager)

	fresh := &catalog.CapabilityFile{
		Metadata: catalog.Metadata{Name: "weather", Version: "1"},
		Tools: []catalog.ToolDefinition{
			{
				Name:        "weather.get_forecast",
				Description: "Get the forecast",
				InputSchema: json.RawMessage(`{"type":"object"}`),
				Enabled:     true,
			},
		},
	}

	// Simulates one discovery pass: the Manager calls this same Write
	// method on the unexported enhancingCatalog that Wire hands it as its
	// CatalogWriter.
	writer := &enhancingCatalog{store: sys.Catalog, pipeline: sys.Pipeline}
	require.NoError(t, writer.Write("weather", fresh))

	enhanced, ok := sys.Pipeline.Get("weather.get_forecast")
	require.True(t, ok)
	assert.Equal(t, "an enhanced description", enhanced.SamplingEnhancedDescription)
	assert.Equal(t, enhancement.SourceSampling, enhanced.EnhancementSource)
}
