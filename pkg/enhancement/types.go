// Package enhancement implements the Tool Enhancement Pipeline (spec.md
// section 4.E): a fingerprint-gated cache of LLM-generated tool metadata,
// backed by an in-memory cache, a failure cooldown cache, and a durable
// SQLite store, driven by a batched per-tool generation pipeline.
package enhancement

import (
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

// Source records which generation steps contributed to an
// EnhancedToolDefinition (spec.md section 3).
type Source string

const (
	SourceBase        Source = "base"
	SourceSampling    Source = "sampling"
	SourceElicitation Source = "elicitation"
	SourceBoth        Source = "both"
)

// ElicitationMetadata is the keyword/usage metadata the elicitation step
// attaches to a tool.
type ElicitationMetadata struct {
	EnhancedKeywords   []string `json:"enhanced_keywords,omitempty"`
	UsagePatterns      []string `json:"usage_patterns,omitempty"`
	ParameterExamples  []string `json:"parameter_examples,omitempty"`
	ParameterHelp      string   `json:"parameter_help,omitempty"`
	EnhancedCategories []string `json:"enhanced_categories,omitempty"`
}

// GenerationMetadata records how and when an enhancement was produced.
type GenerationMetadata struct {
	Model            string    `json:"model,omitempty"`
	Confidence       float64   `json:"confidence,omitempty"`
	GenerationTimeMs int64     `json:"generation_time_ms,omitempty"`
	EnhancedAt       time.Time `json:"enhanced_at,omitempty"`
	LastGeneratedAt  time.Time `json:"last_generated_at,omitempty"`
}

// EnhancedToolDefinition wraps a catalog.ToolDefinition with the optional
// output of the sampling and elicitation generation steps (spec.md
// section 3).
type EnhancedToolDefinition struct {
	Tool                        catalog.ToolDefinition `json:"tool"`
	SamplingEnhancedDescription string                 `json:"sampling_enhanced_description,omitempty"`
	ElicitationMetadata         *ElicitationMetadata    `json:"elicitation_metadata,omitempty"`
	EnhancementSource           Source                  `json:"enhancement_source"`
	Generation                  GenerationMetadata      `json:"generation"`
}

// FromBase builds a non-persisted EnhancedToolDefinition carrying no
// generated content, used when the pipeline falls back during a failure
// cooldown (spec.md section 4.E step 2).
func FromBase(tool catalog.ToolDefinition) EnhancedToolDefinition {
	return EnhancedToolDefinition{
		Tool:              tool,
		EnhancementSource: SourceBase,
	}
}

// Name returns the enhanced tool's namespaced catalog name, used as the
// cache key everywhere in this package.
func (e EnhancedToolDefinition) Name() string {
	return e.Tool.Name
}
