package llm

import (
	"context"

	"github.com/kadirpekel/magictunnel-core/pkg/enhancement"
)

// SamplingAdapter satisfies enhancement.Provider atop a Provider,
// translating the enhancement pipeline's system/user prompt pair into
// a single-turn ChatRequest. spec.md section 4.G does not define a
// numeric confidence signal, so this derives one from StopReason: a
// clean end-of-turn is trusted most, truncation by MaxTokens or a stop
// sequence less so. This choice is recorded as an Open Question
// decision in DESIGN.md.
type SamplingAdapter struct {
	Provider Provider
}

func (a SamplingAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string) (enhancement.CompletionResult, error) {
	resp, err := a.Provider.Complete(ctx, ChatRequest{
		System:   systemPrompt,
		Messages: []Message{{Role: RoleUser, Content: userPrompt}},
	})
	if err != nil {
		return enhancement.CompletionResult{}, err
	}
	return enhancement.CompletionResult{
		Text:       resp.Content,
		Model:      resp.Model,
		Confidence: confidenceFor(resp.StopReason),
	}, nil
}

func confidenceFor(reason StopReason) float64 {
	switch reason {
	case StopEndTurn:
		return 0.95
	case StopSequence:
		return 0.85
	case StopToolCall:
		return 0.8
	case StopMaxTokens:
		return 0.5
	case StopContentFilter, StopError:
		return 0.2
	default:
		return 0.7
	}
}
