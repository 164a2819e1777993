// Package llmtest provides a fake llm.Provider for tests. It is never
// imported from a non-test file: SPEC_FULL.md's design notes are
// explicit that no mock provider ships in the core, only real adapters
// (pkg/llm/openai.go, anthropic.go, ollama.go, custom.go).
package llmtest

import (
	"context"

	"github.com/kadirpekel/magictunnel-core/pkg/llm"
)

// Provider is a scripted llm.Provider double. Responses is consumed in
// order; once exhausted, Complete repeats the last entry. A zero value
// (no Responses, no Err) answers every call with an empty
// StopEndTurn response.
type Provider struct {
	ModelName string
	Responses []llm.ChatResponse
	Err       error

	calls int
	Seen  []llm.ChatRequest
}

func (p *Provider) Model() string {
	if p.ModelName != "" {
		return p.ModelName
	}
	return "mock-model"
}

func (p *Provider) Complete(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.Seen = append(p.Seen, req)
	if p.Err != nil {
		return llm.ChatResponse{}, p.Err
	}
	if len(p.Responses) == 0 {
		return llm.ChatResponse{Model: p.Model(), StopReason: llm.StopEndTurn}, nil
	}
	idx := p.calls
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.calls++
	return p.Responses[idx], nil
}

// CallCount reports how many times Complete has been invoked.
func (p *Provider) CallCount() int { return len(p.Seen) }
