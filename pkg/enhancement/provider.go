package enhancement

import "context"

// CompletionResult is one LLM call's output, consumed by both the
// sampling (description) and elicitation (keyword) generation steps.
type CompletionResult struct {
	Text       string
	Model      string
	Confidence float64
}

// Provider is the minimal LLM surface the pipeline needs: a single
// non-streaming completion call. pkg/llm's provider adapters (OpenAI-
// compatible, Anthropic, Ollama, Custom) implement this; the pipeline
// depends only on this interface so it never imports a concrete
// provider.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (CompletionResult, error)
}
