package llm

import "context"

// Provider is one configured LLM backend.
type Provider interface {
	// Complete issues one non-streaming chat-completion call.
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// Model returns the provider's configured default model name, used
	// by model selection and by logging/metrics.
	Model() string
}
