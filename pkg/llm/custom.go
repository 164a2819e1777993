package llm

// NewCustomProvider builds a Custom adapter, which per spec.md section
// 4.G falls back to OpenAI-compatible semantics unchanged.
func NewCustomProvider(endpoint, apiKey, model string) *OpenAIProvider {
	return NewOpenAIProvider(endpoint, apiKey, model)
}
