// Package llm implements the LLM Provider Adapters (spec.md section
// 4.G): a uniform chat-completion request/response shape over OpenAI-
// compatible, Anthropic, Ollama, and Custom provider backends, plus the
// content filter, model selection heuristic, and per-user rate limiter
// that sit in front of them.
package llm

// Role names a chat message's sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a chat-completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the uniform request shape every provider adapter
// accepts (spec.md section 4.G).
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// StopReason normalizes every provider's own completion-reason enum.
type StopReason string

const (
	StopEndTurn       StopReason = "EndTurn"
	StopMaxTokens     StopReason = "MaxTokens"
	StopSequence      StopReason = "StopSequence"
	StopContentFilter StopReason = "ContentFilter"
	StopToolCall      StopReason = "ToolCall"
	StopError         StopReason = "Error"
)

// Usage carries token accounting, when the provider reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse is the uniform response shape every provider adapter
// returns.
type ChatResponse struct {
	Content    string     `json:"content"`
	Model      string     `json:"model"`
	StopReason StopReason `json:"stop_reason"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// ModelPreferences drives model selection (spec.md section 4.G).
type ModelPreferences struct {
	Intelligence    float64
	Speed           float64
	Cost            float64
	PreferredModels []string
	ExcludedModels  []string
}
