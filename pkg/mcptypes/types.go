// Package mcptypes models the well-typed inner boundaries of the MCP wire
// protocol: sampling, elicitation, and tool/resource/prompt listing
// payloads. Per spec.md section 9 ("Dynamic JSON at the boundary"), the
// dispatch layer (pkg/transport, pkg/router) stays value-shaped
// (json.RawMessage) and only decodes into these structs where a component
// actually needs typed fields.
package mcptypes

// Capabilities is the set of advanced capabilities an MCP peer may
// advertise or be observed to support (spec.md section 3: Upstream
// runtime state).
type Capabilities struct {
	Tools       bool `json:"tools"`
	Resources   bool `json:"resources"`
	Prompts     bool `json:"prompts"`
	Sampling    bool `json:"sampling"`
	Elicitation bool `json:"elicitation"`
	Roots       bool `json:"roots"`
}

// ClientInfo identifies the proxy to an upstream during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is sent as the first request to every upstream.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    map[string]any  `json:"capabilities"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// InitializeResult is the upstream's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ClientInfo     `json:"serverInfo"`
}

// ToolSchema is one entry returned by an upstream's tools/list.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolListResult is the result payload of tools/list.
type ToolListResult struct {
	Tools []ToolSchema `json:"tools"`
}

// ToolContent is one content block of a tools/call result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// ToolCallResult is the result payload of tools/call.
type ToolCallResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ResourceSchema is one entry returned by an upstream's resources/list.
type ResourceSchema struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceListResult is the result payload of resources/list.
type ResourceListResult struct {
	Resources []ResourceSchema `json:"resources"`
}

// PromptSchema is one entry returned by an upstream's prompts/list.
type PromptSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PromptListResult is the result payload of prompts/list.
type PromptListResult struct {
	Prompts []PromptSchema `json:"prompts"`
}

// RootsListResult is the result payload of roots/list.
type RootsListResult struct {
	Roots []Root `json:"roots"`
}

// Root is a single filesystem root advertised via roots/list.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// SamplingMessage is one turn in a sampling/createMessage conversation.
type SamplingMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// SamplingRequest is the params of an upstream-initiated
// sampling/createMessage request (spec.md section 4.C / 4.G).
type SamplingRequest struct {
	Messages         []SamplingMessage `json:"messages"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	MaxTokens        int               `json:"maxTokens,omitempty"`
	Temperature      float64           `json:"temperature,omitempty"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`

	// SourceServer and OriginalClientID are stamped by the router before
	// handing the request to a Forwarder (spec.md Testable Property 7);
	// they are never present on the wire from the upstream.
	SourceServer     string `json:"-"`
	OriginalClientID string `json:"-"`
}

// SamplingResponse is the result a Forwarder returns for a
// SamplingRequest.
type SamplingResponse struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stopReason,omitempty"`
}

// ModelPreferences steers provider/model selection (spec.md section 4.G).
type ModelPreferences struct {
	Intelligence     float64  `json:"intelligencePriority,omitempty"`
	Speed            float64  `json:"speedPriority,omitempty"`
	Cost             float64  `json:"costPriority,omitempty"`
	PreferredModels  []string `json:"preferredModels,omitempty"`
	ExcludedModels   []string `json:"excludedModels,omitempty"`
}

// ElicitationRequest is the params of an upstream-initiated
// elicitation/create (or legacy elicitation/request) call.
type ElicitationRequest struct {
	Message         string         `json:"message"`
	RequestedSchema map[string]any `json:"requestedSchema,omitempty"`

	SourceServer     string `json:"-"`
	OriginalClientID string `json:"-"`
}

// ElicitationResponse is the result a Forwarder returns for an
// ElicitationRequest.
type ElicitationResponse struct {
	Action  string         `json:"action"` // "accept", "decline", "cancel"
	Content map[string]any `json:"content,omitempty"`
}
