// Package upstreamconfig loads the declarative upstream-spec YAML document
// described in spec.md sections 4.B and 6: the set of MCP servers the
// Upstream Manager should start, one of four shapes per upstream
// (child-process, HTTP, SSE, or WebSocket).
package upstreamconfig

import "time"

// Document is the root of the upstream-spec YAML file.
type Document struct {
	MCPServers  map[string]StdioSpec     `yaml:"mcpServers,omitempty"`
	HTTPServices map[string]HTTPSpec     `yaml:"http_services,omitempty"`
	SSEServices  map[string]SSESpec      `yaml:"sse_services,omitempty"`
	WebSocketServices map[string]WebSocketSpec `yaml:"websocket_services,omitempty"`
}

// StdioSpec configures a child-process upstream.
type StdioSpec struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty"`
}

// AuthMode names an authentication mode for HTTP-family transports.
type AuthMode string

const (
	AuthNone       AuthMode = "none"
	AuthBearer     AuthMode = "bearer"
	AuthAPIKey     AuthMode = "api_key"
	AuthBasic      AuthMode = "basic"
	AuthQueryParam AuthMode = "query_param"
)

// Auth carries credentials for whichever AuthMode is selected. Only the
// fields relevant to Mode need be set.
type Auth struct {
	Mode         AuthMode `yaml:"mode,omitempty"`
	Token        string   `yaml:"token,omitempty"`
	HeaderName   string   `yaml:"header_name,omitempty"`
	APIKey       string   `yaml:"api_key,omitempty"`
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	QueryParam   string   `yaml:"query_param,omitempty"`
}

// HTTPSpec configures an HTTP upstream. By default calls are a single
// bounded request/response exchange; setting Streaming selects the
// NDJSON-multiplexed "Streamable HTTP" variant instead, where many calls
// share one long-lived POST.
type HTTPSpec struct {
	BaseURL   string        `yaml:"base_url"`
	Auth      Auth          `yaml:"auth,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Retries   int           `yaml:"retries,omitempty"`
	Streaming bool          `yaml:"streaming,omitempty"`
}

// SSESpec configures an SSE upstream, optionally single-session.
type SSESpec struct {
	BaseURL              string        `yaml:"base_url"`
	Auth                 Auth          `yaml:"auth,omitempty"`
	SingleSession        bool          `yaml:"single_session,omitempty"`
	MaxQueueSize         int           `yaml:"max_queue_size,omitempty"`
	MinRequestGap        time.Duration `yaml:"min_request_gap,omitempty"`
	RequestTimeout       time.Duration `yaml:"request_timeout,omitempty"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay_ms,omitempty"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay_ms,omitempty"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts,omitempty"` // 0 = unlimited
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval,omitempty"`     // 0 disables
}

// WebSocketSpec configures a full-duplex WebSocket upstream.
type WebSocketSpec struct {
	URL                  string            `yaml:"url"`
	Subprotocols         []string          `yaml:"subprotocols,omitempty"`
	AuthHeaders          map[string]string `yaml:"auth_headers,omitempty"`
	EnableCompression    bool              `yaml:"enable_compression,omitempty"`
	AutoReconnect        bool              `yaml:"auto_reconnect,omitempty"`
	MaxReconnectAttempts int               `yaml:"max_reconnect_attempts,omitempty"`
	ReconnectDelay       time.Duration     `yaml:"reconnect_delay,omitempty"`
}

// Defaults applied when a spec omits a field, matching spec.md's stated
// defaults.
const (
	DefaultSSEQueueSize      = 16
	DefaultSSEMinRequestGap  = 50 * time.Millisecond
	DefaultReconnectDelay    = 500 * time.Millisecond
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHTTPRetries       = 3
)

// ApplyDefaults fills in zero-valued fields with the documented defaults.
// Called once after YAML decode so every downstream consumer sees a fully
// populated spec.
func (d *Document) ApplyDefaults() {
	for name, spec := range d.SSEServices {
		if spec.MaxQueueSize == 0 {
			spec.MaxQueueSize = DefaultSSEQueueSize
		}
		if spec.MinRequestGap == 0 {
			spec.MinRequestGap = DefaultSSEMinRequestGap
		}
		if spec.RequestTimeout == 0 {
			spec.RequestTimeout = DefaultRequestTimeout
		}
		if spec.ReconnectDelay == 0 {
			spec.ReconnectDelay = DefaultReconnectDelay
		}
		if spec.MaxReconnectDelay == 0 {
			spec.MaxReconnectDelay = DefaultMaxReconnectDelay
		}
		d.SSEServices[name] = spec
	}
	for name, spec := range d.HTTPServices {
		if spec.Timeout == 0 {
			spec.Timeout = DefaultRequestTimeout
		}
		if spec.Retries == 0 {
			spec.Retries = DefaultHTTPRetries
		}
		d.HTTPServices[name] = spec
	}
	for name, spec := range d.WebSocketServices {
		if spec.ReconnectDelay == 0 {
			spec.ReconnectDelay = DefaultReconnectDelay
		}
		d.WebSocketServices[name] = spec
	}
}
