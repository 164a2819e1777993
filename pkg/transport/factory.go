package transport

import (
	"fmt"

	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// Kind names which wire protocol an upstream speaks, used by the
// Upstream Manager to pick a constructor and to tag metrics/logs.
type Kind string

const (
	KindStdio          Kind = "stdio"
	KindHTTP           Kind = "http"
	KindSSE            Kind = "sse"
	KindWebSocket      Kind = "websocket"
	KindStreamableHTTP Kind = "streamable_http"
)

// NewFromStdioSpec, NewFromHTTPSpec, etc. are thin constructors the
// Upstream Manager calls once it has classified an upstream-spec entry
// by its YAML shape. A streamable-HTTP upstream is still declared under
// http_services in the upstream-spec document; spec.Streaming selects
// the NDJSON-multiplexed variant over the default bounded request/response
// exchange.
func NewFromStdioSpec(name string, spec upstreamconfig.StdioSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) Transport {
	return NewStdio(name, spec, onRequest, onNotification)
}

func NewFromHTTPSpec(name string, spec upstreamconfig.HTTPSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) Transport {
	if spec.Streaming {
		return NewStreamableHTTP(name, spec, onRequest, onNotification)
	}
	return NewHTTP(name, spec)
}

func NewFromSSESpec(name string, spec upstreamconfig.SSESpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) Transport {
	return NewSSE(name, spec, onRequest, onNotification)
}

func NewFromWebSocketSpec(name string, spec upstreamconfig.WebSocketSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) Transport {
	return NewWebSocket(name, spec, onRequest, onNotification)
}

// ParseKind validates a kind string read from configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStdio, KindHTTP, KindSSE, KindWebSocket, KindStreamableHTTP:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("transport: unknown kind %q", s)
	}
}
