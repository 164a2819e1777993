// Package router implements the Bidirectional Request Router
// (spec.md section 4.C): the dispatch point for JSON-RPC requests an
// upstream MCP server initiates toward the proxy — sampling, elicitation,
// and list-changed notifications — relayed back to whichever downstream
// client caused the original invocation.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcptypes"
)

// Forwarder is the capability-style handle the router dispatches
// through, installed once at startup (spec.md section 9's "Forwarder
// cycle" note: a higher layer owns both the router and the forwarder, so
// the router only ever sees this abstract sink).
type Forwarder interface {
	// ForwardSampling relays an upstream-initiated sampling request to
	// the downstream client identified by downstreamClientID and returns
	// its response.
	ForwardSampling(ctx context.Context, req mcptypes.SamplingRequest, upstream, downstreamClientID string) (mcptypes.SamplingResponse, error)

	// ForwardElicitation relays an upstream-initiated elicitation
	// request to the downstream client.
	ForwardElicitation(ctx context.Context, req mcptypes.ElicitationRequest, upstream, downstreamClientID string) (mcptypes.ElicitationResponse, error)

	// ForwardNotification relays a fire-and-forget upstream notification
	// (e.g. a list-changed event) to the downstream client. There is no
	// response to send back.
	ForwardNotification(method, upstream, downstreamClientID string)
}

// ClientIDResolver maps an upstream name to the downstream client id
// that owns the in-flight call context for it. The Upstream Manager
// implements this by tracking which downstream session most recently
// invoked a tool on that upstream.
type ClientIDResolver func(upstream string) (clientID string, ok bool)

const (
	methodSamplingCreateMessage      = "sampling/createMessage"
	methodElicitationCreate          = "elicitation/create"
	methodElicitationRequest         = "elicitation/request"
	methodNotifyToolsListChanged     = "notifications/tools/list_changed"
	methodNotifyResourcesListChanged = "notifications/resources/list_changed"
	methodNotifyPromptsListChanged   = "notifications/prompts/list_changed"
)

// Router demultiplexes upstream-initiated JSON-RPC requests by method
// and forwards them through the configured Forwarder.
type Router struct {
	forwarder Forwarder
	resolveID ClientIDResolver
}

// New builds a Router with no forwarder configured; SetForwarder must be
// called before any upstream-initiated request can be relayed, matching
// the "pluggable Forwarder set once at startup" phrasing in spec.md
// section 4.C.
func New(resolveID ClientIDResolver) *Router {
	return &Router{resolveID: resolveID}
}

// SetForwarder installs the Forwarder. Safe to call exactly once at
// startup; the router holds no lock around this field because ownership
// transfers to the router before it starts dispatching.
func (r *Router) SetForwarder(f Forwarder) {
	r.forwarder = f
}

// HandleRequest is the transport.InboundRequestHandler implementation:
// invoked whenever a Transport Client parses an inbound JSON-RPC request
// (not a response) from upstream. It calls the Forwarder synchronously
// and returns its reply; the transports call it from their reader loops,
// so a transport reads nothing further from that upstream until a
// forwarded call (for example an LLM sampling round trip) returns.
func (r *Router) HandleRequest(ctx context.Context, upstream string, req *jsonrpc.Request) *jsonrpc.Response {
	clientID, hasClient := r.resolveID(upstream)

	switch req.Method {
	case methodSamplingCreateMessage:
		return r.handleSampling(ctx, upstream, clientID, hasClient, req)
	case methodElicitationCreate, methodElicitationRequest:
		return r.handleElicitation(ctx, upstream, clientID, hasClient, req)
	default:
		slog.Warn("router: unsupported upstream-initiated method", "upstream", upstream, "method", req.Method)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "Unsupported method")
	}
}

// HandleNotification is the transport.InboundNotificationHandler
// implementation: upstream-initiated notifications carry no id and
// expect no response.
func (r *Router) HandleNotification(upstream string, n *jsonrpc.Notification) {
	switch n.Method {
	case methodNotifyToolsListChanged, methodNotifyResourcesListChanged, methodNotifyPromptsListChanged:
		clientID, hasClient := r.resolveID(upstream)
		if r.forwarder == nil {
			slog.Warn("router: dropping notification, no forwarder configured", "upstream", upstream, "method", n.Method)
			return
		}
		if !hasClient {
			slog.Warn("router: dropping notification, no client id for upstream", "upstream", upstream, "method", n.Method)
			return
		}
		r.forwarder.ForwardNotification(n.Method, upstream, clientID)
	default:
		slog.Debug("router: ignoring unrecognized upstream notification", "upstream", upstream, "method", n.Method)
	}
}

func (r *Router) handleSampling(ctx context.Context, upstream, clientID string, hasClient bool, req *jsonrpc.Request) *jsonrpc.Response {
	if r.forwarder == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "No request forwarder configured")
	}
	if !hasClient {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "No client ID configured")
	}

	var params mcptypes.SamplingRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid sampling/createMessage params: "+err.Error())
	}
	params.SourceServer = upstream
	params.OriginalClientID = clientID

	result, err := r.forwarder.ForwardSampling(ctx, params, upstream, clientID)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "marshal sampling response: "+err.Error())
	}
	return resp
}

func (r *Router) handleElicitation(ctx context.Context, upstream, clientID string, hasClient bool, req *jsonrpc.Request) *jsonrpc.Response {
	if r.forwarder == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "No request forwarder configured")
	}
	if !hasClient {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "No client ID configured")
	}

	var params mcptypes.ElicitationRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid elicitation params: "+err.Error())
	}
	params.SourceServer = upstream
	params.OriginalClientID = clientID

	result, err := r.forwarder.ForwardElicitation(ctx, params, upstream, clientID)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "marshal elicitation response: "+err.Error())
	}
	return resp
}
