// Package transport implements the four wire transports an upstream MCP
// server may speak, plus the "streamable HTTP" NDJSON variant, behind one
// common interface (spec.md section 4.A). Every implementation owns its
// own connection lifecycle and its own pending-call correlation table;
// the shared state machine and PendingCall bookkeeping live here so each
// transport only has to implement the parts that differ.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

var tracer = otel.Tracer("github.com/kadirpekel/magictunnel-core/pkg/transport")

// State is a transport's connection state, matching the state machine in
// spec.md section 4.A verbatim.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// InboundRequestHandler is invoked whenever a transport parses an inbound
// JSON-RPC *request* (not a response) from its upstream — i.e. an
// upstream-initiated bidirectional call. The Bidirectional Router
// (pkg/router) implements this.
type InboundRequestHandler func(ctx context.Context, upstream string, req *jsonrpc.Request) *jsonrpc.Response

// InboundNotificationHandler is invoked for upstream-initiated
// notifications (method-only, no id).
type InboundNotificationHandler func(upstream string, n *jsonrpc.Notification)

// Transport is the operation every upstream connection exposes,
// regardless of wire shape (spec.md section 4.A: "Each transport exposes
// one operation: send(method, params) -> response | error, plus
// lifecycle connect()/disconnect()").
type Transport interface {
	// Connect establishes the connection. Calling Connect while already
	// Connected is a no-op.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down, completing every outstanding
	// PendingCall with a KindDisconnected error (spec.md Testable
	// Property 8) and refusing new Send calls until Connect succeeds
	// again.
	Disconnect(ctx context.Context) error

	// Send issues a JSON-RPC request and waits for its matched response,
	// or until ctx is cancelled. A zero-id notification (no response
	// expected) should use SendNotification instead.
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)

	// SendNotification issues a fire-and-forget JSON-RPC notification.
	SendNotification(ctx context.Context, method string, params any) error

	// State reports the current connection state.
	State() State

	// Name identifies the upstream this transport serves.
	Name() string
}

// pendingCall is the bookkeeping entry for one outstanding request,
// after spec.md section 3's PendingCall: request id, response channel and
// deadline. No originating downstream id is stored here; pkg/upstream
// records the last downstream client per upstream instead.
type pendingCall struct {
	id       jsonrpc.ID
	respCh   chan pendingResult
	deadline time.Time
}

// pendingResult is what arrives on a pendingCall's channel: either a
// genuine JSON-RPC response from the upstream, or a forced error (e.g.
// drain-on-disconnect) that must keep its own mcperr.Kind rather than
// being folded into KindMCP.
type pendingResult struct {
	resp *jsonrpc.Response
	err  *mcperr.Error
}

// pendingTable is the {id -> pendingCall} map shared by every transport
// implementation. Spec.md section 5 requires short critical sections: the
// lock is only ever held across map mutation, never across I/O.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

func (t *pendingTable) register(id jsonrpc.ID, deadline time.Time) *pendingCall {
	pc := &pendingCall{id: id, respCh: make(chan pendingResult, 1), deadline: deadline}
	t.mu.Lock()
	t.calls[id.String()] = pc
	t.mu.Unlock()
	return pc
}

func (t *pendingTable) remove(id jsonrpc.ID) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.calls[id.String()]
	if ok {
		delete(t.calls, id.String())
	}
	return pc, ok
}

// complete resolves the pending call for resp.ID, if any. It returns
// false if no call was outstanding for that id (a late or unsolicited
// response), which callers should log and drop per spec.md section 5
// ("its response, if it arrives later, is dropped with a warning").
func (t *pendingTable) complete(resp *jsonrpc.Response) bool {
	pc, ok := t.remove(resp.ID)
	if !ok {
		return false
	}
	pc.respCh <- pendingResult{resp: resp}
	return true
}

// drain completes every outstanding call with a KindDisconnected error,
// used on transport teardown (spec.md Testable Property 8).
func (t *pendingTable) drain(reason string) {
	t.mu.Lock()
	calls := make([]*pendingCall, 0, len(t.calls))
	for id, pc := range t.calls {
		calls = append(calls, pc)
		delete(t.calls, id)
	}
	t.mu.Unlock()

	for _, pc := range calls {
		result := pendingResult{err: mcperr.New(mcperr.KindDisconnected, reason, nil)}
		select {
		case pc.respCh <- result:
		default:
		}
	}
}

// newRequestID generates a fresh proxy-side request id. Spec.md section 3
// requires these be UUIDs unique within one upstream's lifetime.
func newRequestID() jsonrpc.ID {
	return jsonrpc.NewStringID(uuid.NewString())
}

// waitForResponse blocks until pc.respCh fires, ctx is cancelled, or the
// call's deadline elapses, whichever comes first — "Timeout purity"
// (Testable Property 2): on timeout the entry is already gone from the
// table (the caller passes the table in to remove it), and Timeout is
// returned exactly once.
func waitForResponse(ctx context.Context, table *pendingTable, pc *pendingCall) (json.RawMessage, error) {
	timer := time.NewTimer(time.Until(pc.deadline))
	defer timer.Stop()

	select {
	case result := <-pc.respCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, mcperr.New(mcperr.KindMCP, result.resp.Error.Message, nil)
		}
		return result.resp.Result, nil
	case <-timer.C:
		table.remove(pc.id)
		return nil, mcperr.New(mcperr.KindTimeout, fmt.Sprintf("request %s timed out", pc.id), nil)
	case <-ctx.Done():
		table.remove(pc.id)
		return nil, mcperr.New(mcperr.KindCancelled, "request cancelled", ctx.Err())
	}
}

// startSendSpan opens a tracing span around one Send call, following the
// attribute-naming convention the teacher's pkg/llms/openai.go uses for
// its own otel spans.
func startSendSpan(ctx context.Context, transportKind, upstream, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "transport.send",
		trace.WithAttributes(
			attribute.String("mcp.transport", transportKind),
			attribute.String("mcp.upstream", upstream),
			attribute.String("mcp.method", method),
		))
}
