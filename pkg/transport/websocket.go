package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// WebSocket is the full-duplex transport (spec.md section 4.A): one
// connection carries both directions, so unlike stdio/HTTP/SSE a single
// reader loop must distinguish inbound requests, notifications, and
// responses to calls this side issued.
type WebSocket struct {
	name string
	spec upstreamconfig.WebSocketSpec

	onRequest      InboundRequestHandler
	onNotification InboundNotificationHandler

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending *pendingTable
	outbox  chan []byte
	done    chan struct{}
}

// NewWebSocket constructs a WebSocket transport for the given upstream.
func NewWebSocket(name string, spec upstreamconfig.WebSocketSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) *WebSocket {
	return &WebSocket{
		name:           name,
		spec:           spec,
		onRequest:      onRequest,
		onNotification: onNotification,
		state:          Disconnected,
		pending:        newPendingTable(),
	}
}

func (w *WebSocket) Name() string { return w.name }

func (w *WebSocket) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Connect dials the upstream once and, if auto_reconnect is set, keeps
// redialing on unexpected closure with reconnect_delay between attempts.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state == Connected || w.state == Connecting {
		w.mu.Unlock()
		return nil
	}
	w.state = Connecting
	w.mu.Unlock()

	if err := w.dial(ctx); err != nil {
		w.mu.Lock()
		w.state = Failed
		w.mu.Unlock()
		return err
	}

	if w.spec.AutoReconnect {
		go w.reconnectLoop()
	}
	return nil
}

func (w *WebSocket) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		Subprotocols:     w.spec.Subprotocols,
		EnableCompression: w.spec.EnableCompression,
	}
	header := http.Header{}
	for k, v := range w.spec.AuthHeaders {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(ctx, w.spec.URL, header)
	if err != nil {
		return mcperr.New(mcperr.KindConnection, fmt.Sprintf("dial websocket upstream %s", w.name), err)
	}

	w.mu.Lock()
	w.conn = conn
	w.outbox = make(chan []byte, 256)
	w.done = make(chan struct{})
	w.state = Connected
	w.mu.Unlock()

	go w.pumpWriter()
	go w.pumpReader()
	slog.Info("transport: websocket connected", "upstream", w.name, "url", w.spec.URL)
	return nil
}

func (w *WebSocket) reconnectLoop() {
	attempts := 0
	for {
		w.mu.Lock()
		done := w.done
		w.mu.Unlock()
		<-done

		w.mu.Lock()
		if w.state == Disconnected {
			w.mu.Unlock()
			return
		}
		w.state = Reconnecting
		w.mu.Unlock()

		attempts++
		if w.spec.MaxReconnectAttempts > 0 && attempts > w.spec.MaxReconnectAttempts {
			w.mu.Lock()
			w.state = Failed
			w.mu.Unlock()
			w.pending.drain(fmt.Sprintf("upstream %s exceeded max reconnect attempts", w.name))
			return
		}

		slog.Warn("transport: websocket disconnected, reconnecting", "upstream", w.name, "attempt", attempts)
		time.Sleep(w.spec.ReconnectDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.dial(ctx)
		cancel()
		if err != nil {
			slog.Warn("transport: websocket reconnect attempt failed", "upstream", w.name, "error", err)
			w.mu.Lock()
			done := make(chan struct{})
			close(done)
			w.done = done
			w.mu.Unlock()
			continue
		}
	}
}

func (w *WebSocket) pumpWriter() {
	w.mu.Lock()
	conn, outbox, done := w.conn, w.outbox, w.done
	w.mu.Unlock()
	for {
		select {
		case msg, ok := <-outbox:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("transport: websocket write failed", "upstream", w.name, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (w *WebSocket) pumpReader() {
	w.mu.Lock()
	conn, done := w.conn, w.done
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		if w.state != Disconnected {
			w.state = Failed
		}
		w.mu.Unlock()
		select {
		case <-done:
		default:
			close(done)
		}
		w.pending.drain(fmt.Sprintf("upstream %s connection lost", w.name))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("transport: websocket read failed", "upstream", w.name, "error", err)
			return
		}
		w.handleMessage(data)
	}
}

func (w *WebSocket) handleMessage(data []byte) {
	isReq, isNotif, err := jsonrpc.Sniff(data)
	if err != nil {
		slog.Warn("transport: malformed websocket message, skipping", "upstream", w.name, "error", err)
		return
	}

	switch {
	case isNotif:
		var n jsonrpc.Notification
		if json.Unmarshal(data, &n) == nil && w.onNotification != nil {
			w.onNotification(w.name, &n)
		}
	case isReq:
		var req jsonrpc.Request
		if json.Unmarshal(data, &req) == nil && w.onRequest != nil {
			resp := w.onRequest(context.Background(), w.name, &req)
			if resp != nil {
				w.writeRaw(resp)
			}
		}
	default:
		var resp jsonrpc.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("transport: malformed websocket response, skipping", "upstream", w.name, "error", err)
			return
		}
		if !w.pending.complete(&resp) {
			slog.Warn("transport: websocket response for unknown id dropped", "upstream", w.name, "id", resp.ID.String())
		}
	}
}

func (w *WebSocket) writeRaw(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("transport: marshal outbound websocket message failed", "upstream", w.name, "error", err)
		return
	}
	w.mu.Lock()
	outbox := w.outbox
	w.mu.Unlock()
	select {
	case outbox <- data:
	default:
		slog.Warn("transport: websocket outbox full, dropping message", "upstream", w.name)
	}
}

func (w *WebSocket) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if w.State() != Connected {
		return nil, mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", w.name), nil)
	}

	ctx, span := startSendSpan(ctx, "websocket", w.name, method)
	defer span.End()

	id := newRequestID()
	deadline := time.Now().Add(defaultCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperr.New(mcperr.KindValidation, "marshal request params", err)
	}

	pc := w.pending.register(id, deadline)
	w.writeRaw(req)

	return waitForResponse(ctx, w.pending, pc)
}

func (w *WebSocket) SendNotification(ctx context.Context, method string, params any) error {
	if w.State() != Connected {
		return mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", w.name), nil)
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification params", err)
	}
	w.writeRaw(n)
	return nil
}

func (w *WebSocket) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.state = Disconnected
	w.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	w.pending.drain(fmt.Sprintf("upstream %s disconnected", w.name))
	return nil
}
