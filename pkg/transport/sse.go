package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/httpclient"
	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// queuedCall is one entry in an SSE single-session upstream's FIFO
// request queue (spec.md section 4.A: "some SSE servers only tolerate
// one in-flight request at a time; route all calls through a FIFO queue,
// pacing sends by min_request_gap").
type queuedCall struct {
	id     jsonrpc.ID
	method string
	params any
	result chan sendResult
}

type sendResult struct {
	raw json.RawMessage
	err error
}

// SSE is the Server-Sent Events transport: an outbound HTTP POST per
// call and a long-lived GET streaming the event channel that responses
// (and upstream-initiated requests/notifications) arrive on.
type SSE struct {
	name string
	spec upstreamconfig.SSESpec

	client *httpclient.Client

	onRequest      InboundRequestHandler
	onNotification InboundNotificationHandler

	mu      sync.Mutex
	state   State
	pending *pendingTable
	queue   chan *queuedCall
	cancel  context.CancelFunc
}

// NewSSE constructs an SSE transport for the given upstream.
func NewSSE(name string, spec upstreamconfig.SSESpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) *SSE {
	return &SSE{
		name:           name,
		spec:           spec,
		client:         httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: 0})),
		onRequest:      onRequest,
		onNotification: onNotification,
		state:          Disconnected,
		pending:        newPendingTable(),
	}
}

func (s *SSE) Name() string { return s.name }

func (s *SSE) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the event stream and, for single_session upstreams,
// starts the FIFO queue worker that paces outbound POSTs by
// min_request_gap.
func (s *SSE) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected || s.state == Connecting {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	streamCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.spec.SingleSession {
		queueSize := s.spec.MaxQueueSize
		if queueSize <= 0 {
			queueSize = upstreamconfig.DefaultSSEQueueSize
		}
		s.queue = make(chan *queuedCall, queueSize)
		go s.runQueue(streamCtx)
	}
	s.mu.Unlock()

	go s.runStream(streamCtx)

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()
	slog.Info("transport: sse connected", "upstream", s.name, "base_url", s.spec.BaseURL)
	return nil
}

// runStream holds the long-lived GET connection, reconnecting with
// exponential backoff bounded by max_reconnect_delay_ms (and, if
// max_reconnect_attempts is set, giving up and marking Failed).
func (s *SSE) runStream(ctx context.Context) {
	delay := s.spec.ReconnectDelay
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		attempts++
		if s.spec.MaxReconnectAttempts > 0 && attempts > s.spec.MaxReconnectAttempts {
			s.mu.Lock()
			s.state = Failed
			s.mu.Unlock()
			slog.Error("transport: sse giving up after max reconnect attempts", "upstream", s.name, "attempts", attempts)
			s.pending.drain(fmt.Sprintf("upstream %s exceeded max reconnect attempts", s.name))
			return
		}

		s.mu.Lock()
		s.state = Reconnecting
		s.mu.Unlock()
		slog.Warn("transport: sse stream ended, reconnecting", "upstream", s.name, "error", err, "delay", delay)

		if !sleepOrDone(ctx, delay) {
			return
		}
		delay *= 2
		if delay > s.spec.MaxReconnectDelay {
			delay = s.spec.MaxReconnectDelay
		}
	}
}

func (s *SSE) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.spec.BaseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if err := applyAuth(req, s.spec.Auth); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(dataLines) > 0 {
				s.handleEvent(strings.Join(dataLines, "\n"))
				dataLines = nil
			}
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: fields are ignored; this transport
			// only needs the payload.
		}
	}
	return scanner.Err()
}

func (s *SSE) handleEvent(data string) {
	line := []byte(data)
	isReq, isNotif, err := jsonrpc.Sniff(line)
	if err != nil {
		slog.Warn("transport: malformed SSE event, skipping", "upstream", s.name, "error", err)
		return
	}

	switch {
	case isNotif:
		var n jsonrpc.Notification
		if json.Unmarshal(line, &n) == nil && s.onNotification != nil {
			s.onNotification(s.name, &n)
		}
	case isReq:
		var req jsonrpc.Request
		if json.Unmarshal(line, &req) == nil && s.onRequest != nil {
			s.onRequest(context.Background(), s.name, &req)
		}
	default:
		var resp jsonrpc.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("transport: malformed SSE response event, skipping", "upstream", s.name, "error", err)
			return
		}
		if !s.pending.complete(&resp) {
			slog.Warn("transport: sse response for unknown id dropped", "upstream", s.name, "id", resp.ID.String())
		}
	}
}

// runQueue drains queued calls one at a time, pacing by min_request_gap,
// for single-session upstreams.
func (s *SSE) runQueue(ctx context.Context) {
	ticker := time.NewTicker(s.spec.MinRequestGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case call := <-s.queue:
			s.post(ctx, call)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *SSE) post(ctx context.Context, call *queuedCall) {
	req, err := jsonrpc.NewRequest(call.id, call.method, call.params)
	if err != nil {
		call.result <- sendResult{err: mcperr.New(mcperr.KindValidation, "marshal request params", err)}
		return
	}
	body, err := json.Marshal(req)
	if err != nil {
		call.result <- sendResult{err: mcperr.New(mcperr.KindValidation, "marshal request envelope", err)}
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.spec.BaseURL, bytes.NewReader(body))
	if err != nil {
		call.result <- sendResult{err: mcperr.New(mcperr.KindConnection, "build SSE POST request", err)}
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := applyAuth(httpReq, s.spec.Auth); err != nil {
		call.result <- sendResult{err: err}
		return
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		call.result <- sendResult{err: err}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		call.result <- sendResult{err: mcperr.New(mcperr.KindConnection,
			fmt.Sprintf("upstream %s SSE POST returned HTTP %d", s.name, resp.StatusCode), nil)}
		return
	}
	// The real response arrives asynchronously on the event stream; the
	// POST's own body (if any) is discarded per the common SSE-transport
	// convention of accepting with 202/200 and pushing the result later.
	call.result <- sendResult{}
}

func (s *SSE) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if s.State() != Connected && s.State() != Reconnecting {
		return nil, mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", s.name), nil)
	}

	ctx, span := startSendSpan(ctx, "sse", s.name, method)
	defer span.End()

	id := newRequestID()
	deadline := time.Now().Add(s.spec.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	pc := s.pending.register(id, deadline)

	if s.spec.SingleSession {
		call := &queuedCall{id: id, method: method, params: params, result: make(chan sendResult, 1)}
		select {
		case s.queue <- call:
		default:
			s.pending.remove(id)
			return nil, mcperr.New(mcperr.KindQueueFull, fmt.Sprintf("upstream %s request queue is full", s.name), nil)
		}
		select {
		case res := <-call.result:
			if res.err != nil {
				s.pending.remove(id)
				return nil, res.err
			}
		case <-ctx.Done():
			s.pending.remove(id)
			return nil, mcperr.New(mcperr.KindCancelled, "request cancelled", ctx.Err())
		}
		return waitForResponse(ctx, s.pending, pc)
	}

	call := &queuedCall{id: id, method: method, params: params, result: make(chan sendResult, 1)}
	go s.post(ctx, call)
	if res := <-call.result; res.err != nil {
		s.pending.remove(id)
		return nil, res.err
	}
	return waitForResponse(ctx, s.pending, pc)
}

func (s *SSE) SendNotification(ctx context.Context, method string, params any) error {
	if s.State() != Connected && s.State() != Reconnecting {
		return mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", s.name), nil)
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification params", err)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification envelope", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.spec.BaseURL, bytes.NewReader(body))
	if err != nil {
		return mcperr.New(mcperr.KindConnection, "build SSE POST request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := applyAuth(req, s.spec.Auth); err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (s *SSE) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.state = Disconnected
	s.mu.Unlock()
	s.pending.drain(fmt.Sprintf("upstream %s disconnected", s.name))
	return nil
}
