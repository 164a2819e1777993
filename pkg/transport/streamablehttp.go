package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/httpclient"
	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// StreamableHTTP speaks the newline-delimited-JSON variant of MCP's
// "Streamable HTTP" transport: a single long-lived POST whose request
// body and response body are each an NDJSON stream, letting many calls
// share one HTTP exchange instead of one round trip per call. It reuses
// HTTPSpec for its endpoint/auth configuration since, unlike SSE, it has
// no separate event-stream endpoint.
type StreamableHTTP struct {
	name string
	spec upstreamconfig.HTTPSpec

	onRequest      InboundRequestHandler
	onNotification InboundNotificationHandler

	client *httpclient.Client

	mu      sync.Mutex
	state   State
	pending *pendingTable
	outbox  chan []byte
	cancel  context.CancelFunc
}

// NewStreamableHTTP constructs a streamable-HTTP transport for the given
// upstream.
func NewStreamableHTTP(name string, spec upstreamconfig.HTTPSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) *StreamableHTTP {
	return &StreamableHTTP{
		name:           name,
		spec:           spec,
		onRequest:      onRequest,
		onNotification: onNotification,
		client:         httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: 0})),
		state:          Disconnected,
		pending:        newPendingTable(),
	}
}

func (sh *StreamableHTTP) Name() string { return sh.name }

func (sh *StreamableHTTP) State() State {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state
}

// Connect opens the long-lived multiplexed exchange: a pipe feeds the
// request body from an outbound channel, and the response body is
// line-split in a background goroutine exactly like the stdio reader.
func (sh *StreamableHTTP) Connect(ctx context.Context) error {
	sh.mu.Lock()
	if sh.state == Connected || sh.state == Connecting {
		sh.mu.Unlock()
		return nil
	}
	sh.state = Connecting
	streamCtx, cancel := context.WithCancel(context.Background())
	sh.cancel = cancel
	sh.outbox = make(chan []byte, 256)
	sh.mu.Unlock()

	pr, pw := newChanPipe(streamCtx, sh.outbox)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, sh.spec.BaseURL, pr)
	if err != nil {
		cancel()
		sh.setState(Failed)
		return mcperr.New(mcperr.KindConnection, "build streamable-http request", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Accept", "application/x-ndjson")
	if err := applyAuth(req, sh.spec.Auth); err != nil {
		cancel()
		sh.setState(Failed)
		return err
	}

	// The body streams from the outbox for the life of the exchange, so it
	// goes to a plain http.Client: httpclient.Client.Do reads the whole
	// body before sending.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		cancel()
		sh.setState(Failed)
		return mcperr.New(mcperr.KindConnection, "open streamable-http exchange", err)
	}

	sh.setState(Connected)
	go sh.pumpResponse(resp, pw)
	slog.Info("transport: streamable-http connected", "upstream", sh.name, "base_url", sh.spec.BaseURL)
	return nil
}

func (sh *StreamableHTTP) setState(st State) {
	sh.mu.Lock()
	sh.state = st
	sh.mu.Unlock()
}

func (sh *StreamableHTTP) pumpResponse(resp *http.Response, pw *chanPipeWriter) {
	defer resp.Body.Close()
	defer pw.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sh.handleLine(append([]byte(nil), line...))
	}

	sh.setState(Failed)
	slog.Warn("transport: streamable-http exchange ended", "upstream", sh.name, "error", scanner.Err())
	sh.pending.drain(fmt.Sprintf("upstream %s streamable-http exchange ended", sh.name))
}

func (sh *StreamableHTTP) handleLine(line []byte) {
	isReq, isNotif, err := jsonrpc.Sniff(line)
	if err != nil {
		slog.Warn("transport: malformed NDJSON line, skipping", "upstream", sh.name, "error", err)
		return
	}

	switch {
	case isNotif:
		var n jsonrpc.Notification
		if json.Unmarshal(line, &n) == nil && sh.onNotification != nil {
			sh.onNotification(sh.name, &n)
		}
	case isReq:
		var req jsonrpc.Request
		if json.Unmarshal(line, &req) == nil && sh.onRequest != nil {
			resp := sh.onRequest(context.Background(), sh.name, &req)
			if resp != nil {
				sh.postResponse(resp)
			}
		}
	default:
		var resp jsonrpc.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("transport: malformed NDJSON response, skipping", "upstream", sh.name, "error", err)
			return
		}
		if !sh.pending.complete(&resp) {
			slog.Warn("transport: streamable-http response for unknown id dropped", "upstream", sh.name, "id", resp.ID.String())
		}
	}
}

// postResponse sends a response to an upstream-initiated request to the
// companion response endpoint, per spec.md section 4.A: the main NDJSON
// exchange only ever carries this side's outbound calls, so replies to
// reverse requests are delivered out of band.
func (sh *StreamableHTTP) postResponse(resp *jsonrpc.Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("transport: marshal companion response failed", "upstream", sh.name, "error", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, sh.spec.BaseURL+"/mcp/streamable/response", bytes.NewReader(body))
	if err != nil {
		slog.Error("transport: build companion response request failed", "upstream", sh.name, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if err := applyAuth(req, sh.spec.Auth); err != nil {
		slog.Error("transport: apply auth to companion response failed", "upstream", sh.name, "error", err)
		return
	}
	httpResp, err := sh.client.Do(req)
	if err != nil {
		slog.Warn("transport: companion response POST failed", "upstream", sh.name, "error", err)
		return
	}
	defer httpResp.Body.Close()
}

func (sh *StreamableHTTP) writeRaw(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("transport: marshal outbound NDJSON message failed", "upstream", sh.name, "error", err)
		return
	}
	sh.mu.Lock()
	outbox := sh.outbox
	sh.mu.Unlock()
	select {
	case outbox <- data:
	default:
		slog.Warn("transport: streamable-http outbox full, dropping message", "upstream", sh.name)
	}
}

func (sh *StreamableHTTP) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if sh.State() != Connected {
		return nil, mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", sh.name), nil)
	}

	ctx, span := startSendSpan(ctx, "streamable-http", sh.name, method)
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

	pc := sh.pending.register(id, deadline)
	sh.writeRaw(req)

	return waitForResponse(ctx, sh.pending, pc)
}

func (sh *StreamableHTTP) SendNotification(ctx context.Context, method string, params any) error {
	if sh.State() != Connected {
		return mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", sh.name), nil)
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification params", err)
	}
	sh.writeRaw(n)
	return nil
}

func (sh *StreamableHTTP) Disconnect(ctx context.Context) error {
	sh.mu.Lock()
	if sh.cancel != nil {
		sh.cancel()
	}
	sh.state = Disconnected
	sh.mu.Unlock()
	sh.pending.drain(fmt.Sprintf("upstream %s disconnected", sh.name))
	return nil
}

// chanPipeWriter/newChanPipe adapt an outbound []byte channel to the
// io.Reader http.NewRequestWithContext needs for a streaming request
// body, without buffering the whole exchange in memory.
type chanPipeWriter struct{ pw *io.PipeWriter }

func (w *chanPipeWriter) Close() error { return w.pw.Close() }

func newChanPipe(ctx context.Context, outbox <-chan []byte) (*io.PipeReader, *chanPipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		for {
			select {
			case data, ok := <-outbox:
				if !ok {
					pw.Close()
					return
				}
				if _, err := pw.Write(append(data, '\n')); err != nil {
					return
				}
			case <-ctx.Done():
				pw.Close()
				return
			}
		}
	}()
	return pr, &chanPipeWriter{pw: pw}
}
