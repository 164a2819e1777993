package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kadirpekel/magictunnel-core/pkg/httpclient"
	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// HTTP is the stateless request/response transport (spec.md section
// 4.A): one POST per call, no persistent connection, retried on
// transport/connection failure only — never on an MCP-level error reply,
// which counts as the HTTP exchange succeeding.
type HTTP struct {
	name string
	spec upstreamconfig.HTTPSpec

	client *httpclient.Client

	mu    sync.Mutex
	state State
}

// NewHTTP constructs an HTTP transport for the given upstream.
func NewHTTP(name string, spec upstreamconfig.HTTPSpec) *HTTP {
	return &HTTP{
		name: name,
		spec: spec,
		client: httpclient.New(
			httpclient.WithMaxRetries(spec.Retries),
			httpclient.WithHTTPClient(&http.Client{Timeout: spec.Timeout}),
			httpclient.WithRetryStrategy(func(status int) httpclient.RetryStrategy {
				// Only connection-level failures are retried; any HTTP
				// status that made it back, even 5xx, is the upstream
				// having answered, so surface it rather than retry.
				return httpclient.NoRetry
			}),
		),
		state: Disconnected,
	}
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Connect is a no-op beyond marking the transport Connected: HTTP has no
// persistent session to establish.
func (h *HTTP) Connect(ctx context.Context) error {
	h.mu.Lock()
	h.state = Connected
	h.mu.Unlock()
	return nil
}

func (h *HTTP) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	h.state = Disconnected
	h.mu.Unlock()
	return nil
}

func (h *HTTP) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if h.State() != Connected {
		return nil, mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", h.name), nil)
	}

	ctx, span := startSendSpan(ctx, "http", h.name, method)
	defer span.End()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	id := newRequestID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperr.New(mcperr.KindValidation, "marshal request params", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, mcperr.New(mcperr.KindValidation, "marshal request envelope", err)
	}

	httpReq, err := h.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mcperr.New(mcperr.KindConnection,
			fmt.Sprintf("upstream %s returned HTTP %d: %s", h.name, resp.StatusCode, httpclient.DecodeJSONError(resp)), nil)
	}

	var rpcResp jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, mcperr.New(mcperr.KindProtocol, "decode JSON-RPC response", err)
	}
	if rpcResp.Error != nil {
		return nil, mcperr.New(mcperr.KindMCP, rpcResp.Error.Message, nil)
	}
	return rpcResp.Result, nil
}

// SendNotification posts a notification; HTTP transports discard any
// response body since a notification has nothing to correlate a reply
// against.
func (h *HTTP) SendNotification(ctx context.Context, method string, params any) error {
	if h.State() != Connected {
		return mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", h.name), nil)
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification params", err)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification envelope", err)
	}
	httpReq, err := h.newRequest(ctx, body)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (h *HTTP) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.spec.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, mcperr.New(mcperr.KindValidation, "build HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := applyAuth(req, h.spec.Auth); err != nil {
		return nil, err
	}
	return req, nil
}

// applyAuth attaches credentials to req per the upstream-spec Auth
// configuration, shared between the HTTP and SSE transports.
func applyAuth(req *http.Request, auth upstreamconfig.Auth) error {
	switch auth.Mode {
	case "", upstreamconfig.AuthNone:
		return nil
	case upstreamconfig.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case upstreamconfig.AuthAPIKey:
		headerName := auth.HeaderName
		if headerName == "" {
			headerName = "X-API-Key"
		}
		req.Header.Set(headerName, auth.APIKey)
	case upstreamconfig.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case upstreamconfig.AuthQueryParam:
		q := req.URL.Query()
		param := auth.QueryParam
		if param == "" {
			param = "api_key"
		}
		q.Set(param, auth.Token)
		req.URL.RawQuery = q.Encode()
	default:
		return mcperr.New(mcperr.KindValidation, fmt.Sprintf("unknown auth mode %q", auth.Mode), nil)
	}
	return nil
}
