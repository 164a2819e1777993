package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcptypes"
)

type fakeForwarder struct {
	samplingReq   mcptypes.SamplingRequest
	samplingResp  mcptypes.SamplingResponse
	samplingErr   error
	elicitResp    mcptypes.ElicitationResponse
	elicitErr     error
	notifications []string
}

func (f *fakeForwarder) ForwardSampling(ctx context.Context, req mcptypes.SamplingRequest, upstream, downstreamClientID string) (mcptypes.SamplingResponse, error) {
	f.samplingReq = req
	return f.samplingResp, f.samplingErr
}

func (f *fakeForwarder) ForwardElicitation(ctx context.Context, req mcptypes.ElicitationRequest, upstream, downstreamClientID string) (mcptypes.ElicitationResponse, error) {
	return f.elicitResp, f.elicitErr
}

func (f *fakeForwarder) ForwardNotification(method, upstream, downstreamClientID string) {
	f.notifications = append(f.notifications, method)
}

func withClient(id string) ClientIDResolver {
	return func(upstream string) (string, bool) { return id, id != "" }
}

func TestHandleRequest_SamplingRoundTrip(t *testing.T) {
	fwd := &fakeForwarder{samplingResp: mcptypes.SamplingResponse{Role: "assistant", Content: "hi", Model: "test-model"}}
	r := New(withClient("client-1"))
	r.SetForwarder(fwd)

	params, err := json.Marshal(mcptypes.SamplingRequest{Messages: []mcptypes.SamplingMessage{{Role: "user", Content: "hello"}}})
	require.NoError(t, err)
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: jsonrpc.NewStringID("u-42"), Method: "sampling/createMessage", Params: params}

	resp := r.HandleRequest(context.Background(), "upstream-a", req)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, jsonrpc.NewStringID("u-42"), resp.ID)

	var got mcptypes.SamplingResponse
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, "hi", got.Content)

	assert.Equal(t, "upstream-a", fwd.samplingReq.SourceServer)
	assert.Equal(t, "client-1", fwd.samplingReq.OriginalClientID)
}

func TestHandleRequest_NoForwarderConfigured(t *testing.T) {
	r := New(withClient("client-1"))
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: jsonrpc.NewStringID("1"), Method: "sampling/createMessage", Params: json.RawMessage(`{}`)}

	resp := r.HandleRequest(context.Background(), "upstream-a", req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "No request forwarder configured", resp.Error.Message)
}

func TestHandleRequest_NoClientID(t *testing.T) {
	r := New(withClient(""))
	r.SetForwarder(&fakeForwarder{})
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: jsonrpc.NewStringID("1"), Method: "elicitation/create", Params: json.RawMessage(`{}`)}

	resp := r.HandleRequest(context.Background(), "upstream-a", req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "No client ID configured", resp.Error.Message)
}

func TestHandleRequest_UnsupportedMethod(t *testing.T) {
	r := New(withClient("client-1"))
	r.SetForwarder(&fakeForwarder{})
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: jsonrpc.NewStringID("1"), Method: "roots/list", Params: json.RawMessage(`{}`)}

	resp := r.HandleRequest(context.Background(), "upstream-a", req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
}

func TestHandleNotification_ForwardsListChanged(t *testing.T) {
	fwd := &fakeForwarder{}
	r := New(withClient("client-1"))
	r.SetForwarder(fwd)

	r.HandleNotification("upstream-a", &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: "notifications/tools/list_changed"})
	assert.Equal(t, []string{"notifications/tools/list_changed"}, fwd.notifications)
}

func TestHandleNotification_DroppedWithoutForwarder(t *testing.T) {
	r := New(withClient("client-1"))
	// No panic, no forward call possible since forwarder is nil.
	r.HandleNotification("upstream-a", &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: "notifications/tools/list_changed"})
}
