package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

func TestAnthropicProvider_Complete_SetsAuthHeaders(t *testing.T) {
	var gotVersion, gotKey string
	var gotBody anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Model:      "claude-test",
			StopReason: "end_turn",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "hi there"}},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "ak-test", "claude-test")
	resp, err := p.Complete(context.Background(), ChatRequest{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "ak-test", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "be brief", gotBody.System)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, StopEndTurn, resp.StopReason)
}

func TestAnthropicProvider_Complete_HoistsSystemRoleMessage(t *testing.T) {
	var gotBody anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(anthropicResponse{StopReason: "end_turn"})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{
		System: "outer",
		Messages: []Message{
			{Role: RoleSystem, Content: "inner"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "outer\ninner", gotBody.System)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
}

func TestAnthropicProvider_Complete_DefaultsMaxTokens(t *testing.T) {
	var gotBody anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(anthropicResponse{StopReason: "end_turn"})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, 1024, gotBody.MaxTokens)
}

func TestAnthropicProvider_Complete_ErrorStatusMapsToProtocolKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindProtocol, mcperr.KindOf(err))
}

func TestAnthropicStopReason(t *testing.T) {
	assert.Equal(t, StopMaxTokens, anthropicStopReason("max_tokens"))
	assert.Equal(t, StopToolCall, anthropicStopReason("tool_use"))
	assert.Equal(t, StopSequence, anthropicStopReason("stop_sequence"))
	assert.Equal(t, StopEndTurn, anthropicStopReason("unknown"))
}
