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

func TestOpenAIProvider_Complete_BuildsRequestAndParsesResponse(t *testing.T) {
	var gotBody openAIChatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(openAIChatResponse{
			Model: "gpt-test",
			Choices: []struct {
				Message      openAIChatMessage `json:"message"`
				FinishReason string            `json:"finish_reason"`
			}{
				{Message: openAIChatMessage{Role: "assistant", Content: "hello"}, FinishReason: "stop"},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-test")
	resp, err := p.Complete(context.Background(), ChatRequest{
		System:   "be terse",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, StopEndTurn, resp.StopReason)
}

func TestOpenAIProvider_Complete_RemapsToolRole(t *testing.T) {
	var gotBody openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message      openAIChatMessage `json:"message"`
				FinishReason string            `json:"finish_reason"`
			}{{Message: openAIChatMessage{Content: "ok"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleTool, Content: "tool output"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
}

func TestOpenAIProvider_Complete_ErrorStatusMapsToProtocolKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindProtocol, mcperr.KindOf(err))
}

func TestOpenAIProvider_Complete_EmptyChoicesIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIChatResponse{})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m")
	_, err := p.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindProtocol, mcperr.KindOf(err))
}

func TestOpenAIStopReason(t *testing.T) {
	assert.Equal(t, StopMaxTokens, openAIStopReason("length"))
	assert.Equal(t, StopContentFilter, openAIStopReason("content_filter"))
	assert.Equal(t, StopToolCall, openAIStopReason("tool_calls"))
	assert.Equal(t, StopEndTurn, openAIStopReason("anything_else"))
}
