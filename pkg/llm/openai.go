package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kadirpekel/magictunnel-core/pkg/httpclient"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

// OpenAIProvider speaks the OpenAI-compatible chat/completions contract
// (spec.md section 4.G): POST <endpoint>/chat/completions, Bearer auth,
// roles passed through as-is except Tool, which is remapped to user.
type OpenAIProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *httpclient.Client
}

// NewOpenAIProvider builds an adapter against endpoint (no trailing
// slash) using model as the default and apiKey as the Bearer token.
func NewOpenAIProvider(endpoint, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
	}
}

func (p *OpenAIProvider) Model() string { return p.model }

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIChatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIChatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		messages = append(messages, openAIChatMessage{Role: string(role), Content: m.Content})
	}

	body, err := json.Marshal(openAIChatRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "encode openai request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "build openai request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol,
			fmt.Sprintf("openai: status %d: %s", resp.StatusCode, httpclient.DecodeJSONError(resp)), nil)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol, "decode openai response", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol, "openai: empty choices", nil)
	}

	choice := parsed.Choices[0]
	return ChatResponse{
		Content:    choice.Message.Content,
		Model:      parsed.Model,
		StopReason: openAIStopReason(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func openAIStopReason(finishReason string) StopReason {
	switch finishReason {
	case "length":
		return StopMaxTokens
	case "stop":
		return StopEndTurn
	case "content_filter":
		return StopContentFilter
	case "tool_calls", "function_call":
		return StopToolCall
	default:
		return StopEndTurn
	}
}
