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

// AnthropicProvider speaks the Anthropic Messages API (spec.md section
// 4.G): POST <endpoint>/v1/messages, x-api-key header,
// anthropic-version: 2023-06-01, System role hoisted to the top-level
// "system" field.
type AnthropicProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *httpclient.Client
}

func NewAnthropicProvider(endpoint, apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders)),
	}
}

func (p *AnthropicProvider) Model() string { return p.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system := req.System
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		messages = append(messages, anthropicMessage{Role: string(role), Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequest{
		Model:         p.model,
		System:        system,
		Messages:      messages,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	})
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "encode anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "build anthropic request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol,
			fmt.Sprintf("anthropic: status %d: %s", resp.StatusCode, httpclient.DecodeJSONError(resp)), nil)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol, "decode anthropic response", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return ChatResponse{
		Content:    text,
		Model:      parsed.Model,
		StopReason: anthropicStopReason(parsed.StopReason),
		Usage: &Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

func anthropicStopReason(reason string) StopReason {
	switch reason {
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopSequence
	case "tool_use":
		return StopToolCall
	case "end_turn":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}
