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

// OllamaProvider speaks Ollama's local chat contract (spec.md section
// 4.G): POST <endpoint>/api/chat, no auth, with temperature/top_p/
// num_predict nested under "options".
type OllamaProvider struct {
	endpoint string
	model    string
	client   *httpclient.Client
}

func NewOllamaProvider(endpoint, model string) *OllamaProvider {
	return &OllamaProvider{endpoint: endpoint, model: model, client: httpclient.New()}
}

func (p *OllamaProvider) Model() string { return p.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		messages = append(messages, ollamaMessage{Role: string(role), Content: m.Content})
	}

	body, err := json.Marshal(ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "encode ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindValidation, "build ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol,
			fmt.Sprintf("ollama: status %d: %s", resp.StatusCode, httpclient.DecodeJSONError(resp)), nil)
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, mcperr.New(mcperr.KindProtocol, "decode ollama response", err)
	}

	return ChatResponse{
		Content:    parsed.Message.Content,
		Model:      parsed.Model,
		StopReason: ollamaStopReason(parsed.DoneReason),
	}, nil
}

func ollamaStopReason(reason string) StopReason {
	switch reason {
	case "length":
		return StopMaxTokens
	case "stop":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}
