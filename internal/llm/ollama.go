package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vthunder/toolbot/internal/logging"
)

// Ollama talks to a local Ollama server via /api/chat
type Ollama struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewOllama creates a new Ollama chat client
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2" // supports tool calling, available by default
	}
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// chatMessage is the Ollama API message format
type chatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ToolCalls []struct {
		Function struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls,omitempty"`
}

// chatRequest is the Ollama API request format
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []chatMessage    `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
}

// chatResponse is the Ollama API response format
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Process implements Engine
func (c *Ollama) Process(ctx context.Context, system string, history []Message, enableTools bool) (Response, error) {
	ctx, cancel := withDeadline(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "system", Content: system}},
		Stream:   false,
	}
	for _, m := range history {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if enableTools {
		reqBody.Tools = openAITools()
	}

	var result chatResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", nil, reqBody, &result); err != nil {
		return Response{}, fmt.Errorf("ollama: %w", err)
	}

	resp := Response{Text: result.Message.Content}
	for i, tc := range result.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("ollama-%d", i),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	logging.Debug("llm", "ollama: %d chars, %d tool calls", len(resp.Text), len(resp.ToolCalls))
	return resp, nil
}
