package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vthunder/toolbot/internal/logging"
)

// AnthropicConfig configures the Anthropic messages adapter
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Anthropic talks to /v1/messages with tool use
type Anthropic struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *http.Client
}

// NewAnthropic creates an adapter, filling in defaults
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &Anthropic{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []map[string]any   `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		ID    string         `json:"id,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Process implements Engine
func (c *Anthropic) Process(ctx context.Context, system string, history []Message, enableTools bool) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrNoAPIKey
	}
	ctx, cancel := withDeadline(ctx, c.timeout)
	defer cancel()

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
	}
	for _, m := range mergeTurns(history) {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	if enableTools {
		reqBody.Tools = anthropicTools()
	}

	var result anthropicResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, reqBody, &result); err != nil {
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var (
		resp  Response
		texts []string
	)
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Text = strings.Join(texts, "")
	logging.Debug("llm", "anthropic: stop=%s %d chars, %d tool calls", result.StopReason, len(resp.Text), len(resp.ToolCalls))
	return resp, nil
}
