package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vthunder/toolbot/internal/logging"
)

// OpenAIConfig configures the OpenAI chat completions adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI talks to /chat/completions with function calling
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAI creates an adapter, filling in defaults
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   *string          `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIRequest struct {
	Model      string           `json:"model"`
	Messages   []openAIMessage  `json:"messages"`
	Tools      []map[string]any `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Process implements Engine
func (c *OpenAI) Process(ctx context.Context, system string, history []Message, enableTools bool) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrNoAPIKey
	}
	ctx, cancel := withDeadline(ctx, c.timeout)
	defer cancel()

	msgs := []openAIMessage{{Role: "system", Content: &system}}
	for _, m := range history {
		content := m.Content
		msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: &content})
	}

	reqBody := openAIRequest{Model: c.model, Messages: msgs}
	if enableTools {
		reqBody.Tools = openAITools()
		reqBody.ToolChoice = "auto"
	}

	var result openAIResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, reqBody, &result); err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if result.Error != nil {
		return Response{}, fmt.Errorf("openai: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: no choices in response")
	}

	msg := result.Choices[0].Message
	var resp Response
	if msg.Content != nil {
		resp.Text = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				logging.Warn("llm", "openai: bad arguments for %s: %v", tc.Function.Name, err)
				continue
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	logging.Debug("llm", "openai: %d chars, %d tool calls", len(resp.Text), len(resp.ToolCalls))
	return resp, nil
}

// postJSON sends body as JSON and decodes a 2xx response into out
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, logging.Truncate(string(respBody), 500))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
