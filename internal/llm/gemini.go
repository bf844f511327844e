package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/vthunder/toolbot/internal/logging"
)

// GeminiConfig configures the Gemini adapter
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Gemini calls GenerateContent through the genai SDK
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates the SDK client
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func geminiTools() []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, tool := range Tools() {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: schemaOf(tool),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Process implements Engine
func (c *Gemini) Process(ctx context.Context, system string, history []Message, enableTools bool) (Response, error) {
	ctx, cancel := withDeadline(ctx, c.timeout)
	defer cancel()

	var contents []*genai.Content
	for _, m := range mergeTurns(history) {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if enableTools {
		config.Tools = geminiTools()
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: %w", err)
	}

	resp := Response{Text: result.Text()}
	for i, fc := range result.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("gemini-%d", i)
		}
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: args})
	}
	logging.Debug("llm", "gemini: %d chars, %d tool calls", len(resp.Text), len(resp.ToolCalls))
	return resp, nil
}
