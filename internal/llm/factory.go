package llm

import (
	"context"
	"fmt"

	"github.com/vthunder/toolbot/internal/config"
)

// New selects an Engine adapter from configuration
func New(ctx context.Context, cfg config.Config) (Engine, error) {
	timeout := cfg.Timeouts.LLM
	switch cfg.LLMProvider {
	case "openai", "":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}), nil
	case "gemini":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.LLMModel, timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
