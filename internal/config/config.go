package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when a room has no topic set.
const DefaultSystemPrompt = `You are a friendly, helpful assistant in a chat room.

You can create Anki flashcards, Todoist tasks, and search the web.

Counting rules:
- If the user asks for "a flashcard" or "one flashcard", create exactly ONE flashcard.
- If the user asks for "N flashcards", create exactly N. The same applies to todos.
- Never create more items than were requested.

Use web_search whenever a question depends on current or time-sensitive information
(news, prices, schedules, recent releases) instead of answering from memory.

When one flashcard must cover several facts, put the count in parentheses on the
front (for example "Primary colors (3)") and answer with a numbered list on the back.`

// Config holds all runtime settings. Values are read from an optional YAML
// file first; environment variables override anything set there.
type Config struct {
	Transport string `yaml:"transport"`

	MatrixHomeserver  string `yaml:"matrix_homeserver"`
	MatrixUser        string `yaml:"matrix_user"`
	MatrixPassword    string `yaml:"matrix_password"`
	MatrixAccessToken string `yaml:"matrix_access_token"`
	HistoryLimit      int    `yaml:"history_limit"`

	DiscordToken    string   `yaml:"discord_token"`
	DiscordChannels []string `yaml:"discord_channels"`

	AllowedUsers []string `yaml:"allowed_users"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	OllamaURL       string `yaml:"ollama_url"`

	TodoBackend  string `yaml:"todo_backend"`
	TodoistToken string `yaml:"todoist_token"`
	GTDPath      string `yaml:"gtd_path"`

	EnableAnki     bool   `yaml:"enable_anki"`
	AnkiConnectURL string `yaml:"anki_connect_url"`
	DeckNamespace  string `yaml:"deck_namespace"`

	Transcriber       string `yaml:"transcriber"`
	WhisperURL        string `yaml:"whisper_url"`
	WhisperModel      string `yaml:"whisper_model"`
	GoogleCredentials string `yaml:"google_credentials"`
	SpeechLanguage    string `yaml:"speech_language"`

	EnableE2EE bool `yaml:"enable_e2ee"`

	RedisURL     string        `yaml:"redis_url"`
	DeckCacheTTL time.Duration `yaml:"deck_cache_ttl"`
	LedgerPath   string        `yaml:"ledger_path"`
	ActivityPath string        `yaml:"activity_path"`
	StatusAddr   string        `yaml:"status_addr"`
	Debug        bool          `yaml:"debug"`

	SystemPrompt string   `yaml:"system_prompt"`
	Timeouts     Timeouts `yaml:"timeouts"`
}

// Timeouts bound every outbound call.
type Timeouts struct {
	LLM       time.Duration `yaml:"llm"`
	Backend   time.Duration `yaml:"backend"`
	Search    time.Duration `yaml:"search"`
	Fetch     time.Duration `yaml:"fetch"`
	Transport time.Duration `yaml:"transport"`
}

// Defaults returns a Config with every optional value filled in.
func Defaults() Config {
	return Config{
		Transport:      "matrix",
		HistoryLimit:   10000,
		LLMProvider:    "openai",
		TodoBackend:    "todoist",
		GTDPath:        "state/todos.json",
		EnableAnki:     true,
		AnkiConnectURL: "http://localhost:8765",
		DeckNamespace:  "Active::Bot",
		WhisperModel:   "base",
		SpeechLanguage: "en-US",
		DeckCacheTTL:   10 * time.Minute,
		LedgerPath:     "state/ledger.db",
		ActivityPath:   "state/activity.jsonl",
		SystemPrompt:   DefaultSystemPrompt,
		Timeouts: Timeouts{
			LLM:       120 * time.Second,
			Backend:   10 * time.Second,
			Search:    30 * time.Second,
			Fetch:     15 * time.Second,
			Transport: 30 * time.Second,
		},
	}
}

// Load builds the configuration from CONFIG_PATH (if the file exists) and the
// environment.
func Load() (Config, error) {
	cfg := Defaults()

	path := getEnv("CONFIG_PATH", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Transport = getEnv("TRANSPORT", c.Transport)
	c.MatrixHomeserver = getEnv("MATRIX_HOMESERVER", c.MatrixHomeserver)
	c.MatrixUser = getEnv("MATRIX_USER", c.MatrixUser)
	c.MatrixPassword = getEnv("MATRIX_PASSWORD", c.MatrixPassword)
	c.MatrixAccessToken = getEnv("MATRIX_ACCESS_TOKEN", c.MatrixAccessToken)
	c.HistoryLimit = getEnvAsInt("HISTORY_LIMIT", c.HistoryLimit)
	c.DiscordToken = getEnv("DISCORD_TOKEN", c.DiscordToken)
	if v, ok := os.LookupEnv("DISCORD_CHANNELS"); ok {
		c.DiscordChannels = splitList(v)
	}
	if v, ok := os.LookupEnv("ALLOWED_USERS"); ok {
		c.AllowedUsers = splitList(v)
	}

	c.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)

	c.TodoBackend = strings.ToLower(getEnv("TODO_BACKEND", c.TodoBackend))
	c.TodoistToken = getEnv("TODOIST_TOKEN", c.TodoistToken)
	c.GTDPath = getEnv("GTD_PATH", c.GTDPath)

	c.EnableAnki = getEnvAsBool("ENABLE_ANKI", c.EnableAnki)
	c.AnkiConnectURL = getEnv("ANKI_CONNECT_URL", c.AnkiConnectURL)
	c.DeckNamespace = getEnv("DECK_NAMESPACE", c.DeckNamespace)

	c.Transcriber = strings.ToLower(getEnv("TRANSCRIBER", c.Transcriber))
	c.WhisperURL = getEnv("WHISPER_URL", c.WhisperURL)
	c.WhisperModel = getEnv("WHISPER_MODEL", c.WhisperModel)
	c.GoogleCredentials = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentials)
	c.SpeechLanguage = getEnv("SPEECH_LANGUAGE", c.SpeechLanguage)

	c.EnableE2EE = getEnvAsBool("ENABLE_E2EE", c.EnableE2EE)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.DeckCacheTTL = getEnvAsDuration("DECK_CACHE_TTL", c.DeckCacheTTL)
	c.LedgerPath = getEnv("LEDGER_PATH", c.LedgerPath)
	c.ActivityPath = getEnv("ACTIVITY_PATH", c.ActivityPath)
	c.StatusAddr = getEnv("STATUS_ADDR", c.StatusAddr)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)
	c.SystemPrompt = getEnv("SYSTEM_PROMPT", c.SystemPrompt)

	c.Timeouts.LLM = getEnvAsDuration("LLM_TIMEOUT", c.Timeouts.LLM)
	c.Timeouts.Backend = getEnvAsDuration("BACKEND_TIMEOUT", c.Timeouts.Backend)
	c.Timeouts.Search = getEnvAsDuration("SEARCH_TIMEOUT", c.Timeouts.Search)
	c.Timeouts.Fetch = getEnvAsDuration("FETCH_TIMEOUT", c.Timeouts.Fetch)
	c.Timeouts.Transport = getEnvAsDuration("TRANSPORT_TIMEOUT", c.Timeouts.Transport)
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case "matrix":
		if c.MatrixHomeserver == "" {
			errs = append(errs, errors.New("MATRIX_HOMESERVER is required"))
		}
		if c.MatrixAccessToken == "" && (c.MatrixUser == "" || c.MatrixPassword == "") {
			errs = append(errs, errors.New("MATRIX_ACCESS_TOKEN or MATRIX_USER and MATRIX_PASSWORD are required"))
		}
	case "discord":
		if c.DiscordToken == "" {
			errs = append(errs, errors.New("DISCORD_TOKEN is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for llm_provider=openai"))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for llm_provider=anthropic"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for llm_provider=gemini"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown llm_provider %q", c.LLMProvider))
	}

	switch c.TodoBackend {
	case "todoist", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown todo_backend %q", c.TodoBackend))
	}

	if c.EnableE2EE {
		errs = append(errs, errors.New("enable_e2ee is not supported; run the bot in unencrypted rooms"))
	}
	return errors.Join(errs...)
}

// IsAllowed reports whether sender may talk to the bot. An empty allow list
// admits everyone.
func (c *Config) IsAllowed(sender string) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.AllowedUsers {
		if u == sender {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return fallback
}
