package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultMaxBodyBytes      = 1 << 20
	DefaultGitHubAPIURL      = "https://api.github.com"
	DefaultBaseBranch        = "main"
	DefaultLLMProvider       = "anthropic"
	DefaultLLMModel          = "claude-sonnet-4-20250514"
	DefaultMaxTokens         = 4096
	DefaultSummaryMaxTokens  = 1024
	DefaultMaxToolIterations = 10
	DefaultWhisperModel      = "whisper-1"
	DefaultHistoryBackend    = "memory"
	DefaultTriggersFile      = "config/triggers.yaml"
	DefaultCronsFile         = "config/crons.yaml"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	HistoryMemory   = "memory"
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	GitHub   GitHubConfig   `toml:"github"`
	LLM      LLMConfig      `toml:"llm"`
	Voice    VoiceConfig    `toml:"voice"`
	History  HistoryConfig  `toml:"history"`
	Triggers TriggersConfig `toml:"triggers"`
	Crons    CronsConfig    `toml:"crons"`
	Prompts  PromptsConfig  `toml:"prompts"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"`
}

type ServerConfig struct {
	Addr         string `toml:"addr" env:"SERVER_ADDR"`
	APIKey       string `toml:"api_key" env:"API_KEY"`
	MaxBodyBytes int64  `toml:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"`
}

type TelegramConfig struct {
	BotToken         string `toml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	WebhookSecret    string `toml:"webhook_secret" env:"TELEGRAM_WEBHOOK_SECRET"`
	ChatID           string `toml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	VerificationCode string `toml:"verification_code" env:"TELEGRAM_VERIFICATION"`
	WebhookURL       string `toml:"webhook_url" env:"TELEGRAM_WEBHOOK_URL"`
	// APIEndpoint overrides the Bot API endpoint format, e.g. for a local bot API server.
	APIEndpoint string `toml:"api_endpoint" env:"TELEGRAM_API_ENDPOINT"`
}

type GitHubConfig struct {
	Token         string `toml:"token" env:"GH_TOKEN"`
	Owner         string `toml:"owner" env:"GH_OWNER"`
	Repo          string `toml:"repo" env:"GH_REPO"`
	WebhookSecret string `toml:"webhook_secret" env:"GH_WEBHOOK_SECRET"`
	BaseBranch    string `toml:"base_branch" env:"GH_BASE_BRANCH"`
	APIURL        string `toml:"api_url" env:"GH_API_URL"`
}

type LLMConfig struct {
	Provider          string `toml:"provider" env:"LLM_PROVIDER"`
	Model             string `toml:"model" env:"LLM_MODEL"`
	SummaryModel      string `toml:"summary_model" env:"SUMMARY_MODEL"`
	AnthropicAPIKey   string `toml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey      string `toml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `toml:"openai_base_url" env:"OPENAI_BASE_URL"`
	MaxTokens         int64  `toml:"max_tokens" env:"LLM_MAX_TOKENS"`
	SummaryMaxTokens  int64  `toml:"summary_max_tokens" env:"SUMMARY_MAX_TOKENS"`
	MaxToolIterations int    `toml:"max_tool_iterations" env:"LLM_MAX_TOOL_ITERATIONS"`
}

// ResolvedSummaryModel falls back to the chat model when no summary model is set.
func (c LLMConfig) ResolvedSummaryModel() string {
	if m := strings.TrimSpace(c.SummaryModel); m != "" {
		return m
	}
	return c.Model
}

type VoiceConfig struct {
	Model string `toml:"model" env:"WHISPER_MODEL"`
}

type HistoryConfig struct {
	Backend string `toml:"backend" env:"HISTORY_BACKEND"`
	DSN     string `toml:"dsn" env:"HISTORY_DSN"`
}

type TriggersConfig struct {
	File string `toml:"file" env:"TRIGGERS_FILE"`
}

type CronsConfig struct {
	File string `toml:"file" env:"CRONS_FILE"`
}

type PromptsConfig struct {
	Dir string `toml:"dir" env:"PROMPTS_DIR"`
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:         DefaultHTTPAddr,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		GitHub: GitHubConfig{
			BaseBranch: DefaultBaseBranch,
			APIURL:     DefaultGitHubAPIURL,
		},
		LLM: LLMConfig{
			Provider:          DefaultLLMProvider,
			Model:             DefaultLLMModel,
			MaxTokens:         DefaultMaxTokens,
			SummaryMaxTokens:  DefaultSummaryMaxTokens,
			MaxToolIterations: DefaultMaxToolIterations,
		},
		Voice: VoiceConfig{
			Model: DefaultWhisperModel,
		},
		History: HistoryConfig{
			Backend: DefaultHistoryBackend,
		},
		Triggers: TriggersConfig{
			File: DefaultTriggersFile,
		},
		Crons: CronsConfig{
			File: DefaultCronsFile,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Backend)) {
	case HistoryMemory:
	case HistorySQLite, HistoryPostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			return fmt.Errorf("history backend %q requires a dsn", c.History.Backend)
		}
	default:
		return fmt.Errorf("unsupported history backend %q", c.History.Backend)
	}
	return nil
}
