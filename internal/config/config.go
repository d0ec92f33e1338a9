// Package config handles application configuration from environment variables.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the application configuration.
type Config struct {
	BotToken     string `env:"BOT_TOKEN" env-required:"true"`
	DatabasePath string `env:"DATABASE_PATH" env-default:"./data/bot.db"`
	LogLevel     string `env:"LOG_LEVEL" env-default:"info"`

	// Scheduler
	CheckIntervalMinutes int `env:"CHECK_INTERVAL_MINUTES" env-default:"5"`
	FetchLimit           int `env:"FETCH_LIMIT" env-default:"10"`

	// Summarizer
	AIProvider      string `env:"AI_PROVIDER" env-default:"gemini"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	ClaudeModel     string `env:"CLAUDE_MODEL" env-default:"claude-3-5-haiku-latest"`

	// Transcription (optional; voice and video summaries degrade without it)
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that tags cannot express.
// The summarizer is mandatory: missing credentials for the selected
// provider are a startup failure, not a degraded mode.
func (c *Config) Validate() error {
	// env-required accepts a present-but-empty variable; empty means missing.
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	switch c.AIProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	case "claude":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER=claude")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (want gemini or claude)", c.AIProvider)
	}
	if c.CheckIntervalMinutes < 1 {
		return fmt.Errorf("CHECK_INTERVAL_MINUTES must be at least 1, got %d", c.CheckIntervalMinutes)
	}
	if c.FetchLimit < 1 {
		return fmt.Errorf("FETCH_LIMIT must be at least 1, got %d", c.FetchLimit)
	}
	return nil
}
