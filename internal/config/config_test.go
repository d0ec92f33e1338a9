package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "test-token")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff("test-token", cfg.BotToken); diff != "" {
		t.Errorf("bot token mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("./data/bot.db", cfg.DatabasePath); diff != "" {
		t.Errorf("database path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(5, cfg.CheckIntervalMinutes); diff != "" {
		t.Errorf("interval mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("gemini", cfg.AIProvider); diff != "" {
		t.Errorf("provider mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "test-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when BOT_TOKEN is missing")
	}
}

func TestLoadProviderCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "gemini without key",
			env:     map[string]string{"AI_PROVIDER": "gemini", "GEMINI_API_KEY": ""},
			wantErr: true,
		},
		{
			name:    "claude without key",
			env:     map[string]string{"AI_PROVIDER": "claude", "GEMINI_API_KEY": "x", "ANTHROPIC_API_KEY": ""},
			wantErr: true,
		},
		{
			name: "claude with key",
			env:  map[string]string{"AI_PROVIDER": "claude", "ANTHROPIC_API_KEY": "x"},
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"AI_PROVIDER": "llama", "GEMINI_API_KEY": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOT_TOKEN", "test-token")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadInvalidInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHECK_INTERVAL_MINUTES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
