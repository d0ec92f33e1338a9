package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Settings keys in the persistent store.
const (
	keyProvider    = "ai_provider"
	keyGeminiModel = "gemini_model"
	keyClaudeModel = "claude_model"
)

// SettingsStore is the slice of persistence the summarizer settings need.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Options are the summarizer knobs kept in the settings store.
type Options struct {
	Provider    string
	GeminiModel string
	ClaudeModel string
}

// Settings is the explicit configuration object injected into the
// Orchestrator. Values live in the settings store and are cached here;
// Reload refreshes the cache, there is no implicit background state.
type Settings struct {
	store    SettingsStore
	defaults Options

	mu        sync.RWMutex
	opts      Options
	providers map[string]Provider
}

// NewSettings creates Settings seeded with defaults (normally from env).
func NewSettings(store SettingsStore, defaults Options) *Settings {
	return &Settings{
		store:     store,
		defaults:  defaults,
		opts:      defaults,
		providers: make(map[string]Provider),
	}
}

// Register binds a provider implementation to a provider name.
func (s *Settings) Register(name string, p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = p
}

// Reload re-reads all settings from the store. Missing keys keep their
// default values.
func (s *Settings) Reload(ctx context.Context) error {
	opts := s.defaults
	if v, err := s.store.GetSetting(ctx, keyProvider); err == nil && v != "" {
		opts.Provider = v
	}
	if v, err := s.store.GetSetting(ctx, keyGeminiModel); err == nil && v != "" {
		opts.GeminiModel = v
	}
	if v, err := s.store.GetSetting(ctx, keyClaudeModel); err == nil && v != "" {
		opts.ClaudeModel = v
	}

	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
	return nil
}

// SetProvider persists a new active provider and updates the cache.
func (s *Settings) SetProvider(ctx context.Context, name string) error {
	s.mu.RLock()
	_, known := s.providers[name]
	s.mu.RUnlock()
	if !known {
		return fmt.Errorf("unknown provider %q", name)
	}
	if err := s.store.SetSetting(ctx, keyProvider, name); err != nil {
		return fmt.Errorf("persist provider: %w", err)
	}
	s.mu.Lock()
	s.opts.Provider = name
	s.mu.Unlock()
	return nil
}

// Provider returns the currently selected provider implementation.
func (s *Settings) Provider() (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[s.opts.Provider]
	if !ok {
		return nil, errors.New("no provider registered for " + s.opts.Provider)
	}
	return p, nil
}

// Options returns a copy of the current option values.
func (s *Settings) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// GeminiModel returns the current Gemini model name.
func (s *Settings) GeminiModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.GeminiModel
}

// ClaudeModel returns the current Claude model name.
func (s *Settings) ClaudeModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.ClaudeModel
}
