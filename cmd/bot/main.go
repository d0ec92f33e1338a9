package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/auth"
	"digest_bot/internal/bot"
	"digest_bot/internal/config"
	"digest_bot/internal/digest"
	"digest_bot/internal/scheduler"
	"digest_bot/internal/source"
	"digest_bot/internal/storage"
	"digest_bot/internal/summarizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	settings := summarizer.NewSettings(store, summarizer.Options{
		Provider:    cfg.AIProvider,
		GeminiModel: cfg.GeminiModel,
		ClaudeModel: cfg.ClaudeModel,
	})

	var describer summarizer.Describer
	if cfg.GeminiAPIKey != "" {
		gemini := summarizer.NewGemini(http.DefaultClient, cfg.GeminiAPIKey, settings.GeminiModel)
		settings.Register("gemini", gemini)
		describer = gemini
	}
	if cfg.AnthropicAPIKey != "" {
		settings.Register("claude", summarizer.NewClaude(cfg.AnthropicAPIKey, settings.ClaudeModel))
	}
	if err := settings.Reload(ctx); err != nil {
		log.Error("load summarizer settings", "error", err)
		os.Exit(1)
	}

	var transcriber summarizer.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber = summarizer.NewWhisper(http.DefaultClient, cfg.OpenAIAPIKey)
	} else {
		log.Warn("OPENAI_API_KEY not set, voice and video posts are summarized without transcripts")
	}

	orch := summarizer.NewOrchestrator(settings, transcriber, describer, log)

	authMgr := auth.NewManager(auth.Unsupported{}, store, log)
	passive := source.NewPassive(http.DefaultClient)
	authenticated := source.NewAuthenticated(authMgr, log)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Error("create bot api", "error", err)
		os.Exit(1)
	}

	engine := digest.New(api, summarizer.NewInterestMatcher(settings), log)

	sched := scheduler.New(store, scheduler.Sources{
		Passive:       passive,
		Authenticated: authenticated,
		Media:         authenticated,
		Auth:          authMgr,
	}, orch, engine, log)
	sched.SetInterval(time.Duration(cfg.CheckIntervalMinutes) * time.Minute)
	sched.SetFetchLimit(cfg.FetchLimit)

	b := bot.New(api, store, passive, authMgr, settings, log)

	log.Info("starting digest bot", "provider", settings.Options().Provider)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("digest bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
