// Package digest fans finalized summaries out to subscribed recipients.
package digest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/model"
)

// Sender delivers one Telegram message.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// InterestMatcher reports whether a summary matches a recipient's interest
// profile. A failure is treated as no match.
type InterestMatcher interface {
	Matches(ctx context.Context, summary, interests string) (bool, error)
}

// Engine delivers one summary to every subscriber of its channel. Each
// recipient is handled independently; one failed delivery never blocks the
// rest.
type Engine struct {
	sender  Sender
	matcher InterestMatcher
	log     *slog.Logger

	// pace spaces out consecutive deliveries to stay under the Telegram
	// per-bot send limits. Zeroed in tests.
	pace time.Duration
}

// New creates an Engine. matcher may be nil to disable personalization.
func New(sender Sender, matcher InterestMatcher, log *slog.Logger) *Engine {
	return &Engine{
		sender:  sender,
		matcher: matcher,
		log:     log,
		pace:    time.Second,
	}
}

// Deliver sends the summary to all recipients and returns how many
// deliveries succeeded.
func (e *Engine) Deliver(ctx context.Context, channel model.Channel, postID int64, summary string, recipients []model.User) int {
	delivered := 0
	for i, user := range recipients {
		if ctx.Err() != nil {
			return delivered
		}
		marked := e.matched(ctx, summary, user)
		if e.send(user.TelegramID, channel, postID, summary, marked) {
			delivered++
		}
		if i < len(recipients)-1 && e.pace > 0 {
			select {
			case <-ctx.Done():
				return delivered
			case <-time.After(e.pace):
			}
		}
	}
	return delivered
}

func (e *Engine) matched(ctx context.Context, summary string, user model.User) bool {
	if e.matcher == nil || strings.TrimSpace(user.Interests) == "" {
		return false
	}
	ok, err := e.matcher.Matches(ctx, summary, user.Interests)
	if err != nil {
		e.log.Warn("interest match failed", "user_id", user.TelegramID, "error", err)
		return false
	}
	return ok
}

// send tries the MarkdownV2 rendering first and falls back to plain text
// when the transport rejects it.
func (e *Engine) send(chatID int64, channel model.Channel, postID int64, summary string, marked bool) bool {
	msg := tgbotapi.NewMessage(chatID, FormatSummary(channel, postID, summary, marked))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	_, err := e.sender.Send(msg)
	if err == nil {
		return true
	}
	e.log.Warn("formatted delivery rejected, retrying plain", "chat_id", chatID, "error", err)

	plain := tgbotapi.NewMessage(chatID, FormatSummaryPlain(channel, postID, summary, marked))
	plain.DisableWebPagePreview = true
	if _, err := e.sender.Send(plain); err != nil {
		e.log.Error("delivery failed", "chat_id", chatID, "error", err)
		return false
	}
	return true
}
