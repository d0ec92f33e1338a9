package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"digest_bot/internal/model"
)

// ClientProvider hands out a connected channel client, or fails when no
// authorized session exists. Implemented by the auth manager.
type ClientProvider interface {
	Client(ctx context.Context) (ChannelClient, error)
}

// Authenticated reads full channel histories through an authorized userbot
// session, including voice, video and album media the passive source cannot
// see.
//
// When upstream answers with a flood wait, the source goes quiet until the
// requested cooldown elapses: fetches return empty immediately and nothing
// is retried early, so the next poll cycle picks the range up again.
type Authenticated struct {
	provider ClientProvider
	log      *slog.Logger

	cooldownUntil time.Time
	now           func() time.Time
}

// NewAuthenticated creates an Authenticated source on top of a client provider.
func NewAuthenticated(provider ClientProvider, log *slog.Logger) *Authenticated {
	return &Authenticated{
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// Fetch returns messages with ids greater than afterID, ascending, at most
// limit of them.
func (a *Authenticated) Fetch(ctx context.Context, name string, afterID int64, limit int) ([]model.RawMessage, error) {
	if a.inCooldown() {
		a.log.Debug("fetch skipped during cooldown", "channel", name, "until", a.cooldownUntil)
		return nil, nil
	}

	client, err := a.provider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	history, err := client.History(ctx, name, limit)
	if err != nil {
		var flood *FloodWaitError
		switch {
		case errors.As(err, &flood):
			a.cooldownUntil = a.now().Add(flood.RetryAfter)
			a.log.Warn("flood wait from upstream", "channel", name, "retry_after", flood.RetryAfter)
			return nil, nil
		case errors.Is(err, ErrChannelPrivate):
			a.log.Warn("channel not accessible", "channel", name)
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	var msgs []model.RawMessage
	for _, msg := range history {
		if msg.ID > afterID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// DownloadMedia fetches the raw bytes of one message's attachment.
// Returns nil bytes when the media cannot be fetched right now (cooldown,
// flood wait); the caller degrades that modality.
func (a *Authenticated) DownloadMedia(ctx context.Context, name string, messageID int64) ([]byte, error) {
	if a.inCooldown() {
		return nil, nil
	}

	client, err := a.provider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, err := client.DownloadMedia(ctx, name, messageID)
	if err != nil {
		var flood *FloodWaitError
		if errors.As(err, &flood) {
			a.cooldownUntil = a.now().Add(flood.RetryAfter)
			a.log.Warn("flood wait downloading media", "channel", name, "post_id", messageID, "retry_after", flood.RetryAfter)
			return nil, nil
		}
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

func (a *Authenticated) inCooldown() bool {
	return a.now().Before(a.cooldownUntil)
}
