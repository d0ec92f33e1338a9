// Package source provides the content sources the pipeline ingests from:
// the passive web preview scraper and the authenticated userbot client.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digest_bot/internal/model"
)

// ErrUnavailable signals that a source could not be consulted this cycle.
// The caller logs it and skips the channel; the watermark stays put.
var ErrUnavailable = errors.New("source unavailable")

// ErrChannelPrivate is reported by a channel client when the channel cannot
// be read. Sources treat it as "no new content" rather than a failure.
var ErrChannelPrivate = errors.New("channel is private or inaccessible")

// FloodWaitError is returned by a channel client when upstream demands a
// pause before the next request.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

// ContentSource yields normalized messages for a named channel.
// Implementations return messages with ids strictly greater than afterID,
// in ascending id order, at most limit of them.
type ContentSource interface {
	Fetch(ctx context.Context, name string, afterID int64, limit int) ([]model.RawMessage, error)
}

// MediaDownloader fetches the raw bytes of a message attachment. Only the
// authenticated source can do this.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, name string, messageID int64) ([]byte, error)
}

// ChannelClient is the connected userbot session the authenticated source
// is built on. The MTProto mechanics behind it are out of scope; tests use
// fakes.
type ChannelClient interface {
	History(ctx context.Context, name string, limit int) ([]model.RawMessage, error)
	DownloadMedia(ctx context.Context, name string, messageID int64) ([]byte, error)
}
