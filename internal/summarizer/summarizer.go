// Package summarizer turns content units into digest summaries via an
// external AI provider, with transcription and image description feeding
// one composite document.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"digest_bot/internal/model"
)

// RateLimitError is reported by a provider when the vendor throttles the
// call. RetryAfter is advisory: zero when the vendor did not suggest a wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Provider is a text completion backend.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, model.Usage, error)
}

// Transcriber converts speech audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte) (string, error)
}

// Describer produces a natural-language description of an image.
type Describer interface {
	Describe(ctx context.Context, data []byte) (string, error)
}

// MediaFetcher downloads the bytes of one message attachment. A nil fetcher
// means media payloads are unreachable (passive source); those modalities
// degrade to a note in the composite document.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, name string, messageID int64) ([]byte, error)
}

const (
	maxAttempts   = 3
	emptyAttempts = 2
	minTranscript = 10

	// placeholderSummary stands in when the provider keeps returning
	// nothing (safety-filtered content); the unit is still recorded so the
	// pipeline does not re-process it forever.
	placeholderSummary = "No summary available for this post."
)

// Orchestrator builds one composite document per content unit and drives
// the provider call with rate-limit retries.
type Orchestrator struct {
	settings    *Settings
	transcriber Transcriber
	describer   Describer
	log         *slog.Logger

	// baseDelay is the fallback backoff unit when the vendor suggests no
	// wait: attempt n sleeps n*baseDelay. Overridden in tests.
	baseDelay time.Duration
}

// NewOrchestrator creates an Orchestrator. transcriber and describer may be
// nil; the matching modalities then degrade gracefully.
func NewOrchestrator(settings *Settings, transcriber Transcriber, describer Describer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		settings:    settings,
		transcriber: transcriber,
		describer:   describer,
		log:         log,
		baseDelay:   time.Minute,
	}
}

// Summarize produces the summary for one content unit of a channel. media
// may be nil when attachment bytes are unreachable.
func (o *Orchestrator) Summarize(ctx context.Context, channel string, unit model.ContentUnit, media MediaFetcher) (model.Summary, error) {
	doc := o.compose(ctx, channel, unit, media)
	prompt := buildPrompt(channel, doc)

	var summary model.Summary
	for attempt := 0; attempt <= emptyAttempts; attempt++ {
		text, usage, err := o.completeWithRetry(ctx, prompt)
		if err != nil {
			return model.Summary{}, err
		}
		o.log.Info("summarizer call done",
			"channel", channel, "post_id", unit.PrimaryID,
			"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)

		if strings.TrimSpace(text) != "" {
			summary = model.Summary{Text: strings.TrimSpace(text), Usage: usage}
			return summary, nil
		}
		o.log.Warn("empty summarizer result", "channel", channel, "post_id", unit.PrimaryID, "attempt", attempt+1)
	}

	return model.Summary{Text: placeholderSummary}, nil
}

// completeWithRetry calls the current provider, retrying only rate limits:
// up to maxAttempts calls, sleeping the vendor-suggested delay when one was
// given, else an escalating default. Any other failure propagates at once.
func (o *Orchestrator) completeWithRetry(ctx context.Context, prompt string) (string, model.Usage, error) {
	provider, err := o.settings.Provider()
	if err != nil {
		return "", model.Usage{}, err
	}

	var (
		text      string
		usage     model.Usage
		attempt   int
		suggested time.Duration
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt >= maxAttempts {
			return 0, true
		}
		if suggested > 0 {
			return suggested, false
		}
		return time.Duration(attempt) * o.baseDelay, false
	})

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		text, usage, callErr = provider.Complete(ctx, prompt)
		var rl *RateLimitError
		if errors.As(callErr, &rl) {
			suggested = rl.RetryAfter
			o.log.Warn("summarizer rate limited", "retry_after", rl.RetryAfter, "attempt", attempt+1)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("summarize: %w", err)
	}
	return text, usage, nil
}

// compose builds the composite document: post text, transcripts for speech
// media, descriptions for images. Everything goes into a single document so
// one summarization call sees all modalities together.
func (o *Orchestrator) compose(ctx context.Context, channel string, unit model.ContentUnit, media MediaFetcher) string {
	var b strings.Builder
	if unit.Text != "" {
		b.WriteString("Post text:\n")
		b.WriteString(unit.Text)
	}

	for _, ref := range unit.Media {
		section := o.describeMedia(ctx, channel, ref, media)
		if section == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(section)
	}
	return b.String()
}

func (o *Orchestrator) describeMedia(ctx context.Context, channel string, ref model.MediaRef, media MediaFetcher) string {
	data := o.fetchMedia(ctx, channel, ref, media)

	switch {
	case ref.Kind.Transcribable():
		if data == nil || o.transcriber == nil {
			return fmt.Sprintf("[%s attached: transcript unavailable]", ref.Kind)
		}
		transcript, err := o.transcriber.Transcribe(ctx, data)
		if err != nil {
			o.log.Warn("transcription failed", "channel", channel, "post_id", ref.MessageID, "error", err)
			return fmt.Sprintf("[%s attached: transcript unavailable]", ref.Kind)
		}
		if len(strings.TrimSpace(transcript)) < minTranscript {
			return fmt.Sprintf("[%s attached: transcript unavailable]", ref.Kind)
		}
		return fmt.Sprintf("Transcript (%s):\n%s", ref.Kind, strings.TrimSpace(transcript))

	case ref.Kind == model.MediaPhoto:
		if data == nil || o.describer == nil {
			return "[photo attached: no description available]"
		}
		desc, err := o.describer.Describe(ctx, data)
		if err != nil || strings.TrimSpace(desc) == "" {
			if err != nil {
				o.log.Warn("image description failed", "channel", channel, "post_id", ref.MessageID, "error", err)
			}
			return "[photo attached: no description available]"
		}
		return "Image description:\n" + strings.TrimSpace(desc)
	}
	return ""
}

func (o *Orchestrator) fetchMedia(ctx context.Context, channel string, ref model.MediaRef, media MediaFetcher) []byte {
	if media == nil {
		return nil
	}
	data, err := media.DownloadMedia(ctx, channel, ref.MessageID)
	if err != nil {
		o.log.Warn("media download failed", "channel", channel, "post_id", ref.MessageID, "error", err)
		return nil
	}
	return data
}

func buildPrompt(channel, doc string) string {
	return fmt.Sprintf(`Write a short, informative summary of the following post from channel @%s.

Requirements:
- Highlight 2-3 key points as a bullet list
- Be concise: at most 3-4 sentences overall
- Keep any numbers, dates and names from the post
- If a transcript or image description is present, fold it into the same summary

Post:
%s`, channel, doc)
}
