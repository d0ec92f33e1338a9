// Package scheduler drives the polling pipeline: fetch new channel content,
// coalesce albums, claim, summarize, deliver, advance the watermark.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"digest_bot/internal/model"
	"digest_bot/internal/source"
	"digest_bot/internal/storage"
	"digest_bot/internal/summarizer"
)

// State of the poll loop.
type State int32

// Poll loop states.
const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Summarizer produces the summary for one content unit.
type Summarizer interface {
	Summarize(ctx context.Context, channel string, unit model.ContentUnit, media summarizer.MediaFetcher) (model.Summary, error)
}

// Deliverer fans a finalized summary out to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, channel model.Channel, postID int64, summary string, recipients []model.User) int
}

// Authorizer reports whether the authenticated source can be used.
type Authorizer interface {
	Ready(ctx context.Context) bool
}

// Sources bundles the two content sources and the readiness check that
// picks between them each channel.
type Sources struct {
	Passive       source.ContentSource
	Authenticated source.ContentSource
	Media         source.MediaDownloader
	Auth          Authorizer
}

// Pacing spaces the outbound request pattern: a randomized gap between
// channels within a cycle and extra jitter on the cycle interval, so polls
// do not look like a fixed-clock scraper.
type Pacing struct {
	MinChannelGap time.Duration
	MaxChannelGap time.Duration
	CycleJitter   time.Duration
}

func (p Pacing) channelGap(rng *rand.Rand) time.Duration {
	if p.MaxChannelGap <= p.MinChannelGap {
		return p.MinChannelGap
	}
	return p.MinChannelGap + time.Duration(rng.Int63n(int64(p.MaxChannelGap-p.MinChannelGap)))
}

// Scheduler is the poll loop. One instance runs per process; all pipeline
// steps within a cycle execute sequentially.
type Scheduler struct {
	store    storage.Storage
	sources  Sources
	summ     Summarizer
	delivery Deliverer
	log      *slog.Logger

	interval   time.Duration
	fetchLimit int
	pacing     Pacing
	rng        *rand.Rand

	state atomic.Int32
}

// New creates a Scheduler with default interval, fetch limit and pacing.
func New(store storage.Storage, sources Sources, summ Summarizer, delivery Deliverer, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		sources:    sources,
		summ:       summ,
		delivery:   delivery,
		log:        log,
		interval:   5 * time.Minute,
		fetchLimit: 10,
		pacing: Pacing{
			MinChannelGap: 2 * time.Second,
			MaxChannelGap: 6 * time.Second,
			CycleJitter:   30 * time.Second,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetInterval overrides the base poll interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// SetFetchLimit overrides how many messages are requested per channel.
func (s *Scheduler) SetFetchLimit(n int) {
	s.fetchLimit = n
}

// SetPacing overrides the request spacing policy.
func (s *Scheduler) SetPacing(p Pacing) {
	s.pacing = p
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run starts the poll loop, blocking until ctx is cancelled. Cancellation
// interrupts the inter-cycle sleep immediately and lets the in-flight cycle
// finish its current unit.
func (s *Scheduler) Run(ctx context.Context) {
	s.setState(Running)
	defer s.setState(Stopped)

	s.cycle(ctx)

	for {
		wait := s.interval
		if s.pacing.CycleJitter > 0 {
			wait += time.Duration(s.rng.Int63n(int64(s.pacing.CycleJitter)))
		}
		select {
		case <-ctx.Done():
			s.setState(Stopping)
			return
		case <-time.After(wait):
			s.cycle(ctx)
		}
	}
}

// cycle processes every watched channel once.
func (s *Scheduler) cycle(ctx context.Context) {
	channels, err := s.store.ListWatchedChannels(ctx)
	if err != nil {
		s.log.Error("list watched channels", "error", err)
		return
	}

	for i, ch := range channels {
		if ctx.Err() != nil {
			s.setState(Stopping)
			return
		}
		s.processChannel(ctx, ch)
		if i < len(channels)-1 {
			if !s.sleep(ctx, s.pacing.channelGap(s.rng)) {
				s.setState(Stopping)
				return
			}
		}
	}
}

// pickSource prefers the authenticated source when an authorized session is
// available; it sees media the public preview page cannot.
func (s *Scheduler) pickSource(ctx context.Context) (source.ContentSource, source.MediaDownloader) {
	if s.sources.Authenticated != nil && s.sources.Auth != nil && s.sources.Auth.Ready(ctx) {
		return s.sources.Authenticated, s.sources.Media
	}
	return s.sources.Passive, nil
}

func (s *Scheduler) processChannel(ctx context.Context, ch model.Channel) {
	src, media := s.pickSource(ctx)

	msgs, err := src.Fetch(ctx, ch.Username, ch.LastPostID, s.fetchLimit)
	if err != nil {
		// Unavailable this cycle; the watermark stays put so the same
		// range is retried next time.
		s.log.Warn("channel fetch failed", "channel", ch.Username, "error", err)
		s.touchChecked(ctx, ch.ID)
		return
	}
	if len(msgs) == 0 {
		s.touchChecked(ctx, ch.ID)
		return
	}

	units := source.Coalesce(msgs)
	s.log.Debug("new content", "channel", ch.Username, "messages", len(msgs), "units", len(units))

	var maxID int64
	for _, msg := range msgs {
		if msg.ID > maxID {
			maxID = msg.ID
		}
	}

	for _, unit := range units {
		if ctx.Err() != nil {
			// Interrupted mid-batch: leave the watermark alone so the
			// whole range is re-fetched; claimed units stay idempotent.
			s.setState(Stopping)
			return
		}
		s.processUnit(ctx, ch, unit, media)
	}

	if err := s.store.AdvanceWatermark(ctx, ch.ID, maxID); err != nil {
		s.log.Error("advance watermark", "channel", ch.Username, "post_id", maxID, "error", err)
	}
	s.touchChecked(ctx, ch.ID)
}

func (s *Scheduler) processUnit(ctx context.Context, ch model.Channel, unit model.ContentUnit, media source.MediaDownloader) {
	claim, err := s.store.ClaimPost(ctx, ch.ID, unit.PrimaryID, unit.Text)
	if err != nil {
		s.log.Error("claim post", "channel", ch.Username, "post_id", unit.PrimaryID, "error", err)
		return
	}
	switch claim {
	case storage.ClaimDone:
		return
	case storage.ClaimPending:
		s.log.Info("re-driving unfinished unit", "channel", ch.Username, "post_id", unit.PrimaryID)
	case storage.ClaimAcquired:
	}

	var fetcher summarizer.MediaFetcher
	if media != nil {
		fetcher = media
	}

	sum, err := s.summ.Summarize(ctx, ch.Username, unit, fetcher)
	if err != nil {
		s.log.Error("summarize failed, abandoning unit",
			"channel", ch.Username, "post_id", unit.PrimaryID, "error", err)
		if relErr := s.store.ReleasePost(ctx, ch.ID, unit.PrimaryID); relErr != nil {
			s.log.Error("release post", "channel", ch.Username, "post_id", unit.PrimaryID, "error", relErr)
		}
		return
	}

	if err := s.store.FinalizePost(ctx, ch.ID, unit.PrimaryID, sum.Text); err != nil {
		s.log.Error("finalize post", "channel", ch.Username, "post_id", unit.PrimaryID, "error", err)
		return
	}

	recipients, err := s.store.ListSubscribers(ctx, ch.ID)
	if err != nil {
		s.log.Error("list subscribers", "channel", ch.Username, "error", err)
		return
	}
	delivered := s.delivery.Deliver(ctx, ch, unit.PrimaryID, sum.Text, recipients)
	s.log.Info("unit processed",
		"channel", ch.Username, "post_id", unit.PrimaryID,
		"recipients", len(recipients), "delivered", delivered)
}

func (s *Scheduler) touchChecked(ctx context.Context, channelID int64) {
	if err := s.store.TouchLastChecked(ctx, channelID); err != nil {
		s.log.Error("touch last checked", "channel_id", channelID, "error", err)
	}
}

// sleep waits for d or until ctx is cancelled; it reports whether the full
// duration elapsed.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
