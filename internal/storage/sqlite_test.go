package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"digest_bot/internal/model"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createChannel(t *testing.T, s *SQLite, username string) *model.Channel {
	t.Helper()
	ch := &model.Channel{Username: username, Title: username, IsActive: true}
	if err := s.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return ch
}

func createUser(t *testing.T, s *SQLite, telegramID int64) *model.User {
	t.Helper()
	u := &model.User{TelegramID: telegramID, Username: "user", FirstName: "Test"}
	if err := s.GetOrCreateUser(context.Background(), u); err != nil {
		t.Fatalf("get or create user: %v", err)
	}
	return u
}

func TestChannelRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ch := createChannel(t, s, "technews")
	got, err := s.GetChannelByUsername(ctx, "technews")
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if diff := cmp.Diff(ch.ID, got.ID); diff != "" {
		t.Errorf("id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(0), got.LastPostID); diff != "" {
		t.Errorf("watermark mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetChannelByUsername(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := createChannel(t, s, "technews")

	steps := []struct {
		advanceTo int64
		want      int64
	}{
		{advanceTo: 10, want: 10},
		{advanceTo: 25, want: 25},
		{advanceTo: 7, want: 25},  // never decreases
		{advanceTo: 25, want: 25}, // idempotent
		{advanceTo: 30, want: 30},
	}

	for _, st := range steps {
		if err := s.AdvanceWatermark(ctx, ch.ID, st.advanceTo); err != nil {
			t.Fatalf("advance to %d: %v", st.advanceTo, err)
		}
		got, err := s.GetChannelByUsername(ctx, "technews")
		if err != nil {
			t.Fatalf("get channel: %v", err)
		}
		if diff := cmp.Diff(st.want, got.LastPostID); diff != "" {
			t.Errorf("watermark after advance to %d (-want +got):\n%s", st.advanceTo, diff)
		}
	}
}

func TestTouchLastChecked(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := createChannel(t, s, "technews")

	if err := s.TouchLastChecked(ctx, ch.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := s.GetChannelByUsername(ctx, "technews")
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if got.LastCheckedAt == nil {
		t.Error("expected LastCheckedAt to be set")
	}
}

func TestClaimPostLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := createChannel(t, s, "technews")

	res, err := s.ClaimPost(ctx, ch.ID, 100, "post content")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if diff := cmp.Diff(ClaimAcquired, res); diff != "" {
		t.Errorf("first claim (-want +got):\n%s", diff)
	}

	// Second claim before finalize: crash-recovery state.
	res, err = s.ClaimPost(ctx, ch.ID, 100, "post content")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if diff := cmp.Diff(ClaimPending, res); diff != "" {
		t.Errorf("pending claim (-want +got):\n%s", diff)
	}

	if err := s.FinalizePost(ctx, ch.ID, 100, "the summary"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	res, err = s.ClaimPost(ctx, ch.ID, 100, "post content")
	if err != nil {
		t.Fatalf("claim after finalize: %v", err)
	}
	if diff := cmp.Diff(ClaimDone, res); diff != "" {
		t.Errorf("done claim (-want +got):\n%s", diff)
	}

	p, err := s.GetPost(ctx, ch.ID, 100)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if diff := cmp.Diff("the summary", p.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestReleasePost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := createChannel(t, s, "technews")

	if _, err := s.ClaimPost(ctx, ch.ID, 100, "abandoned"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.ReleasePost(ctx, ch.ID, 100); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Claim is free again after release.
	res, err := s.ClaimPost(ctx, ch.ID, 100, "abandoned")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if diff := cmp.Diff(ClaimAcquired, res); diff != "" {
		t.Errorf("claim after release (-want +got):\n%s", diff)
	}

	// Release never removes a finalized post.
	if err := s.FinalizePost(ctx, ch.ID, 100, "done"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := s.ReleasePost(ctx, ch.ID, 100); err != nil {
		t.Fatalf("release finalized: %v", err)
	}
	if _, err := s.GetPost(ctx, ch.ID, 100); err != nil {
		t.Errorf("finalized post should survive release: %v", err)
	}
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := createChannel(t, s, "technews")
	u1 := createUser(t, s, 100)
	u2 := createUser(t, s, 200)

	created, err := s.Subscribe(ctx, u1.ID, ch.ID)
	if err != nil || !created {
		t.Fatalf("subscribe u1: created=%v err=%v", created, err)
	}
	created, err = s.Subscribe(ctx, u1.ID, ch.ID)
	if err != nil {
		t.Fatalf("duplicate subscribe: %v", err)
	}
	if created {
		t.Error("duplicate subscription should not be created")
	}
	if _, err := s.Subscribe(ctx, u2.ID, ch.ID); err != nil {
		t.Fatalf("subscribe u2: %v", err)
	}

	subs, err := s.ListSubscribers(ctx, ch.ID)
	if err != nil {
		t.Fatalf("list subscribers: %v", err)
	}
	var ids []int64
	for _, u := range subs {
		ids = append(ids, u.TelegramID)
	}
	if diff := cmp.Diff([]int64{100, 200}, ids); diff != "" {
		t.Errorf("subscribers mismatch (-want +got):\n%s", diff)
	}

	removed, err := s.Unsubscribe(ctx, u1.ID, ch.ID)
	if err != nil || !removed {
		t.Fatalf("unsubscribe: removed=%v err=%v", removed, err)
	}
	removed, err = s.Unsubscribe(ctx, u1.ID, ch.ID)
	if err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if removed {
		t.Error("second unsubscribe should remove nothing")
	}
}

func TestListWatchedChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	subscribed := createChannel(t, s, "watched")
	createChannel(t, s, "orphan")
	inactive := &model.Channel{Username: "inactive", IsActive: false}
	if err := s.CreateChannel(ctx, inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	u := createUser(t, s, 100)
	for _, chID := range []int64{subscribed.ID, inactive.ID} {
		if _, err := s.Subscribe(ctx, u.ID, chID); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	got, err := s.ListWatchedChannels(ctx)
	if err != nil {
		t.Fatalf("list watched: %v", err)
	}
	var names []string
	for _, ch := range got {
		names = append(names, ch.Username)
	}
	if diff := cmp.Diff([]string{"watched"}, names); diff != "" {
		t.Errorf("watched channels mismatch (-want +got):\n%s", diff)
	}
}

func TestUserInterests(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, 100)

	if err := s.SetUserInterests(ctx, u.ID, "golang, databases"); err != nil {
		t.Fatalf("set interests: %v", err)
	}

	again := &model.User{TelegramID: 100, Username: "renamed", FirstName: "Test"}
	if err := s.GetOrCreateUser(ctx, again); err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if diff := cmp.Diff(u.ID, again.ID); diff != "" {
		t.Errorf("user id changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("golang, databases", again.Interests); diff != "" {
		t.Errorf("interests mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("renamed", again.Username); diff != "" {
		t.Errorf("username should refresh (-want +got):\n%s", diff)
	}
}

func TestAuthSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.ActiveAuthorizedSession(ctx); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty table, got %v", err)
	}

	if err := s.UpsertPendingSession(ctx, "+15551234567", "hash-1"); err != nil {
		t.Fatalf("pending: %v", err)
	}
	// A pending session is not authorized yet.
	if _, err := s.ActiveAuthorizedSession(ctx); err != ErrNotFound {
		t.Fatalf("pending session must not be authorized, got %v", err)
	}

	if err := s.AuthorizeSession(ctx, "+15551234567", "token-1"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	sess, err := s.ActiveAuthorizedSession(ctx)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if diff := cmp.Diff("token-1", sess.SessionToken); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("", sess.PhoneCodeHash); diff != "" {
		t.Errorf("challenge hash should be cleared (-want +got):\n%s", diff)
	}

	// Authorizing a second identity deactivates the first.
	if err := s.UpsertPendingSession(ctx, "+15559999999", "hash-2"); err != nil {
		t.Fatalf("pending 2: %v", err)
	}
	if err := s.AuthorizeSession(ctx, "+15559999999", "token-2"); err != nil {
		t.Fatalf("authorize 2: %v", err)
	}
	sess, err = s.ActiveAuthorizedSession(ctx)
	if err != nil {
		t.Fatalf("active session 2: %v", err)
	}
	if diff := cmp.Diff("+15559999999", sess.PhoneNumber); diff != "" {
		t.Errorf("active phone mismatch (-want +got):\n%s", diff)
	}

	if err := s.MarkSessionUnauthorized(ctx, sess.ID); err != nil {
		t.Fatalf("mark unauthorized: %v", err)
	}
	if _, err := s.ActiveAuthorizedSession(ctx); err != ErrNotFound {
		t.Fatalf("unauthorized session must not be returned, got %v", err)
	}

	if err := s.AuthorizeSession(ctx, "+15559999999", "token-3"); err != nil {
		t.Fatalf("re-authorize: %v", err)
	}
	if err := s.DeactivateAllSessions(ctx); err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if _, err := s.ActiveAuthorizedSession(ctx); err != ErrNotFound {
		t.Fatalf("expected no active session after logout, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetSetting(ctx, "ai_provider"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "ai_provider", "gemini"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetSetting(ctx, "ai_provider", "claude"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.GetSetting(ctx, "ai_provider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff("claude", got); diff != "" {
		t.Errorf("setting mismatch (-want +got):\n%s", diff)
	}
}
