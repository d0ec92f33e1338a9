// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"digest_bot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ClaimResult is the outcome of claiming a content unit for processing.
type ClaimResult int

// Claim outcomes.
const (
	// ClaimAcquired means the unit was not seen before; the caller owns it.
	ClaimAcquired ClaimResult = iota
	// ClaimPending means an earlier run claimed the unit but never finalized
	// it (crash between summarize and finalize); the caller should re-drive
	// summarization for it.
	ClaimPending
	// ClaimDone means the unit is fully processed; skip it.
	ClaimDone
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateChannel(ctx context.Context, ch *model.Channel) error
	GetChannelByUsername(ctx context.Context, username string) (*model.Channel, error)
	ListWatchedChannels(ctx context.Context) ([]model.Channel, error)
	ListUserChannels(ctx context.Context, userID int64) ([]model.Channel, error)
	AdvanceWatermark(ctx context.Context, channelID, postID int64) error
	TouchLastChecked(ctx context.Context, channelID int64) error

	GetOrCreateUser(ctx context.Context, u *model.User) error
	SetUserInterests(ctx context.Context, userID int64, interests string) error

	Subscribe(ctx context.Context, userID, channelID int64) (bool, error)
	Unsubscribe(ctx context.Context, userID, channelID int64) (bool, error)
	ListSubscribers(ctx context.Context, channelID int64) ([]model.User, error)

	ClaimPost(ctx context.Context, channelID, postID int64, content string) (ClaimResult, error)
	FinalizePost(ctx context.Context, channelID, postID int64, summary string) error
	ReleasePost(ctx context.Context, channelID, postID int64) error
	GetPost(ctx context.Context, channelID, postID int64) (*model.Post, error)

	UpsertPendingSession(ctx context.Context, phone, codeHash string) error
	AuthorizeSession(ctx context.Context, phone, token string) error
	ActiveAuthorizedSession(ctx context.Context) (*model.AuthSession, error)
	MarkSessionUnauthorized(ctx context.Context, id int64) error
	TouchSessionUsed(ctx context.Context, id int64) error
	DeactivateAllSessions(ctx context.Context) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
