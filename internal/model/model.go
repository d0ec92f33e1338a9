// Package model defines the domain types used across the application.
package model

import "time"

// Channel represents a monitored Telegram channel.
type Channel struct {
	ID            int64
	Username      string
	Title         string
	LastPostID    int64
	IsActive      bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

// User represents a digest recipient.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	Interests  string
	CreatedAt  time.Time
}

// Subscription links a user to a channel. The (UserID, ChannelID) pair is unique.
type Subscription struct {
	ID        int64
	UserID    int64
	ChannelID int64
	CreatedAt time.Time
}

// Post is the persisted record of a processed content unit.
// The (ChannelID, PostID) pair is unique and backs the dedup gate.
type Post struct {
	ID        int64
	ChannelID int64
	PostID    int64
	Content   string
	Summary   string
	CreatedAt time.Time
}

// AuthSession holds the userbot login state for one phone number.
// At most one row is active at a time.
type AuthSession struct {
	ID            int64
	PhoneNumber   string
	SessionToken  string
	IsAuthorized  bool
	IsActive      bool
	PhoneCodeHash string
	CreatedAt     time.Time
	LastUsedAt    *time.Time
}

// MediaKind classifies an attachment on a raw message.
type MediaKind string

// Media kinds a channel message can carry.
const (
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaAudio     MediaKind = "audio"
	MediaVideo     MediaKind = "video"
	MediaPhoto     MediaKind = "photo"
)

// Transcribable reports whether the media kind carries speech.
func (k MediaKind) Transcribable() bool {
	switch k {
	case MediaVoice, MediaVideoNote, MediaAudio, MediaVideo:
		return true
	}
	return false
}

// MediaRef points at one attachment of a raw message.
type MediaRef struct {
	Kind      MediaKind
	MessageID int64
	URL       string // set by the passive source for photos; empty otherwise
}

// RawMessage is a single normalized message yielded by a content source.
// IDs increase monotonically within a channel. Messages belonging to one
// album share a non-zero GroupID.
type RawMessage struct {
	ID      int64
	Text    string
	Media   []MediaRef
	GroupID int64
	Date    time.Time
}

// ContentUnit is one logical post, possibly coalesced from several raw
// messages of an album. PrimaryID is the minimum message id of the group.
type ContentUnit struct {
	PrimaryID int64
	Text      string
	Media     []MediaRef
	Kinds     []MediaKind
}

// HasMedia reports whether any raw message of the unit carried media.
func (u ContentUnit) HasMedia() bool {
	return len(u.Media) > 0
}

// Usage is the token accounting returned by a summarizer call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Summary is the derived digest text for one content unit.
type Summary struct {
	Text  string
	Usage Usage
}
