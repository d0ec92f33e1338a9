package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"digest_bot/internal/model"
	"digest_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateChannel inserts a new channel and populates its ID and CreatedAt.
func (s *SQLite) CreateChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (username, title, last_post_id, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ch.Username, ch.Title, ch.LastPostID, boolToInt(ch.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	ch.ID = id
	ch.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetChannelByUsername returns a channel by its username.
func (s *SQLite) GetChannelByUsername(ctx context.Context, username string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, title, last_post_id, is_active, last_checked_at, created_at
		 FROM channels WHERE username = ?`, username,
	)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ch, err
}

// ListWatchedChannels returns active channels that have at least one subscriber.
func (s *SQLite) ListWatchedChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.username, c.title, c.last_post_id, c.is_active, c.last_checked_at, c.created_at
		 FROM channels c
		 WHERE c.is_active = 1
		   AND EXISTS (SELECT 1 FROM subscriptions sub WHERE sub.channel_id = c.id)
		 ORDER BY c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query watched channels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChannels(rows)
}

// ListUserChannels returns all channels the given user is subscribed to.
func (s *SQLite) ListUserChannels(ctx context.Context, userID int64) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.username, c.title, c.last_post_id, c.is_active, c.last_checked_at, c.created_at
		 FROM channels c
		 JOIN subscriptions sub ON sub.channel_id = c.id
		 WHERE sub.user_id = ?
		 ORDER BY c.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user channels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChannels(rows)
}

// AdvanceWatermark raises the channel watermark to postID.
// The MAX() guard makes the watermark monotonically non-decreasing no
// matter what the caller passes.
func (s *SQLite) AdvanceWatermark(ctx context.Context, channelID, postID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET last_post_id = MAX(last_post_id, ?) WHERE id = ?`,
		postID, channelID,
	)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// TouchLastChecked records that the channel was polled now.
func (s *SQLite) TouchLastChecked(ctx context.Context, channelID int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET last_checked_at = ? WHERE id = ?`, now, channelID,
	)
	if err != nil {
		return fmt.Errorf("touch last checked: %w", err)
	}
	return nil
}

// GetOrCreateUser looks a user up by telegram id, inserting on first contact.
// Username and first name are refreshed on every call.
func (s *SQLite) GetOrCreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, interests, created_at)
		 VALUES (?, ?, ?, '', ?)
		 ON CONFLICT (telegram_id) DO UPDATE SET username = excluded.username, first_name = excluded.first_name`,
		u.TelegramID, u.Username, u.FirstName, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, username, first_name, interests, created_at
		 FROM users WHERE telegram_id = ?`, u.TelegramID,
	)
	var createdStr string
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Interests, &createdStr); err != nil {
		return fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return nil
}

// SetUserInterests replaces the user's interest profile.
func (s *SQLite) SetUserInterests(ctx context.Context, userID int64, interests string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET interests = ? WHERE id = ?`, interests, userID,
	)
	if err != nil {
		return fmt.Errorf("set interests: %w", err)
	}
	return nil
}

// Subscribe links a user to a channel. Returns false if the subscription
// already existed.
func (s *SQLite) Subscribe(ctx context.Context, userID, channelID int64) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (user_id, channel_id, created_at) VALUES (?, ?, ?)`,
		userID, channelID, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Unsubscribe removes a user-channel link. Returns false if it did not exist.
func (s *SQLite) Unsubscribe(ctx context.Context, userID, channelID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND channel_id = ?`,
		userID, channelID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSubscribers returns all users subscribed to the given channel.
func (s *SQLite) ListSubscribers(ctx context.Context, channelID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.telegram_id, u.username, u.first_name, u.interests, u.created_at
		 FROM users u
		 JOIN subscriptions sub ON sub.user_id = u.id
		 WHERE sub.channel_id = ?
		 ORDER BY u.id`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdStr string
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Interests, &createdStr); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		users = append(users, u)
	}
	return users, rows.Err()
}

// ClaimPost reserves a (channel, post) pair for processing. The unique key
// on posts makes the claim exactly-once across restarts: the first caller
// gets ClaimAcquired, everyone after sees ClaimPending until the summary is
// written and ClaimDone afterwards.
func (s *SQLite) ClaimPost(ctx context.Context, channelID, postID int64, content string) (ClaimResult, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO posts (channel_id, post_id, content, summary, created_at)
		 VALUES (?, ?, ?, NULL, ?)`,
		channelID, postID, content, now,
	)
	if err != nil {
		return ClaimDone, fmt.Errorf("claim post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ClaimDone, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return ClaimAcquired, nil
	}

	var summary sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT summary FROM posts WHERE channel_id = ? AND post_id = ?`,
		channelID, postID,
	).Scan(&summary)
	if err != nil {
		return ClaimDone, fmt.Errorf("check claim: %w", err)
	}
	if !summary.Valid {
		return ClaimPending, nil
	}
	return ClaimDone, nil
}

// FinalizePost writes the summary for a claimed post.
func (s *SQLite) FinalizePost(ctx context.Context, channelID, postID int64, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET summary = ? WHERE channel_id = ? AND post_id = ?`,
		summary, channelID, postID,
	)
	if err != nil {
		return fmt.Errorf("finalize post: %w", err)
	}
	return nil
}

// ReleasePost abandons a claim that was never finalized. Finalized posts
// are left untouched.
func (s *SQLite) ReleasePost(ctx context.Context, channelID, postID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE channel_id = ? AND post_id = ? AND summary IS NULL`,
		channelID, postID,
	)
	if err != nil {
		return fmt.Errorf("release post: %w", err)
	}
	return nil
}

// GetPost returns a single post by its channel and upstream post id.
func (s *SQLite) GetPost(ctx context.Context, channelID, postID int64) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, post_id, content, summary, created_at
		 FROM posts WHERE channel_id = ? AND post_id = ?`,
		channelID, postID,
	)
	var p model.Post
	var summary sql.NullString
	var createdStr string
	err := row.Scan(&p.ID, &p.ChannelID, &p.PostID, &p.Content, &summary, &createdStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.Summary = summary.String
	p.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &p, nil
}

// UpsertPendingSession starts a login attempt for the phone: any previous
// row for the same number is replaced with a fresh unauthorized one holding
// the challenge hash.
func (s *SQLite) UpsertPendingSession(ctx context.Context, phone, codeHash string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (phone_number, session_token, is_authorized, is_active, phone_code_hash, created_at)
		 VALUES (?, '', 0, 1, ?, ?)
		 ON CONFLICT (phone_number) DO UPDATE SET
		   session_token = '', is_authorized = 0, is_active = 1,
		   phone_code_hash = excluded.phone_code_hash, created_at = excluded.created_at`,
		phone, codeHash, now,
	)
	if err != nil {
		return fmt.Errorf("upsert pending session: %w", err)
	}
	return nil
}

// AuthorizeSession stores the exported session token for the phone and makes
// it the single active authorized session, deactivating all others.
func (s *SQLite) AuthorizeSession(ctx context.Context, phone, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE auth_sessions SET is_active = 0 WHERE phone_number != ?`, phone,
	); err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth_sessions (phone_number, session_token, is_authorized, is_active, phone_code_hash, created_at, last_used_at)
		 VALUES (?, ?, 1, 1, '', ?, ?)
		 ON CONFLICT (phone_number) DO UPDATE SET
		   session_token = excluded.session_token, is_authorized = 1, is_active = 1,
		   phone_code_hash = '', last_used_at = excluded.last_used_at`,
		phone, token, now, now,
	); err != nil {
		return fmt.Errorf("authorize session: %w", err)
	}

	return tx.Commit()
}

// ActiveAuthorizedSession returns the most recent session that is both
// active and authorized.
func (s *SQLite) ActiveAuthorizedSession(ctx context.Context) (*model.AuthSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, session_token, is_authorized, is_active, phone_code_hash, created_at, last_used_at
		 FROM auth_sessions
		 WHERE is_active = 1 AND is_authorized = 1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

// MarkSessionUnauthorized flags a session whose token no longer restores.
func (s *SQLite) MarkSessionUnauthorized(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET is_authorized = 0 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("mark unauthorized: %w", err)
	}
	return nil
}

// TouchSessionUsed records that the session token was used now.
func (s *SQLite) TouchSessionUsed(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET last_used_at = ? WHERE id = ?`, now, id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeactivateAllSessions is the logout path: every session loses both the
// active and the authorized flag.
func (s *SQLite) DeactivateAllSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET is_active = 0, is_authorized = 0`,
	)
	if err != nil {
		return fmt.Errorf("deactivate all sessions: %w", err)
	}
	return nil
}

// GetSetting returns a settings value by key.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a settings value, replacing any previous one.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChannel(row scannable) (*model.Channel, error) {
	var ch model.Channel
	var isActive int
	var lastChecked, created sql.NullString
	err := row.Scan(&ch.ID, &ch.Username, &ch.Title, &ch.LastPostID, &isActive, &lastChecked, &created)
	if err != nil {
		return nil, err
	}
	ch.IsActive = isActive == 1
	if lastChecked.Valid {
		t, _ := time.Parse(timeLayout, lastChecked.String)
		ch.LastCheckedAt = &t
	}
	if created.Valid {
		ch.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &ch, nil
}

func scanChannels(rows *sql.Rows) ([]model.Channel, error) {
	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func scanSession(row scannable) (*model.AuthSession, error) {
	var sess model.AuthSession
	var isAuthorized, isActive int
	var created sql.NullString
	var lastUsed sql.NullString
	err := row.Scan(&sess.ID, &sess.PhoneNumber, &sess.SessionToken, &isAuthorized, &isActive,
		&sess.PhoneCodeHash, &created, &lastUsed)
	if err != nil {
		return nil, err
	}
	sess.IsAuthorized = isAuthorized == 1
	sess.IsActive = isActive == 1
	if created.Valid {
		sess.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if lastUsed.Valid {
		t, _ := time.Parse(timeLayout, lastUsed.String)
		sess.LastUsedAt = &t
	}
	return &sess, nil
}
