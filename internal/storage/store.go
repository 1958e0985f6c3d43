package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tgchatbot/internal/models"
)

// ErrOwnerNotFound is returned when a message is inserted for an owner that
// was never recorded. It signals a caller ordering bug, not user input.
var ErrOwnerNotFound = errors.New("owner not found")

// Store provides durable persistence for users and messages. Each method
// commits as a single statement; no cross-operation transactionality is
// offered or needed by callers.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore wraps an open database connection.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: strings.ToLower(driver)}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UpsertUser inserts the user if absent, otherwise updates the mutable
// fields. created_at is set once on first insert and never overwritten.
// Idempotent; duplicate calls are not an error.
func (s *Store) UpsertUser(ctx context.Context, id int64, displayName, handle string) error {
	if id == 0 {
		return errors.New("user id is required")
	}
	now := time.Now().UTC()

	var query string
	switch s.driver {
	case "mysql":
		query = `INSERT INTO users (id, display_name, handle, created_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE display_name = VALUES(display_name), handle = VALUES(handle)`
	default:
		query = `INSERT INTO users (id, display_name, handle, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, handle = excluded.handle`
	}
	if _, err := s.db.ExecContext(ctx, query, id, displayName, handle, now); err != nil {
		return fmt.Errorf("upsert user %d: %w", id, err)
	}
	return nil
}

// GetUser returns the stored user or sql.ErrNoRows when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, handle, created_at FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.DisplayName, &user.Handle, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// InsertMessage appends one immutable record with a server-assigned timestamp
// and sequence id. Returns ErrOwnerNotFound if the owner was never recorded.
func (s *Store) InsertMessage(ctx context.Context, ownerID int64, role models.Role, content string) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, ownerID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify owner %d: %w", ownerID, err)
	}
	if !exists {
		return nil, ErrOwnerNotFound
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (owner_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		ownerID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message for owner %d: %w", ownerID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message sequence id: %w", err)
	}
	return &models.Message{
		SequenceID: seq,
		OwnerID:    ownerID,
		Role:       role,
		Content:    content,
		Timestamp:  now,
	}, nil
}

// FetchRecent returns up to limit messages for the owner in insertion order:
// the newest rows are selected by descending sequence id and then reversed.
// The sequence id is the authoritative order; the timestamp is display-only
// and a clock step must not reorder history. A limit <= 0 yields an empty
// slice.
func (s *Store) FetchRecent(ctx context.Context, ownerID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence_id, owner_id, role, content, timestamp FROM messages
		 WHERE owner_id = ? ORDER BY sequence_id DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch recent for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var newestFirst []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.SequenceID, &m.OwnerID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	out := make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

// DeleteMessages removes all messages for the owner. Deleting for an owner
// with no messages is a no-op, not an error.
func (s *Store) DeleteMessages(ctx context.Context, ownerID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete messages for owner %d: %w", ownerID, err)
	}
	return nil
}

// CountUsers returns the total number of recorded users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountMessages returns the total number of stored messages.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// ListUserIDs returns the ids of all known users, in no particular order.
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
