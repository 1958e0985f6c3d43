package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tgchatbot/internal/config"
	"tgchatbot/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "test.db")},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db, "sqlite3")
}

func TestUpsertUserIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertUser(ctx, 42, "Alice", "alice"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := store.UpsertUser(ctx, 42, "Alicia", "alicia"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	second, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("get user after update: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.DisplayName != "Alicia" || second.Handle != "alicia" {
		t.Fatalf("mutable fields not updated: %+v", second)
	}

	n, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}

func TestInsertMessageRequiresOwner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertMessage(ctx, 7, models.RoleUser, "hello"); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}

	if err := store.UpsertUser(ctx, 7, "Bob", "bob"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	msg, err := store.InsertMessage(ctx, 7, models.RoleUser, "hello")
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if msg.SequenceID == 0 {
		t.Fatalf("expected server-assigned sequence id")
	}
	if msg.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}
}

func TestInsertMessageRejectsUnknownRole(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 7, "Bob", "bob"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := store.InsertMessage(ctx, 7, models.Role("system"), "nope"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestFetchRecentOrderingAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	contents := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, c := range contents {
		if _, err := store.InsertMessage(ctx, 1, models.RoleUser, c); err != nil {
			t.Fatalf("insert %s: %v", c, err)
		}
	}

	got, err := store.FetchRecent(ctx, 1, 3)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	want := []string{"m3", "m4", "m5"}
	for i, m := range got {
		if m.Content != want[i] {
			t.Fatalf("position %d: want %s got %s", i, want[i], m.Content)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].SequenceID <= got[i-1].SequenceID {
			t.Fatalf("sequence ids not strictly increasing: %d then %d", got[i-1].SequenceID, got[i].SequenceID)
		}
	}

	all, err := store.FetchRecent(ctx, 1, 100)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(all) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(all))
	}
}

func TestFetchRecentNonPositiveLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := store.InsertMessage(ctx, 1, models.RoleUser, "m"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, limit := range []int{0, -5} {
		got, err := store.FetchRecent(ctx, 1, limit)
		if err != nil {
			t.Fatalf("fetch with limit %d: %v", limit, err)
		}
		if len(got) != 0 {
			t.Fatalf("limit %d: expected empty result, got %d messages", limit, len(got))
		}
	}
}

func TestFetchRecentTimestampCollision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	// Force identical timestamps so only the sequence id can break the tie.
	now := time.Now().UTC().Truncate(time.Second)
	for _, c := range []string{"first", "second", "third"} {
		if _, err := store.DB().Exec(
			`INSERT INTO messages (owner_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
			1, models.RoleUser, c, now,
		); err != nil {
			t.Fatalf("insert %s: %v", c, err)
		}
	}

	got, err := store.FetchRecent(ctx, 1, 2)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(got) != 2 || got[0].Content != "second" || got[1].Content != "third" {
		t.Fatalf("tie-break by sequence id failed: %+v", got)
	}
}

func TestFetchRecentSurvivesClockStep(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	// Later inserts carry earlier timestamps, as after a backward clock
	// step. Insertion order must still win.
	now := time.Now().UTC().Truncate(time.Second)
	for i, c := range []string{"first", "second", "third"} {
		if _, err := store.DB().Exec(
			`INSERT INTO messages (owner_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
			1, models.RoleUser, c, now.Add(-time.Duration(i)*time.Minute),
		); err != nil {
			t.Fatalf("insert %s: %v", c, err)
		}
	}

	got, err := store.FetchRecent(ctx, 1, 2)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(got) != 2 || got[0].Content != "second" || got[1].Content != "third" {
		t.Fatalf("history reordered by timestamps: %+v", got)
	}
}

func TestDeleteMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertUser(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := store.UpsertUser(ctx, 2, "B", "b"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := store.InsertMessage(ctx, 1, models.RoleUser, "mine"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.InsertMessage(ctx, 2, models.RoleUser, "theirs"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.DeleteMessages(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again is a no-op.
	if err := store.DeleteMessages(ctx, 1); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}

	mine, err := store.FetchRecent(ctx, 1, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected empty history after delete, got %d", len(mine))
	}
	theirs, err := store.FetchRecent(ctx, 2, 10)
	if err != nil {
		t.Fatalf("fetch other owner: %v", err)
	}
	if len(theirs) != 1 {
		t.Fatalf("delete leaked into other owner: %d messages left", len(theirs))
	}
}

func TestCountsAndUserIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{10, 20, 30} {
		if err := store.UpsertUser(ctx, id, "", ""); err != nil {
			t.Fatalf("upsert %d: %v", id, err)
		}
	}
	if _, err := store.InsertMessage(ctx, 10, models.RoleUser, "hi"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.InsertMessage(ctx, 10, models.RoleAssistant, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	users, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	messages, err := store.CountMessages(ctx)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if users != 3 || messages != 2 {
		t.Fatalf("counts mismatch: users=%d messages=%d", users, messages)
	}

	ids, err := store.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range []int64{10, 20, 30} {
		if !seen[id] {
			t.Fatalf("missing id %d in %v", id, ids)
		}
	}
}

func TestGetUserMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetUser(context.Background(), 404); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
