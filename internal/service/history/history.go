// Package history is the conversation context store: it owns all storage
// access for users and messages and enforces the conversation window policy.
package history

import (
	"context"
	"fmt"

	"tgchatbot/internal/models"
	"tgchatbot/internal/storage"
)

const defaultWindow = 10

// Service wraps the storage engine with conversation-level semantics.
// The window bounds how much history a completion request may carry; stored
// history itself is unbounded.
type Service struct {
	store  *storage.Store
	window int
}

// NewService builds a context store with the given window size. A
// non-positive window falls back to the default of 10.
func NewService(store *storage.Store, window int) *Service {
	if window <= 0 {
		window = defaultWindow
	}
	return &Service{store: store, window: window}
}

// Window returns the configured conversation window size.
func (s *Service) Window() int {
	return s.window
}

// RecordUser registers or refreshes an owner. Must be called before the
// first Append for that owner.
func (s *Service) RecordUser(ctx context.Context, id int64, displayName, handle string) error {
	return s.store.UpsertUser(ctx, id, displayName, handle)
}

// Append persists one message for a previously recorded owner.
func (s *Service) Append(ctx context.Context, ownerID int64, role models.Role, content string) (*models.Message, error) {
	return s.store.InsertMessage(ctx, ownerID, role, content)
}

// History returns at most window messages for the owner, oldest first. It
// never mutates storage.
func (s *Service) History(ctx context.Context, ownerID int64, window int) ([]models.Message, error) {
	return s.store.FetchRecent(ctx, ownerID, window)
}

// Recent returns the owner's history bounded by the configured window.
func (s *Service) Recent(ctx context.Context, ownerID int64) ([]models.Message, error) {
	return s.store.FetchRecent(ctx, ownerID, s.window)
}

// Reset clears the owner's conversation history.
func (s *Service) Reset(ctx context.Context, ownerID int64) error {
	return s.store.DeleteMessages(ctx, ownerID)
}

// Stats reports the total user and message counts.
func (s *Service) Stats(ctx context.Context) (users, messages int64, err error) {
	users, err = s.store.CountUsers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("stats: %w", err)
	}
	messages, err = s.store.CountMessages(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("stats: %w", err)
	}
	return users, messages, nil
}

// BroadcastTargets returns every known owner id. Sending anything to them is
// the transport layer's job.
func (s *Service) BroadcastTargets(ctx context.Context) ([]int64, error) {
	return s.store.ListUserIDs(ctx)
}
