// Package session derives stable conversation-session tokens for users.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abenov/flowgram/internal/domain"
	"github.com/abenov/flowgram/internal/store"
	"github.com/google/uuid"
)

// Manager hands every inbound message a session token the agent can use to
// retain dialogue memory, minting one the first time a user is seen.
type Manager struct {
	repo store.Repository
}

// NewManager creates a session manager backed by the given repository.
func NewManager(repo store.Repository) *Manager {
	return &Manager{repo: repo}
}

// NewToken mints a fresh globally-unique session token without persisting it.
func NewToken() string {
	return uuid.NewString()
}

// EnsureSession returns the user's stored session token, minting and
// persisting a new one if the user has none. Sessions are never rotated
// here: once assigned, the same token is returned on every call.
func (m *Manager) EnsureSession(ctx context.Context, userID int64) (string, error) {
	sessionID, err := m.repo.GetUserSessionID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("look up session for user %d: %w", userID, err)
	}
	if sessionID != "" {
		return sessionID, nil
	}

	sessionID = NewToken()
	if err := m.repo.UpsertUser(ctx, &domain.User{
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return "", fmt.Errorf("persist session for user %d: %w", userID, err)
	}

	slog.Info("assigned new conversation session", "user_id", userID, "session_id", sessionID)
	return sessionID, nil
}
