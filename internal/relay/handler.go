// Package relay orchestrates one inbound-message event end to end.
package relay

import (
	"context"
	"fmt"

	"github.com/abenov/flowgram/internal/domain"
	"github.com/abenov/flowgram/internal/session"
	"github.com/abenov/flowgram/internal/store"
)

// Agent is the outbound call the relay depends on.
type Agent interface {
	Call(ctx context.Context, message, sessionID string) (string, error)
}

// Handler ties an inbound message to its durable conversation identity and
// the outbound agent call. It never retries: every failure propagates to the
// transport, which owns the user-visible behavior.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	agent    Agent
}

// NewHandler creates a relay handler.
func NewHandler(repo store.Repository, sessions *session.Manager, agent Agent) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		agent:    agent,
	}
}

// RegisterNewUser records a user's profile and assigns a fresh conversation
// session, returning the new token. Calling it again for the same user mints
// a fresh token: the explicit new value overwrites the stored one, starting
// a new conversation from the agent's perspective.
func (h *Handler) RegisterNewUser(ctx context.Context, user domain.User) (string, error) {
	user.SessionID = session.NewToken()
	if err := h.repo.UpsertUser(ctx, &user); err != nil {
		return "", fmt.Errorf("register user %d: %w", user.UserID, err)
	}
	return user.SessionID, nil
}

// RelayMessage persists the inbound text, resolves the user's session and
// returns the agent's reply.
func (h *Handler) RelayMessage(ctx context.Context, userID int64, text string) (string, error) {
	if err := h.repo.AppendMessage(ctx, userID, text); err != nil {
		return "", err
	}

	sessionID, err := h.sessions.EnsureSession(ctx, userID)
	if err != nil {
		return "", err
	}

	reply, err := h.agent.Call(ctx, text, sessionID)
	if err != nil {
		return "", err
	}

	return reply, nil
}
