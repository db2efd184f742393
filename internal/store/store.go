// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/abenov/flowgram/internal/domain"
)

// Repository defines the interface for persisting users, messages and sessions.
type Repository interface {
	// GetUser retrieves a user by their Telegram user ID.
	// Returns (nil, nil) when the user is unknown.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// UpsertUser creates or updates a user record. Profile fields always
	// overwrite; an empty SessionID keeps whatever session is already
	// stored, while a non-empty one replaces it and records a sessions row.
	UpsertUser(ctx context.Context, user *domain.User) error

	// AppendMessage inserts one inbound message for the user.
	// Returns ErrUnknownUser when the user has no row yet.
	AppendMessage(ctx context.Context, userID int64, text string) error

	// GetUserSessionID returns the user's current session token, or ""
	// when the user is unknown or has no session yet.
	GetUserSessionID(ctx context.Context, userID int64) (string, error)

	// GetRecentMessages returns up to limit messages, newest first.
	GetRecentMessages(ctx context.Context, userID int64, limit int) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection. Safe to call once; all
	// operations afterwards return ErrClosed.
	Close() error
}
