package domain

import (
	"time"
)

// Session records one conversation context assigned to a user. The agent
// service uses the token to retain dialogue memory across calls; a user may
// accumulate several historical rows, but users.session_id always points at
// the newest one.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
