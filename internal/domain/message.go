package domain

import (
	"time"
)

// Message is a single inbound text message, append-only.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
