// Package domain contains core domain types for the relay.
package domain

import (
	"time"
)

// User represents a Telegram user known to the bot.
type User struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSession returns true if the user has been assigned a conversation session.
func (u *User) HasSession() bool {
	return u.SessionID != ""
}

// DisplayName returns the friendliest available name for greetings.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "there"
}
