package models

import "time"

// Session is a refresh-token session. Only the SHA-256 hash of the token
// leaves the auth service; the raw value lives in the client cookie.
type Session struct {
	TokenHash string    `json:"token_hash"`
	UserID    int64     `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
