package models

import "time"

// SessionRecord is one client session in the presence registry.
type SessionRecord struct {
	UserID         string    `json:"user_id"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	SessionStartAt time.Time `json:"session_start_at"`
	Active         bool      `json:"active"`
}
