package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundRecord is the persisted timer state of the round in progress.
type RoundRecord struct {
	RoundNumber     int       `json:"round_number"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	LastSavedAt     time.Time `json:"last_saved_at"`
}

// Valid reports whether the record can drive a countdown.
func (r RoundRecord) Valid() bool {
	return r.RoundNumber >= 1 && r.DurationSeconds > 0 && !r.StartTime.IsZero()
}

// RoundSummary is the immutable outcome of one resolved round.
type RoundSummary struct {
	RoundNumber      int             `json:"round_number"`
	TotalStaked      decimal.Decimal `json:"total_staked"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	ParticipantCount int             `json:"participant_count"`
	WinningColor     Color           `json:"winning_color"`
	Timestamp        time.Time       `json:"timestamp"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	// Skipped marks rounds replayed while no host was running.
	Skipped bool `json:"skipped,omitempty"`
}

// SyncMarker is the background-sync heartbeat written while rounds run.
type SyncMarker struct {
	LastSync time.Time `json:"last_sync"`
	Active   bool      `json:"active"`
}
