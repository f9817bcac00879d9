package events

import (
	"time"

	"github.com/mcdev12/colorclash/go/internal/models"
)

// Event payload types shared between the round engine, gateway and archive

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	RoundNumber  int       `json:"round_number"`
	StartedAt    time.Time `json:"started_at"`
	EndsAt       time.Time `json:"ends_at"`
	DurationSec  int       `json:"duration_sec"`
	RemainingSec int       `json:"remaining_sec"`
	Resumed      bool      `json:"resumed"`
}

// RoundTickPayload is the payload for a RoundTick event
type RoundTickPayload struct {
	RoundNumber  int `json:"round_number"`
	RemainingSec int `json:"remaining_sec"`
}

// RoundSettledPayload is the payload for a RoundSettled event
type RoundSettledPayload struct {
	Summary models.RoundSummary `json:"summary"`
	Result  *models.GameResult  `json:"result,omitempty"`
}

// RoundsSkippedPayload is the payload for a RoundsSkipped event
type RoundsSkippedPayload struct {
	Summaries []models.RoundSummary `json:"summaries"`
	NextRound int                   `json:"next_round"`
}

// OnlineCountPayload is the payload for an OnlineCount event
type OnlineCountPayload struct {
	Count int `json:"count"`
}
