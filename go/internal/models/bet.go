package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bet is a confirmed wager on a color for the next round resolution.
type Bet struct {
	Color    Color           `json:"color"`
	Stake    decimal.Decimal `json:"stake"`
	PlacedAt time.Time       `json:"placed_at"`
}

// GameResult is a personal history entry for a round the user had a bet in.
// WinAmount is nil when the bet lost.
type GameResult struct {
	ID          string           `json:"id"`
	Color       Color            `json:"color"`
	Stake       decimal.Decimal  `json:"stake"`
	WinAmount   *decimal.Decimal `json:"win_amount"`
	Timestamp   time.Time        `json:"timestamp"`
	RoundNumber int              `json:"round_number"`
}

// Won reports whether the result carries a payout.
func (r GameResult) Won() bool {
	return r.WinAmount != nil
}
