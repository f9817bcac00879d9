package models

import "github.com/shopspring/decimal"

// ColorStats holds the rounded win percentage of each color.
type ColorStats map[Color]int

// GameState is the persisted single-player game blob.
type GameState struct {
	Balance        decimal.Decimal  `json:"balance"`
	History        []GameResult     `json:"history"`
	WinningColors  []Color          `json:"winning_colors"`
	ColorStats     ColorStats       `json:"color_stats"`
	CurrentRound   int              `json:"current_round"`
	RoundSummaries []RoundSummary   `json:"round_summaries"`
	SelectedColor  *Color           `json:"selected_color,omitempty"`
	SelectedStake  *decimal.Decimal `json:"selected_stake,omitempty"`
	PendingBet     *Bet             `json:"pending_bet,omitempty"`
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (s GameState) Clone() GameState {
	out := s
	out.History = append([]GameResult(nil), s.History...)
	out.WinningColors = append([]Color(nil), s.WinningColors...)
	out.RoundSummaries = append([]RoundSummary(nil), s.RoundSummaries...)
	out.ColorStats = make(ColorStats, len(s.ColorStats))
	for k, v := range s.ColorStats {
		out.ColorStats[k] = v
	}
	if s.SelectedColor != nil {
		c := *s.SelectedColor
		out.SelectedColor = &c
	}
	if s.SelectedStake != nil {
		st := *s.SelectedStake
		out.SelectedStake = &st
	}
	if s.PendingBet != nil {
		b := *s.PendingBet
		out.PendingBet = &b
	}
	return out
}
