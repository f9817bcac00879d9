package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/round"
	"github.com/shopspring/decimal"
)

// Snapshot is everything a client renders.
type Snapshot struct {
	Balance        decimal.Decimal       `json:"balance"`
	SelectedColor  *models.Color         `json:"selected_color"`
	SelectedStake  *decimal.Decimal      `json:"selected_stake"`
	PendingBet     *models.Bet           `json:"pending_bet"`
	RoundState     round.State           `json:"round_state"`
	TimeRemaining  int                   `json:"time_remaining"`
	CurrentRound   int                   `json:"current_round"`
	RoundActive    bool                  `json:"round_active"`
	RoundEndsAt    *time.Time            `json:"round_ends_at,omitempty"`
	WinningColors  []models.Color        `json:"winning_colors"`
	ColorStats     models.ColorStats     `json:"color_stats"`
	History        []models.GameResult   `json:"history"`
	RoundSummaries []models.RoundSummary `json:"round_summaries"`
	OnlineUsers    int                   `json:"online_users"`
}

// Tick is pushed once per countdown second instead of a full Snapshot.
type Tick struct {
	RoundNumber   int  `json:"current_round"`
	TimeRemaining int  `json:"time_remaining"`
	RoundActive   bool `json:"round_active"`
}

// MessageType names server-to-client messages that are not engine events.
type MessageType string

const (
	MessageTypeSnapshot     MessageType = "Snapshot"
	MessageTypeStateChanged MessageType = "StateChanged"
	MessageTypeActionResult MessageType = "ActionResult"
)

// ServerMessage is the envelope pushed to WebSocket clients.
type ServerMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ActionResult answers one client action.
type ActionResult struct {
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Client message types
const (
	ClientVisibility     = "visibility"
	ClientSelectColor    = "select_color"
	ClientSelectStake    = "select_stake"
	ClientPlaceBet       = "place_bet"
	ClientResetSelection = "reset_selection"
)

// ClientMessage is anything a client sends over the socket.
type ClientMessage struct {
	Type    string          `json:"type"`
	Visible *bool           `json:"visible,omitempty"`
	Color   string          `json:"color,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
}
