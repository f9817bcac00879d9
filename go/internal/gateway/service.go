// Package gateway serves the game to browsers: a JSON API for the current
// state and player actions, and a WebSocket that pushes a fresh snapshot on
// every round event.
package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/archive"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/presence"
	"github.com/mcdev12/colorclash/go/internal/round"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Game is the player-facing side of the game app.
type Game interface {
	State() models.GameState
	SelectColor(ctx context.Context, color models.Color) error
	SelectStake(ctx context.Context, amount decimal.Decimal) error
	PlaceBet(ctx context.Context) bool
	ResetSelection(ctx context.Context)
}

// Rounds exposes the round engine.
type Rounds interface {
	Status() round.Status
	Resync(ctx context.Context)
}

// Presence registers one session per socket.
type Presence interface {
	RegisterSession(ctx context.Context, userID string) (*presence.Session, error)
	Count(ctx context.Context) (int, error)
}

// History lists archived rounds. Optional.
type History interface {
	Recent(ctx context.Context, limit int) ([]archive.Entry, error)
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Version          string
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Version:          "dev",
	}
}

// Service is the game gateway
type Service struct {
	game     Game
	rounds   Rounds
	presence Presence
	history  History
	clock    clockwork.Clock
	cfg      Config

	connectionManager *ConnectionManager
	onlineUsers       atomic.Int64
	startedAt         time.Time
}

// NewService creates a new gateway service. history may be nil.
func NewService(cfg Config, game Game, rounds Rounds, tracker Presence, history History, clock clockwork.Clock) *Service {
	s := &Service{
		game:              game,
		rounds:            rounds,
		presence:          tracker,
		history:           history,
		clock:             clock,
		cfg:               cfg,
		connectionManager: NewConnectionManager(cfg.ConnectionConfig),
		startedAt:         clock.Now(),
	}
	s.connectionManager.onMessage = s.handleClientMessage
	return s
}

// Start runs the broadcaster until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	if n, err := s.presence.Count(ctx); err == nil {
		s.onlineUsers.Store(int64(n))
	}

	s.connectionManager.Start(ctx)
	log.Info().Msg("game gateway service stopped")
	return nil
}

// HandleEvent pushes a frame tagged with the event type to every client: a
// Tick for countdown ticks and a full Snapshot otherwise. It is subscribed to
// the event bus and never blocks.
func (s *Service) HandleEvent(_ context.Context, e events.Event) {
	switch e.Type {
	case events.EventTypeRoundTick:
		s.broadcastTick(e)
		return
	case events.EventTypeOnlineCount:
		var p events.OnlineCountPayload
		if err := json.Unmarshal(e.Data, &p); err == nil {
			s.onlineUsers.Store(int64(p.Count))
		}
	}
	s.broadcastSnapshot(string(e.Type))
}

func (s *Service) broadcastTick(e events.Event) {
	tick := Tick{RoundNumber: e.RoundNumber, RoundActive: true}
	var p events.RoundTickPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		log.Warn().Err(err).Msg("unreadable tick payload, falling back to engine status")
		status := s.rounds.Status()
		tick.TimeRemaining = status.Remaining
		tick.RoundActive = status.RoundActive
	} else {
		tick.TimeRemaining = p.RemainingSec
	}

	data, ok := s.encode(string(e.Type), tick)
	if !ok {
		return
	}
	s.connectionManager.Broadcast(data)
}

// Snapshot assembles the current view of the game.
func (s *Service) Snapshot() Snapshot {
	state := s.game.State()
	status := s.rounds.Status()

	snap := Snapshot{
		Balance:        state.Balance,
		SelectedColor:  state.SelectedColor,
		SelectedStake:  state.SelectedStake,
		PendingBet:     state.PendingBet,
		RoundState:     status.State,
		TimeRemaining:  status.Remaining,
		CurrentRound:   status.RoundNumber,
		RoundActive:    status.RoundActive,
		WinningColors:  state.WinningColors,
		ColorStats:     state.ColorStats,
		History:        state.History,
		RoundSummaries: state.RoundSummaries,
		OnlineUsers:    int(s.onlineUsers.Load()),
	}
	if snap.CurrentRound == 0 {
		snap.CurrentRound = state.CurrentRound
	}
	if !status.EndsAt.IsZero() {
		endsAt := status.EndsAt
		snap.RoundEndsAt = &endsAt
	}
	return snap
}

func (s *Service) broadcastSnapshot(msgType string) {
	data, ok := s.encode(msgType, s.Snapshot())
	if !ok {
		return
	}
	s.connectionManager.Broadcast(data)
}

func (s *Service) encode(msgType string, payload any) ([]byte, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to marshal message payload")
		return nil, false
	}
	data, err := json.Marshal(ServerMessage{
		Type:      msgType,
		Timestamp: s.clock.Now(),
		Data:      raw,
	})
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to marshal message")
		return nil, false
	}
	return data, true
}

// Connections returns the number of open sockets.
func (s *Service) Connections() int {
	return s.connectionManager.Count()
}

func (s *Service) handleClientMessage(c *Connection, message []byte) {
	ctx := context.Background()

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		s.reply(c, ActionResult{Action: "unknown", Error: "malformed message"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("type", msg.Type).
		Msg("received client message")

	result := ActionResult{Action: msg.Type}
	switch msg.Type {
	case ClientVisibility:
		if msg.Visible == nil {
			result.Error = "visible is required"
			break
		}
		if err := c.Session.SetVisible(ctx, *msg.Visible); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to update visibility")
		}
		if *msg.Visible {
			s.rounds.Resync(ctx)
		}
		result.Accepted = true
		// presence changes arrive as OnlineCount events; this client still
		// needs a catch-up snapshot
		if data, ok := s.encode(string(MessageTypeSnapshot), s.Snapshot()); ok {
			s.connectionManager.SendTo(c, data)
		}
		s.reply(c, result)
		return

	case ClientSelectColor:
		resp, _ := s.SelectColor(ctx, msg.Color)
		result.Accepted, result.Error = resp.Accepted, resp.Error

	case ClientSelectStake:
		resp, _ := s.SelectStake(ctx, msg.Amount)
		result.Accepted, result.Error = resp.Accepted, resp.Error

	case ClientPlaceBet:
		result.Accepted = s.PlaceBet(ctx).Accepted

	case ClientResetSelection:
		result.Accepted = s.ResetSelection(ctx).Accepted

	default:
		result.Error = "unknown message type"
	}

	s.reply(c, result)
}

func (s *Service) reply(c *Connection, result ActionResult) {
	if data, ok := s.encode(string(MessageTypeActionResult), result); ok {
		s.connectionManager.SendTo(c, data)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
