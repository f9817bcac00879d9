// Package game owns the persisted single-player game state: balance, the
// pending selection and bet, and the round histories.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/settlement"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidColor = errors.New("invalid color")
	ErrInvalidStake = errors.New("invalid stake")
)

// StateRepository defines what the app layer needs from the repository
type StateRepository interface {
	LoadState(ctx context.Context) (models.GameState, bool, error)
	SaveState(ctx context.Context, state models.GameState) error
}

// Config tunes balances and history retention.
type Config struct {
	InitialBalance decimal.Decimal
	FeeRate        decimal.Decimal
	// HistoryWindow caps the winning-color history.
	HistoryWindow int
	// AllowedStakes restricts SelectStake; empty allows any positive amount.
	AllowedStakes []decimal.Decimal
}

// DefaultConfig returns the stock game tuning.
func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(100),
		FeeRate:        settlement.DefaultFeeRate,
		HistoryWindow:  20,
		AllowedStakes: []decimal.Decimal{
			decimal.NewFromInt(1),
			decimal.NewFromInt(2),
			decimal.NewFromInt(5),
		},
	}
}

// App handles game business logic
type App struct {
	mu    sync.Mutex
	repo  StateRepository
	clock clockwork.Clock
	cfg   Config
	state models.GameState
	newID func() string
}

// NewApp loads the persisted state, falling back to a fresh game when it is
// missing or unreadable.
func NewApp(ctx context.Context, repo StateRepository, clock clockwork.Clock, cfg Config) *App {
	a := &App{
		repo:  repo,
		clock: clock,
		cfg:   cfg,
		newID: uuid.NewString,
	}

	state, found, err := repo.LoadState(ctx)
	switch {
	case err != nil && errors.Is(err, kvstore.ErrMalformed):
		log.Warn().Err(err).Msg("discarding malformed game state")
		a.state = a.freshState()
	case err != nil:
		log.Error().Err(err).Msg("failed to load game state, starting fresh")
		a.state = a.freshState()
	case !found:
		a.state = a.freshState()
	default:
		a.state = a.normalize(state)
	}
	return a
}

func (a *App) freshState() models.GameState {
	return models.GameState{
		Balance:        a.cfg.InitialBalance,
		History:        []models.GameResult{},
		WinningColors:  []models.Color{},
		ColorStats:     CalculateColorStats(nil),
		CurrentRound:   1,
		RoundSummaries: []models.RoundSummary{},
	}
}

// normalize repairs fields a partial blob may be missing.
func (a *App) normalize(s models.GameState) models.GameState {
	if s.CurrentRound < 1 {
		s.CurrentRound = 1
	}
	if s.History == nil {
		s.History = []models.GameResult{}
	}
	if s.RoundSummaries == nil {
		s.RoundSummaries = []models.RoundSummary{}
	}
	if s.WinningColors == nil {
		s.WinningColors = []models.Color{}
	}
	if len(s.WinningColors) > a.cfg.HistoryWindow {
		s.WinningColors = s.WinningColors[:a.cfg.HistoryWindow]
	}
	s.ColorStats = CalculateColorStats(s.WinningColors)
	return s
}

// State returns a copy of the current game state.
func (a *App) State() models.GameState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Balance returns the current balance.
func (a *App) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Balance
}

// CurrentRound returns the number of the next round to resolve.
func (a *App) CurrentRound(_ context.Context) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.CurrentRound
}

// SelectColor sets the pending color selection.
func (a *App) SelectColor(ctx context.Context, color models.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.SelectedColor = &color
	a.persist(ctx)
	return nil
}

// SelectStake sets the pending stake selection.
func (a *App) SelectStake(ctx context.Context, amount decimal.Decimal) error {
	if !a.stakeAllowed(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidStake, amount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.SelectedStake = &amount
	a.persist(ctx)
	return nil
}

func (a *App) stakeAllowed(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	if len(a.cfg.AllowedStakes) == 0 {
		return true
	}
	for _, s := range a.cfg.AllowedStakes {
		if s.Equal(amount) {
			return true
		}
	}
	return false
}

// PlaceBet turns the current selection into the pending bet. It reports false,
// leaving state untouched, when no color or stake is selected, the stake
// exceeds the balance, or a bet is already pending.
func (a *App) PlaceBet(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.state
	if s.SelectedColor == nil || s.SelectedStake == nil {
		return false
	}
	if s.SelectedStake.GreaterThan(s.Balance) {
		return false
	}
	if s.PendingBet != nil {
		return false
	}

	s.PendingBet = &models.Bet{
		Color:    *s.SelectedColor,
		Stake:    *s.SelectedStake,
		PlacedAt: a.clock.Now(),
	}
	a.persist(ctx)

	log.Info().
		Str("color", s.PendingBet.Color.String()).
		Str("stake", s.PendingBet.Stake.String()).
		Int("round_number", s.CurrentRound).
		Msg("bet placed")
	return true
}

// ResetSelection clears the color and stake selection. A placed bet stays.
func (a *App) ResetSelection(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.SelectedColor = nil
	a.state.SelectedStake = nil
	a.persist(ctx)
}

// SettleRound consumes the pending bet against winning and merges the
// outcome into the state. The returned error only reports a failed save;
// the outcome is applied in memory either way.
func (a *App) SettleRound(ctx context.Context, roundNumber int, winning models.Color, at time.Time) (settlement.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.state
	var participants []settlement.Participant
	if s.PendingBet != nil {
		participants = append(participants, settlement.Participant{
			UserID:      "you",
			Bet:         *s.PendingBet,
			CurrentUser: true,
		})
	}

	out := settlement.Settle(settlement.Input{
		RoundNumber:  roundNumber,
		WinningColor: winning,
		Participants: participants,
		FeeRate:      a.cfg.FeeRate,
		At:           at,
		NewResultID:  a.newID,
	})

	s.Balance = s.Balance.Add(out.BalanceDelta)
	if out.Result != nil {
		s.History = append([]models.GameResult{*out.Result}, s.History...)
	}
	a.pushWinningColor(winning)
	s.RoundSummaries = append([]models.RoundSummary{out.Summary}, s.RoundSummaries...)
	s.SelectedColor = nil
	s.SelectedStake = nil
	s.PendingBet = nil
	s.CurrentRound = roundNumber + 1

	if err := a.repo.SaveState(ctx, *s); err != nil {
		return out, err
	}
	return out, nil
}

// RecordMissedRounds appends summaries (oldest first) for rounds that elapsed
// while nothing was running. A pending bet is kept for the next witnessed
// resolution.
func (a *App) RecordMissedRounds(ctx context.Context, summaries []models.RoundSummary, nextRound int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.state
	for _, sum := range summaries {
		a.pushWinningColor(sum.WinningColor)
		s.RoundSummaries = append([]models.RoundSummary{sum}, s.RoundSummaries...)
	}
	if nextRound > s.CurrentRound {
		s.CurrentRound = nextRound
	}
	return a.repo.SaveState(ctx, *s)
}

func (a *App) pushWinningColor(c models.Color) {
	s := &a.state
	colors := append([]models.Color{c}, s.WinningColors...)
	if len(colors) > a.cfg.HistoryWindow {
		colors = colors[:a.cfg.HistoryWindow]
	}
	s.WinningColors = colors
	s.ColorStats = CalculateColorStats(colors)
}

func (a *App) persist(ctx context.Context) {
	if err := a.repo.SaveState(ctx, a.state); err != nil {
		log.Error().Err(err).Msg("failed to persist game state")
	}
}
