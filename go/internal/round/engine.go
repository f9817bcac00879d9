// Package round runs the countdown, resolution and restart cycle of the game
// and keeps it consistent with the persisted round timer.
package round

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/roundtimer"
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/mcdev12/colorclash/go/internal/settlement"
	"github.com/rs/zerolog/log"
)

// ErrRoundInProgress is returned by Start while another round is counting down.
var ErrRoundInProgress = errors.New("round in progress")

// State is the engine's lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateCountdown State = "countdown"
	StateResolving State = "resolving"
)

// Config holds round timing.
type Config struct {
	RoundDuration time.Duration
	TickInterval  time.Duration
	// ResultPause is the gap between a resolution and the next round.
	ResultPause time.Duration
	// SaveEvery re-persists the round record whenever the remaining seconds
	// are a multiple of it.
	SaveEvery int
}

// DefaultConfig returns the stock two-minute round.
func DefaultConfig() Config {
	return Config{
		RoundDuration: 120 * time.Second,
		TickInterval:  time.Second,
		ResultPause:   3 * time.Second,
		SaveEvery:     10,
	}
}

// Ledger settles rounds against the game state.
type Ledger interface {
	CurrentRound(ctx context.Context) int
	SettleRound(ctx context.Context, roundNumber int, winning models.Color, at time.Time) (settlement.Outcome, error)
	RecordMissedRounds(ctx context.Context, summaries []models.RoundSummary, nextRound int) error
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State     `json:"state"`
	RoundNumber int       `json:"round_number"`
	Remaining   int       `json:"remaining"`
	RoundActive bool      `json:"round_active"`
	EndsAt      time.Time `json:"ends_at,omitempty"`
}

// Engine is the round state machine. Every transition happens under mu and
// every scheduled callback carries the generation it was scheduled in, so a
// callback that outlived a restart does nothing.
type Engine struct {
	timer  *roundtimer.Service
	ledger Ledger
	sched  scheduler.Scheduler
	clock  clockwork.Clock
	sink   events.Sink
	draw   Drawer
	cfg    Config

	mu          sync.Mutex
	ctx         context.Context
	state       State
	roundNumber int
	remaining   int
	startTime   time.Time
	generation  uint64
	pending     scheduler.Handle
}

// NewEngine creates an idle engine. A nil draw uses RandomDraw; a nil sink
// discards events.
func NewEngine(
	timer *roundtimer.Service,
	ledger Ledger,
	sched scheduler.Scheduler,
	clock clockwork.Clock,
	sink events.Sink,
	draw Drawer,
	cfg Config,
) *Engine {
	if draw == nil {
		draw = RandomDraw
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = DefaultConfig().SaveEvery
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Engine{
		timer:  timer,
		ledger: ledger,
		sched:  sched,
		clock:  clock,
		sink:   sink,
		draw:   draw,
		cfg:    cfg,
		ctx:    context.Background(),
		state:  StateIdle,
	}
}

// Run recovers the round in progress and keeps the engine going until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	e.Recover(ctx)
	<-ctx.Done()
	e.Stop(context.WithoutCancel(ctx))
	return nil
}

func (e *Engine) durationSec() int {
	return int(e.cfg.RoundDuration / time.Second)
}

func (e *Engine) pauseSec() int {
	return int(e.cfg.ResultPause / time.Second)
}

// Start begins a countdown for roundNumber. It is a no-op when that round is
// already counting down.
func (e *Engine) Start(ctx context.Context, roundNumber int) error {
	e.mu.Lock()
	if e.state == StateCountdown {
		running := e.roundNumber
		e.mu.Unlock()
		if running == roundNumber {
			return nil
		}
		return ErrRoundInProgress
	}
	evs := e.beginLocked(ctx, roundNumber, e.clock.Now(), false)
	e.mu.Unlock()

	e.emit(ctx, evs...)
	return nil
}

// beginLocked enters Countdown for roundNumber with the given start time.
// Fresh rounds are persisted; resumed ones keep their stored record.
func (e *Engine) beginLocked(ctx context.Context, roundNumber int, startTime time.Time, resumed bool) []events.Event {
	e.cancelPendingLocked()
	e.generation++

	now := e.clock.Now()
	e.state = StateCountdown
	e.roundNumber = roundNumber
	e.startTime = startTime
	e.remaining = e.remainingAt(now)

	if !resumed {
		if err := e.timer.Save(ctx, startTime, e.durationSec(), roundNumber); err != nil {
			log.Error().Err(err).Int("round_number", roundNumber).Msg("failed to persist round timer")
		}
	}
	if err := e.timer.SaveSyncMarker(ctx, now, true); err != nil {
		log.Warn().Err(err).Msg("failed to write background sync marker")
	}

	e.scheduleTickLocked()

	log.Info().
		Int("round_number", roundNumber).
		Int("remaining", e.remaining).
		Bool("resumed", resumed).
		Msg("round started")

	ev, ok := newEvent(events.EventTypeRoundStarted, roundNumber, now, events.RoundStartedPayload{
		RoundNumber:  roundNumber,
		StartedAt:    startTime,
		EndsAt:       startTime.Add(e.cfg.RoundDuration),
		DurationSec:  e.durationSec(),
		RemainingSec: e.remaining,
		Resumed:      resumed,
	})
	if !ok {
		return nil
	}
	return []events.Event{ev}
}

func (e *Engine) remainingAt(now time.Time) int {
	return roundtimer.ReadRecord(models.RoundRecord{
		RoundNumber:     e.roundNumber,
		StartTime:       e.startTime,
		DurationSeconds: e.durationSec(),
	}, now).Remaining
}

func (e *Engine) scheduleTickLocked() {
	gen := e.generation
	e.pending = e.sched.Schedule(e.cfg.TickInterval, func() { e.onTick(gen) })
}

func (e *Engine) cancelPendingLocked() {
	if e.pending != 0 {
		e.sched.Cancel(e.pending)
		e.pending = 0
	}
}

func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.state != StateCountdown {
		e.mu.Unlock()
		return
	}
	e.pending = 0
	ctx := e.ctx
	now := e.clock.Now()
	e.remaining = e.remainingAt(now)

	var evs []events.Event
	if e.remaining <= 0 {
		evs = e.resolveLocked(ctx, now)
	} else {
		if e.remaining%e.cfg.SaveEvery == 0 {
			e.checkpointLocked(ctx, now)
		}
		if ev, ok := newEvent(events.EventTypeRoundTick, e.roundNumber, now, events.RoundTickPayload{
			RoundNumber:  e.roundNumber,
			RemainingSec: e.remaining,
		}); ok {
			evs = append(evs, ev)
		}
		e.scheduleTickLocked()
	}
	e.mu.Unlock()

	e.emit(ctx, evs...)
}

// checkpointLocked re-persists the record with the same start time and a new
// lastSavedAt, plus the sync marker.
func (e *Engine) checkpointLocked(ctx context.Context, now time.Time) {
	if err := e.timer.Save(ctx, e.startTime, e.durationSec(), e.roundNumber); err != nil {
		log.Error().Err(err).Int("round_number", e.roundNumber).Msg("failed to checkpoint round timer")
	}
	if err := e.timer.SaveSyncMarker(ctx, now, true); err != nil {
		log.Warn().Err(err).Msg("failed to write background sync marker")
	}
}

func (e *Engine) resolveLocked(ctx context.Context, now time.Time) []events.Event {
	e.cancelPendingLocked()
	e.generation++
	e.state = StateResolving
	e.remaining = 0

	roundNumber := e.roundNumber
	winning := e.draw()

	out, err := e.ledger.SettleRound(ctx, roundNumber, winning, now)
	if err != nil {
		log.Error().Err(err).Int("round_number", roundNumber).Msg("failed to persist settled round")
	}
	if err := e.timer.Clear(ctx); err != nil {
		log.Error().Err(err).Int("round_number", roundNumber).Msg("failed to clear round timer")
	}
	if err := e.timer.SaveLastResolution(ctx, now); err != nil {
		log.Error().Err(err).Msg("failed to record round end")
	}

	log.Info().
		Int("round_number", roundNumber).
		Str("winning_color", winning.String()).
		Int("participants", out.Summary.ParticipantCount).
		Str("balance_delta", out.BalanceDelta.String()).
		Msg("round resolved")

	e.scheduleNextLocked(e.cfg.ResultPause, roundNumber+1)

	ev, ok := newEvent(events.EventTypeRoundSettled, roundNumber, now, events.RoundSettledPayload{
		Summary: out.Summary,
		Result:  out.Result,
	})
	if !ok {
		return nil
	}
	return []events.Event{ev}
}

// scheduleNextLocked starts roundNumber once delay has passed.
func (e *Engine) scheduleNextLocked(delay time.Duration, roundNumber int) {
	gen := e.generation
	e.pending = e.sched.Schedule(delay, func() { e.startNext(gen, roundNumber) })
}

func (e *Engine) startNext(gen uint64, roundNumber int) {
	e.mu.Lock()
	if gen != e.generation || e.state == StateCountdown {
		e.mu.Unlock()
		return
	}
	e.pending = 0
	ctx := e.ctx
	evs := e.beginLocked(ctx, roundNumber, e.clock.Now(), false)
	e.mu.Unlock()

	e.emit(ctx, evs...)
}

// Recover picks up where the last host left off: it resumes a live round,
// fast-forwards through rounds that expired unobserved, or waits out the
// remainder of a result pause.
func (e *Engine) Recover(ctx context.Context) {
	now := e.clock.Now()

	if marker, ok := e.timer.SyncMarker(ctx); ok && marker.Active {
		log.Info().
			Dur("offline", now.Sub(marker.LastSync)).
			Msg("resuming after background gap")
	}

	reading, found := e.timer.Read(ctx, now)

	e.mu.Lock()
	e.cancelPendingLocked()
	e.generation++

	var evs []events.Event
	switch {
	case found && reading.Remaining > 0:
		evs = e.beginLocked(ctx, reading.RoundNumber, reading.Record.StartTime, true)

	case found:
		evs = e.catchUpLocked(ctx, reading, now)

	default:
		next := e.ledger.CurrentRound(ctx)
		last, ok := e.timer.LastResolution(ctx)
		if since := now.Sub(last); ok && since >= 0 && since < e.cfg.ResultPause {
			e.state = StateResolving
			e.roundNumber = next - 1
			e.remaining = 0
			e.scheduleNextLocked(e.cfg.ResultPause-since, next)
			log.Info().
				Int("round_number", next).
				Dur("wait", e.cfg.ResultPause-since).
				Msg("waiting out result pause")
		} else {
			evs = e.beginLocked(ctx, next, now, false)
		}
	}
	e.mu.Unlock()

	e.emit(ctx, evs...)
}

// catchUpLocked records one skipped summary per round cycle that elapsed since
// the persisted round was due, then starts the next round immediately.
func (e *Engine) catchUpLocked(ctx context.Context, reading roundtimer.Reading, now time.Time) []events.Event {
	rec := reading.Record
	missed := roundtimer.CountMissedRounds(reading.Overrun, rec.DurationSeconds, e.pauseSec())
	if missed == 0 {
		missed = 1
	}

	duration := time.Duration(rec.DurationSeconds) * time.Second
	cycle := duration + e.cfg.ResultPause
	summaries := make([]models.RoundSummary, 0, missed)
	for i := 0; i < missed; i++ {
		at := rec.StartTime.Add(duration + time.Duration(i)*cycle)
		summaries = append(summaries, settlement.Skipped(rec.RoundNumber+i, e.draw(), at))
	}
	next := rec.RoundNumber + missed

	if err := e.ledger.RecordMissedRounds(ctx, summaries, next); err != nil {
		log.Error().Err(err).Msg("failed to persist missed rounds")
	}
	if err := e.timer.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear round timer")
	}

	log.Info().
		Int("from_round", rec.RoundNumber).
		Int("missed", missed).
		Int("next_round", next).
		Msg("fast-forwarded missed rounds")

	var evs []events.Event
	if ev, ok := newEvent(events.EventTypeRoundsSkipped, rec.RoundNumber, now, events.RoundsSkippedPayload{
		Summaries: summaries,
		NextRound: next,
	}); ok {
		evs = append(evs, ev)
	}
	return append(evs, e.beginLocked(ctx, next, now, false)...)
}

// Resync recomputes the countdown from the persisted wall-clock basis, for a
// client coming back to the foreground. An overdue round resolves at once.
func (e *Engine) Resync(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateCountdown {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	if rec, ok := e.timer.Load(ctx); ok && rec.RoundNumber == e.roundNumber {
		e.startTime = rec.StartTime
	}
	e.remaining = e.remainingAt(now)

	var evs []events.Event
	if e.remaining <= 0 {
		evs = e.resolveLocked(ctx, now)
	} else {
		e.cancelPendingLocked()
		e.generation++
		e.scheduleTickLocked()
		if ev, ok := newEvent(events.EventTypeRoundTick, e.roundNumber, now, events.RoundTickPayload{
			RoundNumber:  e.roundNumber,
			RemainingSec: e.remaining,
		}); ok {
			evs = append(evs, ev)
		}
	}
	e.mu.Unlock()

	e.emit(ctx, evs...)
}

// Stop cancels every scheduled callback and marks background sync inactive.
// The persisted round record is kept so the next host can resume it.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelPendingLocked()
	e.generation++
	e.state = StateIdle

	if err := e.timer.SaveSyncMarker(ctx, e.clock.Now(), false); err != nil {
		log.Warn().Err(err).Msg("failed to clear background sync marker")
	}
	log.Info().Int("round_number", e.roundNumber).Msg("round engine stopped")
}

// Status reports the current phase and countdown.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:       e.state,
		RoundNumber: e.roundNumber,
		Remaining:   e.remaining,
		RoundActive: e.state == StateCountdown,
	}
	if e.state == StateCountdown {
		st.EndsAt = e.startTime.Add(e.cfg.RoundDuration)
	}
	return st
}

func (e *Engine) emit(ctx context.Context, evs ...events.Event) {
	if e.sink == nil {
		return
	}
	for _, ev := range evs {
		e.sink.Emit(ctx, ev)
	}
}

func newEvent(t events.EventType, roundNumber int, at time.Time, payload any) (events.Event, bool) {
	ev, err := events.New(t, roundNumber, at, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return events.Event{}, false
	}
	return ev, true
}
