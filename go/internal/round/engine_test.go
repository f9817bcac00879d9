package round

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/game"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/roundtimer"
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	store  *kvstore.MemoryStore
	clock  *clockwork.FakeClock
	sched  *scheduler.Manual
	timer  *roundtimer.Service
	game   *game.App
	engine *Engine
	rec    *recorder
}

func newHarness(t *testing.T, draw Drawer) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		store: kvstore.NewMemoryStore(),
		clock: clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		rec:   &recorder{},
	}
	h.sched = scheduler.NewManual(h.clock)
	h.timer = roundtimer.NewService(h.store, h.clock)
	h.game = game.NewApp(ctx, game.NewRepository(h.store), h.clock, game.DefaultConfig())

	bus := events.NewBus()
	bus.Subscribe(h.rec.handle)
	h.engine = NewEngine(h.timer, h.game, h.sched, h.clock, bus, draw, DefaultConfig())
	return h
}

func (h *harness) bet(t *testing.T, c models.Color, stake int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.game.SelectColor(ctx, c))
	require.NoError(t, h.game.SelectStake(ctx, decimal.NewFromInt(stake)))
	require.True(t, h.game.PlaceBet(ctx))
}

func TestEndToEndGreenWin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorGreen))

	h.engine.Recover(ctx)
	st := h.engine.Status()
	require.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 1, st.RoundNumber)
	assert.Equal(t, 120, st.Remaining)

	h.bet(t, models.ColorGreen, 5)

	h.sched.Advance(119 * time.Second)
	assert.Equal(t, 1, h.engine.Status().Remaining)
	assert.Equal(t, 0, h.rec.count(events.EventTypeRoundSettled))

	h.sched.Advance(time.Second)
	assert.Equal(t, StateResolving, h.engine.Status().State)

	s := h.game.State()
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(105)), "balance %s", s.Balance)
	require.Len(t, s.History, 1)
	require.NotNil(t, s.History[0].WinAmount)
	assert.True(t, s.History[0].WinAmount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, s.History[0].RoundNumber)

	_, found := h.timer.Load(ctx)
	assert.False(t, found, "round record cleared at resolution")
	_, ok := h.timer.LastResolution(ctx)
	assert.True(t, ok)

	h.sched.Advance(3 * time.Second)
	st = h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 2, st.RoundNumber)
	assert.Equal(t, 120, st.Remaining)
	assert.Equal(t, 1, h.rec.count(events.EventTypeRoundSettled))
	assert.Equal(t, 2, h.rec.count(events.EventTypeRoundStarted))
}

func TestEndToEndRedLosesToBlue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorBlue))
	require.NoError(t, h.engine.Start(ctx, 1))
	h.bet(t, models.ColorRed, 2)

	h.sched.Advance(120 * time.Second)

	s := h.game.State()
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(98)), "balance %s", s.Balance)
	require.Len(t, s.History, 1)
	assert.Nil(t, s.History[0].WinAmount)
}

func TestWinningHistoryAfterManyRounds(t *testing.T) {
	ctx := context.Background()
	n := 0
	draw := func() models.Color {
		n++
		return models.Colors[n%3]
	}
	h := newHarness(t, draw)
	require.NoError(t, h.engine.Start(ctx, 1))

	h.sched.Advance(25 * 123 * time.Second)

	s := h.game.State()
	require.Len(t, s.WinningColors, 20)
	assert.Equal(t, models.Colors[25%3], s.WinningColors[0])
	assert.Len(t, s.RoundSummaries, 25)
	for i, sum := range s.RoundSummaries {
		assert.Equal(t, 25-i, sum.RoundNumber)
		assert.True(t, sum.TotalStaked.IsZero())
	}
	assert.Equal(t, 26, h.engine.Status().RoundNumber)
	assert.Equal(t, 25, h.rec.count(events.EventTypeRoundSettled))
}

func TestStartRejectsOtherRoundWhileCounting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.engine.Start(ctx, 3))

	assert.NoError(t, h.engine.Start(ctx, 3))
	assert.ErrorIs(t, h.engine.Start(ctx, 4), ErrRoundInProgress)
	assert.Equal(t, 1, h.sched.Pending())
}

func TestRecoverResumesRunningRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.timer.Save(ctx, h.clock.Now().Add(-30*time.Second), 120, 7))

	h.engine.Recover(ctx)
	st := h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 7, st.RoundNumber)
	assert.Equal(t, 90, st.Remaining)

	h.sched.Advance(90 * time.Second)
	s := h.game.State()
	require.Len(t, s.RoundSummaries, 1)
	assert.Equal(t, 7, s.RoundSummaries[0].RoundNumber)
	assert.Equal(t, 8, s.CurrentRound)
}

func TestRecoverAfterExpiredRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorGreen))
	require.NoError(t, h.timer.Save(ctx, h.clock.Now().Add(-150*time.Second), 120, 4))

	reading, ok := h.timer.Read(ctx, h.clock.Now())
	require.True(t, ok)
	k := roundtimer.CountMissedRounds(reading.Overrun, 120, 3)
	assert.Equal(t, 1, k)
	assert.Greater(t, reading.Overrun+k*123, 0)
	assert.LessOrEqual(t, reading.Overrun+(k-1)*123, 0)

	h.engine.Recover(ctx)

	s := h.game.State()
	require.Len(t, s.RoundSummaries, 1)
	assert.Equal(t, 4, s.RoundSummaries[0].RoundNumber)
	assert.True(t, s.RoundSummaries[0].Skipped)
	assert.Equal(t, 0, s.RoundSummaries[0].ParticipantCount)
	assert.Equal(t, []models.Color{models.ColorGreen}, s.WinningColors)

	st := h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 5, st.RoundNumber)
	assert.Equal(t, 120, st.Remaining)

	rec, ok := h.timer.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, 5, rec.RoundNumber)
	assert.Equal(t, 1, h.rec.count(events.EventTypeRoundsSkipped))
}

func TestRecoverAfterLongGapKeepsRoundOrder(t *testing.T) {
	ctx := context.Background()
	n := 0
	draw := func() models.Color {
		n++
		return models.Colors[n%3]
	}
	h := newHarness(t, draw)
	start := h.clock.Now().Add(-500 * time.Second)
	require.NoError(t, h.timer.Save(ctx, start, 120, 4))
	h.bet(t, models.ColorBlue, 1)

	h.engine.Recover(ctx)

	s := h.game.State()
	require.Len(t, s.RoundSummaries, 4)
	for i, sum := range s.RoundSummaries {
		assert.Equal(t, 7-i, sum.RoundNumber)
		assert.Equal(t, s.WinningColors[i], sum.WinningColor)
	}
	assert.True(t, start.Add(120*time.Second).Equal(s.RoundSummaries[3].Timestamp))
	assert.Equal(t, 8, h.engine.Status().RoundNumber)
	assert.NotNil(t, s.PendingBet, "bet waits for a witnessed round")
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(100)))
}

func TestRecoverWaitsOutResultPause(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.timer.SaveLastResolution(ctx, h.clock.Now().Add(-time.Second)))

	h.engine.Recover(ctx)
	st := h.engine.Status()
	assert.Equal(t, StateResolving, st.State)
	assert.False(t, st.RoundActive)

	h.sched.Advance(1999 * time.Millisecond)
	assert.Equal(t, StateResolving, h.engine.Status().State)

	h.sched.Advance(time.Millisecond)
	st = h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 1, st.RoundNumber)
}

func TestRecoverStartsImmediatelyAfterPause(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.timer.SaveLastResolution(ctx, h.clock.Now().Add(-time.Minute)))

	h.engine.Recover(ctx)
	assert.Equal(t, StateCountdown, h.engine.Status().State)
}

func TestRecoverIgnoresMalformedRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.store.Set(ctx, kvstore.KeyRoundTimer, []byte(`{"round_number":`)))

	h.engine.Recover(ctx)
	st := h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 1, st.RoundNumber)
	assert.Equal(t, 120, st.Remaining)
}

func TestTickCheckpointsRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	started := h.clock.Now()
	require.NoError(t, h.engine.Start(ctx, 1))

	h.sched.Advance(9 * time.Second)
	rec, ok := h.timer.Load(ctx)
	require.True(t, ok)
	assert.True(t, started.Equal(rec.LastSavedAt))

	h.sched.Advance(time.Second)
	rec, ok = h.timer.Load(ctx)
	require.True(t, ok)
	assert.True(t, started.Equal(rec.StartTime))
	assert.True(t, started.Add(10*time.Second).Equal(rec.LastSavedAt))

	marker, ok := h.timer.SyncMarker(ctx)
	require.True(t, ok)
	assert.True(t, marker.Active)
	assert.True(t, started.Add(10*time.Second).Equal(marker.LastSync))
}

func TestResyncDoesNotDoubleResolve(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.engine.Start(ctx, 1))

	h.sched.Advance(119 * time.Second)
	h.engine.Resync(ctx)
	assert.Equal(t, 1, h.sched.Pending())

	h.sched.Advance(time.Second)
	assert.Equal(t, 1, h.rec.count(events.EventTypeRoundSettled))
	assert.Len(t, h.game.State().RoundSummaries, 1)
}

func TestResyncResolvesOverdueRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.engine.Start(ctx, 1))
	h.sched.Advance(5 * time.Second)

	// the host slept through the rest of the round
	h.clock.Advance(200 * time.Second)
	h.engine.Resync(ctx)
	assert.Equal(t, StateResolving, h.engine.Status().State)

	h.sched.Advance(3 * time.Second)
	assert.Equal(t, 1, h.rec.count(events.EventTypeRoundSettled))
	st := h.engine.Status()
	assert.Equal(t, StateCountdown, st.State)
	assert.Equal(t, 2, st.RoundNumber)
}

func TestStopCancelsCallbacks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, FixedDraw(models.ColorRed))
	require.NoError(t, h.engine.Start(ctx, 1))

	h.engine.Stop(ctx)
	assert.Equal(t, 0, h.sched.Pending())
	assert.Equal(t, StateIdle, h.engine.Status().State)

	h.sched.Advance(10 * time.Minute)
	assert.Equal(t, 0, h.rec.count(events.EventTypeRoundSettled))

	_, ok := h.timer.Load(ctx)
	assert.True(t, ok, "record kept for the next host")
	marker, ok := h.timer.SyncMarker(ctx)
	require.True(t, ok)
	assert.False(t, marker.Active)
}

func TestColorForSample(t *testing.T) {
	assert.Equal(t, models.ColorRed, ColorForSample(0))
	assert.Equal(t, models.ColorRed, ColorForSample(0.333))
	assert.Equal(t, models.ColorGreen, ColorForSample(0.34))
	assert.Equal(t, models.ColorGreen, ColorForSample(0.66))
	assert.Equal(t, models.ColorBlue, ColorForSample(0.67))
	assert.Equal(t, models.ColorBlue, ColorForSample(0.9999))
}

func TestRandomDrawIsRoughlyUniform(t *testing.T) {
	const n = 30000
	counts := map[models.Color]int{}
	for i := 0; i < n; i++ {
		counts[RandomDraw()]++
	}
	for _, c := range models.Colors {
		share := float64(counts[c]) / n
		assert.InDelta(t, 1.0/3.0, share, 0.03, "color %s", c)
	}
}
