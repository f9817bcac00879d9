package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/archive"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/game"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/presence"
	"github.com/mcdev12/colorclash/go/internal/round"
	"github.com/mcdev12/colorclash/go/internal/roundtimer"
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	entries []archive.Entry
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]archive.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

type fixture struct {
	service *Service
	game    *game.App
	engine  *round.Engine
	tracker *presence.Tracker
	sched   *scheduler.Manual
	server  *httptest.Server
}

func newFixture(t *testing.T, history History) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := kvstore.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sched := scheduler.NewManual(clock)

	f := &fixture{sched: sched}
	f.game = game.NewApp(ctx, game.NewRepository(store), clock, game.DefaultConfig())
	f.tracker = presence.NewTracker(store, clock, sched, presence.DefaultConfig())

	bus := events.NewBus()
	f.engine = round.NewEngine(roundtimer.NewService(store, clock), f.game, sched, clock, bus, round.FixedDraw(models.ColorGreen), round.DefaultConfig())

	f.service = NewService(DefaultConfig(), f.game, f.engine, f.tracker, history, clock)
	bus.Subscribe(f.service.HandleEvent)
	f.tracker.OnCount(func(n int) {
		e, err := events.New(events.EventTypeOnlineCount, 0, clock.Now(), events.OnlineCountPayload{Count: n})
		if err == nil {
			bus.Emit(ctx, e)
		}
	})

	go func() { _ = f.service.Start(ctx) }()
	f.engine.Recover(ctx)

	f.server = httptest.NewServer(f.service.Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) post(t *testing.T, path string, body any) (int, ActionResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestGetState(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, round.StateCountdown, snap.RoundState)
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Equal(t, 120, snap.TimeRemaining)
	assert.True(t, snap.RoundActive)
	require.NotNil(t, snap.RoundEndsAt)
	assert.Nil(t, snap.PendingBet)
}

func TestPlaceBetOverHTTP(t *testing.T) {
	f := newFixture(t, nil)

	code, res := f.post(t, "/api/bet", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, res.Accepted, "no selection yet")

	code, res = f.post(t, "/api/select-color", selectColorRequest{Color: "green"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Accepted)

	code, res = f.post(t, "/api/select-stake", selectStakeRequest{Amount: decimal.NewFromInt(5)})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Accepted)

	_, res = f.post(t, "/api/bet", nil)
	require.True(t, res.Accepted)
	require.NotNil(t, res.State.PendingBet)
	assert.Equal(t, models.ColorGreen, res.State.PendingBet.Color)
	assert.True(t, res.State.Balance.Equal(decimal.NewFromInt(100)), "stake is not taken until settlement")

	_, res = f.post(t, "/api/bet", nil)
	assert.False(t, res.Accepted, "one bet per round")

	f.sched.Advance(120 * time.Second)
	snap := f.service.Snapshot()
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(105)), "balance %s", snap.Balance)
	assert.Equal(t, round.StateResolving, snap.RoundState)
	assert.Nil(t, snap.PendingBet)
}

func TestRejectedActions(t *testing.T) {
	f := newFixture(t, nil)

	code, res := f.post(t, "/api/select-color", selectColorRequest{Color: "purple"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, res.Accepted)
	assert.NotEmpty(t, res.Error)

	code, res = f.post(t, "/api/select-stake", selectStakeRequest{Amount: decimal.NewFromInt(3)})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, res.Accepted)

	resp, err := http.Post(f.server.URL+"/api/select-color", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetKeepsPendingBet(t *testing.T) {
	f := newFixture(t, nil)

	f.post(t, "/api/select-color", selectColorRequest{Color: "red"})
	f.post(t, "/api/select-stake", selectStakeRequest{Amount: decimal.NewFromInt(2)})
	_, res := f.post(t, "/api/bet", nil)
	require.True(t, res.Accepted)

	_, res = f.post(t, "/api/reset", nil)
	assert.True(t, res.Accepted)
	assert.Nil(t, res.State.SelectedColor)
	assert.Nil(t, res.State.SelectedStake)
	assert.NotNil(t, res.State.PendingBet)
}

func TestArchiveEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.server.URL + "/api/archive")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	hist := &fakeHistory{entries: []archive.Entry{{
		Summary: models.RoundSummary{RoundNumber: 3, WinningColor: models.ColorBlue},
	}}}
	f = newFixture(t, hist)

	resp, err = http.Get(f.server.URL + "/api/archive?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []archive.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Summary.RoundNumber)
	assert.Equal(t, 5, hist.limit)

	resp, err = http.Get(f.server.URL + "/api/archive?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/game?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first server message of type msgType.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketSnapshotAndActions(t *testing.T) {
	f := newFixture(t, nil)
	conn := dial(t, f)

	msg := readUntil(t, conn, string(MessageTypeSnapshot))
	var snap Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, 1, snap.CurrentRound)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientSelectColor, Color: "blue"}))
	msg = readUntil(t, conn, string(MessageTypeActionResult))
	var res ActionResult
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.Equal(t, ClientSelectColor, res.Action)
	assert.True(t, res.Accepted)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientPlaceBet}))
	msg = readUntil(t, conn, string(MessageTypeActionResult))
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.False(t, res.Accepted, "stake not selected")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance"}))
	msg = readUntil(t, conn, string(MessageTypeActionResult))
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.False(t, res.Accepted)
	assert.Equal(t, "unknown message type", res.Error)
}

func TestWebSocketPresence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	conn := dial(t, f)
	readUntil(t, conn, string(MessageTypeSnapshot))

	n, err := f.tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Eventually(t, func() bool {
		return f.service.Snapshot().OnlineUsers == 1
	}, 2*time.Second, 10*time.Millisecond)

	hidden := false
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientVisibility, Visible: &hidden}))
	readUntil(t, conn, string(MessageTypeActionResult))
	n, err = f.tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	conn.Close()
	assert.Eventually(t, func() bool {
		return f.service.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineEventsReachSockets(t *testing.T) {
	f := newFixture(t, nil)
	conn := dial(t, f)
	readUntil(t, conn, string(MessageTypeSnapshot))

	f.sched.Advance(time.Second)
	msg := readUntil(t, conn, string(events.EventTypeRoundTick))
	var tick Tick
	require.NoError(t, json.Unmarshal(msg.Data, &tick))
	assert.Equal(t, 1, tick.RoundNumber)
	assert.Equal(t, 119, tick.TimeRemaining)
	assert.True(t, tick.RoundActive)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msg.Data, &fields))
	assert.NotContains(t, fields, "history")
	assert.NotContains(t, fields, "round_summaries")
	assert.NotContains(t, fields, "balance")
}

func TestTickFrameStaysSmallAsHistoryGrows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// play twenty rounds so history and summaries are long
	for i := 0; i < 20; i++ {
		require.NoError(t, f.game.SelectColor(ctx, models.ColorGreen))
		require.NoError(t, f.game.SelectStake(ctx, decimal.NewFromInt(1)))
		require.True(t, f.game.PlaceBet(ctx))
		f.sched.Advance(123 * time.Second)
	}
	require.Len(t, f.game.State().RoundSummaries, 20)

	conn := dial(t, f)
	readUntil(t, conn, string(MessageTypeSnapshot))

	f.sched.Advance(time.Second)
	msg := readUntil(t, conn, string(events.EventTypeRoundTick))
	assert.Less(t, len(msg.Data), 128, "tick frame: %s", msg.Data)

	f.sched.Advance(119 * time.Second)
	msg = readUntil(t, conn, string(events.EventTypeRoundSettled))
	var snap Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Len(t, snap.RoundSummaries, 21)
}
