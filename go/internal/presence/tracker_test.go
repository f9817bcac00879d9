package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(store kvstore.Store, clock *clockwork.FakeClock) (*Tracker, *scheduler.Manual) {
	sched := scheduler.NewManual(clock)
	return NewTracker(store, clock, sched, DefaultConfig()), sched
}

func TestRegisterAndCount(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	tracker, _ := newTracker(kvstore.NewMemoryStore(), clock)

	var counts []int
	tracker.OnCount(func(n int) { counts = append(counts, n) })

	s1, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	s2, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())

	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, counts)
}

func TestHiddenSessionIsNotCounted(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStore()
	tracker, _ := newTracker(store, clock)

	s, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.SetVisible(ctx, false))

	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var reg map[string]any
	found, err := kvstore.GetJSON(ctx, store, kvstore.KeyActiveSessions, &reg)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, reg, 1, "hidden session stays registered")

	require.NoError(t, s.SetVisible(ctx, true))
	n, err = tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEndRemovesImmediately(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	tracker, sched := newTracker(kvstore.NewMemoryStore(), clock)

	s, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, sched.Pending())

	require.NoError(t, s.End(ctx))
	assert.Equal(t, 0, sched.Pending())
	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.NoError(t, s.End(ctx))
}

func TestStaleSessionEvicted(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStore()

	// two hosts share the store; only the first keeps heartbeating
	live, liveSched := newTracker(store, clock)
	frozen, _ := newTracker(store, clock)

	_, err := live.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	_, err = live.RegisterSession(ctx, "u2")
	require.NoError(t, err)
	_, err = frozen.RegisterSession(ctx, "u3")
	require.NoError(t, err)

	n, err := live.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	liveSched.Advance(3*time.Minute + time.Second)

	n, err = live.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEvictStale(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	tracker, _ := newTracker(kvstore.NewMemoryStore(), clock)

	_, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)

	evicted, err := tracker.EvictStale(ctx, clock.Now().Add(time.Minute), 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)

	evicted, err = tracker.EvictStale(ctx, clock.Now().Add(5*time.Minute), 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
}

func TestMalformedRegistryTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, kvstore.KeyActiveSessions, []byte("garbage")))
	tracker, _ := newTracker(store, clock)

	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	n, err = tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// countingStore counts writes so tests can tell an idle tracker from a busy one.
type countingStore struct {
	*kvstore.MemoryStore
	sets atomic.Int64
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.sets.Add(1)
	return c.MemoryStore.Set(ctx, key, value)
}

func TestRunRecountsOnRemoteChange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &countingStore{MemoryStore: kvstore.NewMemoryStore()}
	watcher, _ := newTracker(store, clock)
	other, _ := newTracker(store, clock)

	var mu sync.Mutex
	var last int
	watcher.OnCount(func(n int) {
		mu.Lock()
		last = n
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, _ = other.RegisterSession(context.Background(), "remote")
		mu.Lock()
		defer mu.Unlock()
		return last > 0
	}, 2*time.Second, 20*time.Millisecond)

	settled := store.sets.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, settled, store.sets.Load(), "idle watcher must not write the registry")

	cancel()
	<-done
}

func TestIdleRunDoesNotRewriteRegistry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &countingStore{MemoryStore: kvstore.NewMemoryStore()}
	tracker, _ := newTracker(store, clock)

	var counts atomic.Int64
	tracker.OnCount(func(int) { counts.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tracker.Run(ctx)
	}()

	_, err := tracker.RegisterSession(context.Background(), "u1")
	require.NoError(t, err)
	n, err := tracker.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// let the watcher drain the registration notification
	time.Sleep(100 * time.Millisecond)
	before := store.sets.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, before, store.sets.Load())
	assert.Equal(t, int64(1), counts.Load())

	cancel()
	<-done
}

func TestCountWithoutStaleSessionsIsReadOnly(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := &countingStore{MemoryStore: kvstore.NewMemoryStore()}
	tracker, _ := newTracker(store, clock)

	_, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	before := store.sets.Load()

	for i := 0; i < 5; i++ {
		n, err := tracker.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, before, store.sets.Load())
}

func TestWriteAfterEndDoesNotResurrectSession(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	tracker, _ := newTracker(kvstore.NewMemoryStore(), clock)

	s, err := tracker.RegisterSession(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.End(ctx))

	// a heartbeat that passed its ended check just before End ran
	require.NoError(t, s.write(ctx, true))

	reg, err := tracker.load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, reg, s.ID())
	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
