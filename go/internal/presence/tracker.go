// Package presence keeps the registry of live client sessions and derives the
// online count from it.
package presence

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
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// Config holds heartbeat timing.
type Config struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// DefaultConfig returns a 15 second heartbeat and a 3 minute staleness window.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		StaleAfter:        3 * time.Minute,
	}
}

type registry map[string]models.SessionRecord

// Tracker owns the sessions of one host. Several trackers may share a store;
// the registry is last-writer-wins across them.
type Tracker struct {
	store kvstore.Store
	clock clockwork.Clock
	sched scheduler.Scheduler
	cfg   Config

	mu        sync.Mutex
	ctx       context.Context
	onCount   func(int)
	lastCount int
	sessions  map[string]*Session
}

// NewTracker creates a tracker over store.
func NewTracker(store kvstore.Store, clock clockwork.Clock, sched scheduler.Scheduler, cfg Config) *Tracker {
	return &Tracker{
		store:     store,
		clock:     clock,
		sched:     sched,
		cfg:       cfg,
		ctx:       context.Background(),
		lastCount: -1,
		sessions:  make(map[string]*Session),
	}
}

// OnCount registers fn to receive the online count whenever it changes.
func (t *Tracker) OnCount(fn func(count int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCount = fn
}

// RegisterSession inserts an active record for a new session and starts its
// heartbeat.
func (t *Tracker) RegisterSession(ctx context.Context, userID string) (*Session, error) {
	now := t.clock.Now()
	s := &Session{
		tracker: t,
		id:      uuid.NewString(),
		userID:  userID,
		visible: true,
		started: now,
	}

	t.mu.Lock()
	err := t.update(ctx, func(reg registry) bool {
		reg[s.id] = models.SessionRecord{
			UserID:         userID,
			LastSeenAt:     now,
			SessionStartAt: now,
			Active:         true,
		}
		return true
	})
	if err == nil {
		t.sessions[s.id] = s
	}
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	s.scheduleHeartbeat()
	log.Debug().Str("session_id", s.id).Str("user_id", userID).Msg("session registered")
	t.recount(ctx)
	return s, nil
}

// EvictStale removes every record last seen more than timeout before now and
// returns how many were removed.
func (t *Tracker) EvictStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(ctx, now, timeout)
}

func (t *Tracker) evictLocked(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout)
	evicted := 0
	err := t.update(ctx, func(reg registry) bool {
		for id, rec := range reg {
			if rec.LastSeenAt.Before(cutoff) {
				delete(reg, id)
				evicted++
			}
		}
		return evicted > 0
	})
	if err != nil {
		return 0, err
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("evicted stale sessions")
	}
	return evicted, nil
}

// Count evicts stale sessions and returns the number of active ones.
func (t *Tracker) Count(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(ctx)
}

func (t *Tracker) countLocked(ctx context.Context) (int, error) {
	if _, err := t.evictLocked(ctx, t.clock.Now(), t.cfg.StaleAfter); err != nil {
		return 0, err
	}
	reg, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range reg {
		if rec.Active {
			n++
		}
	}
	return n, nil
}

// recount publishes the count to the OnCount callback when it changed.
func (t *Tracker) recount(ctx context.Context) {
	t.mu.Lock()
	n, err := t.countLocked(ctx)
	if err != nil {
		t.mu.Unlock()
		log.Error().Err(err).Msg("failed to count sessions")
		return
	}
	changed := n != t.lastCount
	t.lastCount = n
	fn := t.onCount
	t.mu.Unlock()

	if changed && fn != nil {
		fn(n)
	}
}

// Run recounts whenever another process changes the registry, for stores that
// can announce changes. It returns when ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	w, ok := t.store.(kvstore.Watcher)
	if !ok {
		<-ctx.Done()
		return nil
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch session registry: %w", err)
	}

	log.Info().Msg("watching session registry")
	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-changes:
			if !ok {
				return nil
			}
			if key == kvstore.KeyActiveSessions {
				t.recount(ctx)
			}
		}
	}
}

// Shutdown ends every session this tracker registered.
func (t *Tracker) Shutdown(ctx context.Context) {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		if err := s.End(ctx); err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("failed to end session")
		}
	}
}

func (t *Tracker) load(ctx context.Context) (registry, error) {
	reg := registry{}
	if _, err := kvstore.GetJSON(ctx, t.store, kvstore.KeyActiveSessions, &reg); err != nil {
		if errors.Is(err, kvstore.ErrMalformed) {
			log.Warn().Err(err).Msg("session registry unreadable, starting empty")
			return registry{}, nil
		}
		return nil, err
	}
	return reg, nil
}

// update applies fn to the stored registry and writes it back when fn reports
// a change. Callers hold mu. Run watches this key, so an unchanged registry
// must not be rewritten.
func (t *Tracker) update(ctx context.Context, fn func(registry) bool) error {
	reg, err := t.load(ctx)
	if err != nil {
		return err
	}
	if !fn(reg) {
		return nil
	}
	return kvstore.SetJSON(ctx, t.store, kvstore.KeyActiveSessions, reg)
}

func (t *Tracker) callbackContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}
