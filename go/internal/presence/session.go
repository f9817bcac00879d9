package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// Session is one registered client.
type Session struct {
	tracker *Tracker
	id      string
	userID  string
	started time.Time

	mu      sync.Mutex
	visible bool
	ended   bool
	handle  scheduler.Handle
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) scheduleHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.handle = s.tracker.sched.Schedule(s.tracker.cfg.HeartbeatInterval, s.onHeartbeat)
}

func (s *Session) onHeartbeat() {
	ctx := s.tracker.callbackContext()
	if err := s.Heartbeat(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("heartbeat failed")
	}
	s.scheduleHeartbeat()
}

// Heartbeat refreshes lastSeenAt and sets active to the current visibility.
func (s *Session) Heartbeat(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	visible := s.visible
	s.mu.Unlock()

	if err := s.write(ctx, visible); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	s.tracker.recount(ctx)
	return nil
}

// SetVisible records a visibility change. Hidden sessions stay registered but
// stop counting as online.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.visible = visible
	s.mu.Unlock()

	if err := s.write(ctx, visible); err != nil {
		return fmt.Errorf("set visibility: %w", err)
	}
	log.Debug().Str("session_id", s.id).Bool("visible", visible).Msg("session visibility changed")
	s.tracker.recount(ctx)
	return nil
}

func (s *Session) write(ctx context.Context, active bool) error {
	t := s.tracker
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update(ctx, func(reg registry) bool {
		// End sets ended before it takes t.mu.
		if s.isEnded() {
			return false
		}
		rec, ok := reg[s.id]
		if !ok {
			// evicted by another host while we were away
			rec.UserID = s.userID
			rec.SessionStartAt = s.started
		}
		rec.LastSeenAt = now
		rec.Active = active
		reg[s.id] = rec
		return true
	})
}

func (s *Session) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// End stops the heartbeat and removes the record immediately.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	if s.handle != 0 {
		s.tracker.sched.Cancel(s.handle)
		s.handle = 0
	}
	s.mu.Unlock()

	t := s.tracker
	t.mu.Lock()
	delete(t.sessions, s.id)
	err := t.update(ctx, func(reg registry) bool {
		if _, ok := reg[s.id]; !ok {
			return false
		}
		delete(reg, s.id)
		return true
	})
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	log.Debug().Str("session_id", s.id).Msg("session ended")
	t.recount(ctx)
	return nil
}
