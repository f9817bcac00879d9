// Package scheduler runs deferred callbacks for the round engine and presence
// heartbeats. Production code uses a clockwork clock; tests drive a Manual
// scheduler through virtual time.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint64

// Scheduler runs fn once after delay unless the handle is cancelled first.
// After Cancel returns, fn is guaranteed not to start.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
	Cancel(h Handle)
}

// ClockScheduler schedules callbacks on a clockwork clock.
type ClockScheduler struct {
	clock clockwork.Clock

	mu     sync.Mutex
	last   Handle
	timers map[Handle]clockwork.Timer
}

// NewClockScheduler creates a scheduler backed by clock.
func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	return &ClockScheduler{
		clock:  clock,
		timers: make(map[Handle]clockwork.Timer),
	}
}

func (s *ClockScheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	h := s.last
	// The callback takes the lock before checking liveness, so it cannot observe
	// the map before the timer is stored below.
	s.timers[h] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h
}

func (s *ClockScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending returns the number of callbacks that have not fired or been cancelled.
func (s *ClockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending callback.
func (s *ClockScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
}
