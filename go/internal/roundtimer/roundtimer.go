// Package roundtimer persists the running round's timer so a countdown survives
// host restarts, and computes what happened while nobody was watching.
package roundtimer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Reading is the countdown state derived from a persisted RoundRecord.
type Reading struct {
	RoundNumber int
	// Remaining is clamped at zero.
	Remaining int
	// Overrun is the unclamped remaining time; negative once the round is overdue.
	Overrun int
	Record  models.RoundRecord
}

// Service reads and writes the round timer keys of a store.
type Service struct {
	store kvstore.Store
	clock clockwork.Clock
}

// NewService creates a timer persistence service.
func NewService(store kvstore.Store, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock}
}

// Save overwrites the single persisted RoundRecord.
func (s *Service) Save(ctx context.Context, startTime time.Time, duration, roundNumber int) error {
	rec := models.RoundRecord{
		RoundNumber:     roundNumber,
		StartTime:       startTime,
		DurationSeconds: duration,
		LastSavedAt:     s.clock.Now(),
	}
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyRoundTimer, rec)
}

// Load returns the persisted record. Malformed or invalid records are treated
// as absent.
func (s *Service) Load(ctx context.Context) (models.RoundRecord, bool) {
	var rec models.RoundRecord
	found, err := kvstore.GetJSON(ctx, s.store, kvstore.KeyRoundTimer, &rec)
	if err != nil {
		log.Warn().Err(err).Msg("round timer unreadable, treating as absent")
		return models.RoundRecord{}, false
	}
	if !found || !rec.Valid() {
		return models.RoundRecord{}, false
	}
	return rec, true
}

// Read computes the remaining countdown at now from the persisted record.
// It has no side effects.
func (s *Service) Read(ctx context.Context, now time.Time) (Reading, bool) {
	rec, ok := s.Load(ctx)
	if !ok {
		return Reading{}, false
	}
	return ReadRecord(rec, now), true
}

// ReadRecord is the pure countdown arithmetic behind Read.
func ReadRecord(rec models.RoundRecord, now time.Time) Reading {
	elapsed := int(math.Floor(now.Sub(rec.StartTime).Seconds()))
	overrun := rec.DurationSeconds - elapsed
	return Reading{
		RoundNumber: rec.RoundNumber,
		Remaining:   max(0, overrun),
		Overrun:     overrun,
		Record:      rec,
	}
}

// Clear removes the RoundRecord. Called once per round, at resolution.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, kvstore.KeyRoundTimer); err != nil {
		return fmt.Errorf("clear round timer: %w", err)
	}
	return nil
}

// SaveLastResolution records when the most recent round ended.
func (s *Service) SaveLastResolution(ctx context.Context, at time.Time) error {
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyLastRoundEnd, at.UnixMilli())
}

// LastResolution returns when the most recent round ended, if known.
func (s *Service) LastResolution(ctx context.Context) (time.Time, bool) {
	var ms int64
	found, err := kvstore.GetJSON(ctx, s.store, kvstore.KeyLastRoundEnd, &ms)
	if err != nil {
		log.Warn().Err(err).Msg("last round end unreadable, treating as absent")
		return time.Time{}, false
	}
	if !found || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// SaveSyncMarker writes the background-sync marker.
func (s *Service) SaveSyncMarker(ctx context.Context, at time.Time, active bool) error {
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyBackgroundSync, models.SyncMarker{
		LastSync: at,
		Active:   active,
	})
}

// SyncMarker returns the last background-sync marker, if any.
func (s *Service) SyncMarker(ctx context.Context) (models.SyncMarker, bool) {
	var m models.SyncMarker
	found, err := kvstore.GetJSON(ctx, s.store, kvstore.KeyBackgroundSync, &m)
	if err != nil && !errors.Is(err, kvstore.ErrMalformed) {
		log.Warn().Err(err).Msg("background sync marker unreadable")
	}
	if !found || err != nil {
		return models.SyncMarker{}, false
	}
	return m, true
}

// CountMissedRounds replays whole round cycles (duration plus pause) until the
// remaining time turns positive and returns how many were replayed. It returns
// 0 when remaining is already positive.
func CountMissedRounds(remaining, fullDuration, pauseDuration int) int {
	cycle := fullDuration + pauseDuration
	if remaining > 0 || cycle <= 0 {
		return 0
	}
	missed := 0
	for remaining <= 0 {
		missed++
		remaining += cycle
	}
	return missed
}
