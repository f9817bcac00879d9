package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ForwarderConfig tunes the asynchronous publisher loop.
type ForwarderConfig struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// Skip lists event types that are never forwarded.
	Skip []EventType
}

// DefaultForwarderConfig skips per-second ticks, which only matter to live clients.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
		Skip:       []EventType{EventTypeRoundTick},
	}
}

// Forwarder hands events to a Publisher on its own goroutine so emitters never
// block on the network.
type Forwarder struct {
	publisher Publisher
	cfg       ForwarderConfig
	queue     chan Event
	skip      map[EventType]bool
}

// NewForwarder creates a forwarder around publisher.
func NewForwarder(publisher Publisher, cfg ForwarderConfig) *Forwarder {
	skip := make(map[EventType]bool, len(cfg.Skip))
	for _, t := range cfg.Skip {
		skip[t] = true
	}
	return &Forwarder{
		publisher: publisher,
		cfg:       cfg,
		queue:     make(chan Event, cfg.BufferSize),
		skip:      skip,
	}
}

// Handle enqueues e; it drops the event when the queue is full.
func (f *Forwarder) Handle(_ context.Context, e Event) {
	if f.skip[e.Type] {
		return
	}
	select {
	case f.queue <- e:
	default:
		log.Warn().
			Str("event_id", e.ID.String()).
			Str("event_type", string(e.Type)).
			Msg("forward queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	log.Info().Int("buffer", f.cfg.BufferSize).Msg("event forwarder started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event forwarder shutting down")
			return nil
		case e := <-f.queue:
			f.publish(ctx, e)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, e Event) {
	var err error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if err = f.publisher.Publish(ctx, e); err == nil {
			return
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("event_id", e.ID.String()).
			Msg("publish failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.RetryDelay * time.Duration(attempt+1)):
		}
	}
	log.Error().
		Err(err).
		Str("event_id", e.ID.String()).
		Str("event_type", string(e.Type)).
		Msg("giving up on event")
}
