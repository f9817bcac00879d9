// Package events carries round lifecycle notifications from the engine to the
// gateway, the archive and, optionally, NATS JetStream.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of game event
type EventType string

const (
	EventTypeRoundStarted  EventType = "RoundStarted"
	EventTypeRoundTick     EventType = "RoundTick"
	EventTypeRoundSettled  EventType = "RoundSettled"
	EventTypeRoundsSkipped EventType = "RoundsSkipped"
	EventTypeOnlineCount   EventType = "OnlineCount"
)

// Event is the envelope every notification travels in.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	RoundNumber int             `json:"round_number"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

// New wraps payload in an envelope.
func New(t EventType, roundNumber int, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:          uuid.New(),
		Type:        t,
		RoundNumber: roundNumber,
		Timestamp:   at,
		Data:        data,
	}, nil
}

// ParsePayload decodes the event data into the matching payload struct.
func ParsePayload(e Event) (any, error) {
	switch e.Type {
	case EventTypeRoundStarted:
		var p RoundStartedPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoundTick:
		var p RoundTickPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoundSettled:
		var p RoundSettledPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoundsSkipped:
		var p RoundsSkippedPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeOnlineCount:
		var p OnlineCountPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}
}
