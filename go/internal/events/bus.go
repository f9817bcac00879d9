package events

import (
	"context"
	"sync"
)

// Handler receives events. Handlers run synchronously on the emitter's
// goroutine and must not block.
type Handler func(ctx context.Context, e Event)

// Sink accepts events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Bus fans events out to every subscribed handler in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}
