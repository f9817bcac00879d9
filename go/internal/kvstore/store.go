// Package kvstore is the persistent key-value store the game state, round timer
// and presence registry live in. Backends: in-memory, Redis, Postgres, SQLite.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrMalformed is returned by GetJSON when the stored value does not decode.
	ErrMalformed = errors.New("kvstore: malformed value")
)

// Store is a durable key-value store shared by every session of one game.
// Writes are last-writer-wins; there is no transactional isolation.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by stores that can announce changed keys, including
// changes made by other processes sharing the same backend.
type Watcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

// GetJSON decodes the value at key into v. It returns (false, nil) when the key
// is absent and (false, ErrMalformed) when the value does not decode.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %v", key, ErrMalformed, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
