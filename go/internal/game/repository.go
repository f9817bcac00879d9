package game

import (
	"context"
	"fmt"

	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/models"
)

// Repository handles persistence of the game state blob
type Repository struct {
	store kvstore.Store
}

// NewRepository creates a new game repository
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// LoadState returns the persisted state. found is false when nothing is stored;
// a corrupt blob is reported as kvstore.ErrMalformed.
func (r *Repository) LoadState(ctx context.Context) (models.GameState, bool, error) {
	var state models.GameState
	found, err := kvstore.GetJSON(ctx, r.store, kvstore.KeyGameState, &state)
	if err != nil {
		return models.GameState{}, false, fmt.Errorf("failed to load game state: %w", err)
	}
	return state, found, nil
}

// SaveState overwrites the persisted state
func (r *Repository) SaveState(ctx context.Context, state models.GameState) error {
	if err := kvstore.SetJSON(ctx, r.store, kvstore.KeyGameState, state); err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}
	return nil
}
