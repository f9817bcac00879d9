package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcdev12/colorclash/go/internal/config"
	"github.com/mcdev12/colorclash/go/internal/game"
	"github.com/mcdev12/colorclash/go/internal/models"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: seed_state <state.json>")
		os.Exit(2)
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var state models.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}
	state.ColorStats = game.CalculateColorStats(state.WinningColors)

	// 2) Open the configured store
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	store, err := cfg.OpenStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3) Overwrite the saved game
	if err := game.NewRepository(store).SaveState(ctx, state); err != nil {
		fmt.Fprintf(os.Stderr, "save state: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %s store: balance=%s round=%d history=%d\n",
		cfg.StoreBackend, state.Balance, state.CurrentRound, len(state.History))
}
