package main

import (
	"context"

	"github.com/mcdev12/colorclash/go/internal/archive"
	"github.com/mcdev12/colorclash/go/internal/config"
	"github.com/rs/zerolog/log"
)

func setupArchive(ctx context.Context, cfg *config.Config) (*archive.Archive, error) {
	a, err := archive.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Database.Redacted()).Msg("round archive enabled")
	return a, nil
}
