package config

import (
	"context"
	"fmt"

	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/rs/zerolog/log"
)

// OpenStore opens the key-value store selected by STORE_BACKEND.
func (c *Config) OpenStore(ctx context.Context) (kvstore.Store, error) {
	switch c.StoreBackend {
	case BackendMemory:
		log.Warn().Msg("using in-memory store, state is lost on exit")
		return kvstore.NewMemoryStore(), nil
	case BackendRedis:
		return kvstore.NewRedisStore(ctx, c.RedisURL)
	case BackendPostgres:
		log.Info().Str("database", c.Database.Redacted()).Msg("connecting store to postgres")
		return kvstore.NewPostgresStore(ctx, c.Database.DSN())
	case BackendSQLite:
		return kvstore.NewSQLiteStore(ctx, c.SQLitePath)
	}
	return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
}
