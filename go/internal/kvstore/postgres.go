package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	postgresNotifyChannel = "colorclash_kv_changes"
	postgresPingInterval  = 90 * time.Second
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps values in a kv_store table. Every write issues a
// NOTIFY so Watch can follow changes made by other hosts.
type PostgresStore struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewPostgresStore opens a pool against dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create kv_store: %w", err)
	}
	return &PostgresStore{pool: pool, dsn: dsn}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return v, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, value)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
		return notifyTx(ctx, tx, key)
	})
}

func (p *PostgresStore) Remove(ctx context.Context, key string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return notifyTx(ctx, tx, key)
	})
}

func notifyTx(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, postgresNotifyChannel, key); err != nil {
		return fmt.Errorf("notify %s: %w", key, err)
	}
	return nil
}

// Watch LISTENs on the change channel with a dedicated lib/pq connection.
func (p *PostgresStore) Watch(ctx context.Context) (<-chan string, error) {
	l := pq.NewListener(
		p.dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("kv listener event")
			}
		},
	)
	if err := l.Listen(postgresNotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("listen %s: %w", postgresNotifyChannel, err)
	}

	log.Info().
		Str("channel", postgresNotifyChannel).
		Msg("listening for kv changes")

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer l.Close()
		ping := time.NewTicker(postgresPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-l.Notify:
				// nil after a reconnect; changes may have been missed
				if n == nil {
					continue
				}
				select {
				case out <- n.Extra:
				default:
				}
			case <-ping.C:
				if err := l.Ping(); err != nil {
					log.Warn().Err(err).Msg("kv listener ping failed")
				}
			}
		}
	}()
	return out, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
