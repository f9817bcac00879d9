package archive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/colorclash/go/internal/sqlutil"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

const schema = `
CREATE TABLE IF NOT EXISTS round_archive (
    id                BIGSERIAL PRIMARY KEY,
    event_id          UUID        NOT NULL,
    round_number      INTEGER     NOT NULL,
    winning_color     TEXT        NOT NULL,
    total_staked      NUMERIC     NOT NULL,
    total_distributed NUMERIC     NOT NULL,
    platform_fee      NUMERIC     NOT NULL,
    participant_count INTEGER     NOT NULL,
    skipped           BOOLEAN     NOT NULL DEFAULT FALSE,
    result            JSONB,
    resolved_at       TIMESTAMPTZ NOT NULL,
    archived_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (event_id, round_number)
);
CREATE INDEX IF NOT EXISTS round_archive_round_number_idx ON round_archive (round_number DESC);
`

type Queries struct {
	db sqlutil.DBTX
}

func New(db sqlutil.DBTX) *Queries {
	return &Queries{db: db}
}

type InsertRoundParams struct {
	EventID          uuid.UUID
	RoundNumber      int32
	WinningColor     string
	TotalStaked      decimal.Decimal
	TotalDistributed decimal.Decimal
	PlatformFee      decimal.Decimal
	ParticipantCount int32
	Skipped          bool
	Result           pqtype.NullRawMessage
	ResolvedAt       time.Time
}

const insertRound = `-- name: InsertRound :exec
INSERT INTO round_archive (
    event_id, round_number, winning_color, total_staked, total_distributed,
    platform_fee, participant_count, skipped, result, resolved_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (event_id, round_number) DO NOTHING
`

func (q *Queries) InsertRound(ctx context.Context, arg InsertRoundParams) error {
	_, err := q.db.ExecContext(ctx, insertRound,
		arg.EventID,
		arg.RoundNumber,
		arg.WinningColor,
		arg.TotalStaked,
		arg.TotalDistributed,
		arg.PlatformFee,
		arg.ParticipantCount,
		arg.Skipped,
		arg.Result,
		arg.ResolvedAt,
	)
	return err
}

type RoundArchive struct {
	ID               int64
	EventID          uuid.UUID
	RoundNumber      int32
	WinningColor     string
	TotalStaked      decimal.Decimal
	TotalDistributed decimal.Decimal
	PlatformFee      decimal.Decimal
	ParticipantCount int32
	Skipped          bool
	Result           pqtype.NullRawMessage
	ResolvedAt       time.Time
	ArchivedAt       time.Time
}

const listRecentRounds = `-- name: ListRecentRounds :many
SELECT id, event_id, round_number, winning_color, total_staked, total_distributed,
       platform_fee, participant_count, skipped, result, resolved_at, archived_at
FROM round_archive
ORDER BY round_number DESC, id DESC
LIMIT $1
`

func (q *Queries) ListRecentRounds(ctx context.Context, limit int32) ([]RoundArchive, error) {
	rows, err := q.db.QueryContext(ctx, listRecentRounds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RoundArchive
	for rows.Next() {
		var i RoundArchive
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.RoundNumber,
			&i.WinningColor,
			&i.TotalStaked,
			&i.TotalDistributed,
			&i.PlatformFee,
			&i.ParticipantCount,
			&i.Skipped,
			&i.Result,
			&i.ResolvedAt,
			&i.ArchivedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
