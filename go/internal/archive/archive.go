// Package archive appends every settled or skipped round to Postgres.
package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/mcdev12/colorclash/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

// Entry is one archived round.
type Entry struct {
	Summary models.RoundSummary `json:"summary"`
	Result  *models.GameResult  `json:"result,omitempty"`
}

// Archive writes round outcomes to the round_archive table. It satisfies
// events.Publisher so it can sit behind an events.Forwarder.
type Archive struct {
	db *sql.DB
}

// Open connects to Postgres and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := NewArchive(db)
	if err := a.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewArchive wraps an open database.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Migrate creates the archive table.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate round_archive: %w", err)
	}
	return nil
}

// Publish archives RoundSettled and RoundsSkipped events and ignores the rest.
func (a *Archive) Publish(ctx context.Context, e events.Event) error {
	rows, err := rowsFromEvent(e)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	err = sqlutil.Run(ctx, a.db, New, func(q *Queries) error {
		for _, row := range rows {
			if err := q.InsertRound(ctx, row); err != nil {
				return fmt.Errorf("insert round %d: %w", row.RoundNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", e.Type, err)
	}

	log.Debug().
		Str("event_id", e.ID.String()).
		Int("rounds", len(rows)).
		Msg("archived rounds")
	return nil
}

// Recent returns up to limit archived rounds, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	items, err := New(a.db).ListRecentRounds(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list archived rounds: %w", err)
	}

	out := make([]Entry, 0, len(items))
	for _, it := range items {
		entry := Entry{Summary: models.RoundSummary{
			RoundNumber:      int(it.RoundNumber),
			TotalStaked:      it.TotalStaked,
			TotalDistributed: it.TotalDistributed,
			ParticipantCount: int(it.ParticipantCount),
			WinningColor:     models.Color(it.WinningColor),
			Timestamp:        it.ResolvedAt,
			PlatformFee:      it.PlatformFee,
			Skipped:          it.Skipped,
		}}
		var res models.GameResult
		ok, err := sqlutil.FromNullRawMessage(it.Result, &res)
		if err != nil {
			log.Warn().Err(err).Int64("id", it.ID).Msg("skipping unreadable archived result")
		} else if ok {
			entry.Result = &res
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func rowsFromEvent(e events.Event) ([]InsertRoundParams, error) {
	switch e.Type {
	case events.EventTypeRoundSettled, events.EventTypeRoundsSkipped:
	default:
		return nil, nil
	}

	payload, err := events.ParsePayload(e)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}

	switch p := payload.(type) {
	case events.RoundSettledPayload:
		row, err := rowFromSummary(e, p.Summary, p.Result)
		if err != nil {
			return nil, err
		}
		return []InsertRoundParams{row}, nil
	case events.RoundsSkippedPayload:
		rows := make([]InsertRoundParams, 0, len(p.Summaries))
		for _, s := range p.Summaries {
			row, err := rowFromSummary(e, s, nil)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, nil
}

func rowFromSummary(e events.Event, s models.RoundSummary, result *models.GameResult) (InsertRoundParams, error) {
	var resultJSON any
	if result != nil {
		resultJSON = result
	}
	raw, err := sqlutil.ToNullRawMessage(resultJSON)
	if err != nil {
		return InsertRoundParams{}, err
	}
	return InsertRoundParams{
		EventID:          e.ID,
		RoundNumber:      int32(s.RoundNumber),
		WinningColor:     s.WinningColor.String(),
		TotalStaked:      s.TotalStaked,
		TotalDistributed: s.TotalDistributed,
		PlatformFee:      s.PlatformFee,
		ParticipantCount: int32(s.ParticipantCount),
		Skipped:          s.Skipped,
		Result:           raw,
		ResolvedAt:       s.Timestamp,
	}, nil
}
