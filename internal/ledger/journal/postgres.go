package journal

import (
	"context"
	"database/sql"
	"fmt"

	"credpass/internal/ledger/models"
)

// Postgres persists the journal in the ledger_events table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed journal.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (j *Postgres) Append(ctx context.Context, ev models.Event) error {
	body, err := models.Encode(ev)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ledger_events (seq, kind, block, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (seq) DO NOTHING
	`
	if _, err := j.db.ExecContext(ctx, query, int64(ev.Seq), string(ev.Kind), int64(ev.Block), body); err != nil {
		return fmt.Errorf("append ledger event %d: %w", ev.Seq, err)
	}
	return nil
}

func (j *Postgres) Range(ctx context.Context, fromSeq uint64, fn func(models.Event) error) error {
	rows, err := j.db.QueryContext(ctx, `SELECT body FROM ledger_events WHERE seq >= $1 ORDER BY seq`, int64(fromSeq))
	if err != nil {
		return fmt.Errorf("range ledger events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan ledger event: %w", err)
		}
		ev, err := models.Decode(body)
		if err != nil {
			return fmt.Errorf("journal holds undecodable event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledger events: %w", err)
	}
	return nil
}

func (j *Postgres) TruncateFrom(ctx context.Context, fromSeq uint64) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM ledger_events WHERE seq >= $1`, int64(fromSeq)); err != nil {
		return fmt.Errorf("truncate ledger events from %d: %w", fromSeq, err)
	}
	return nil
}

func (j *Postgres) Head(ctx context.Context) (uint64, error) {
	var head sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ledger_events`).Scan(&head); err != nil {
		return 0, fmt.Errorf("read journal head: %w", err)
	}
	if !head.Valid {
		return 0, nil
	}
	return uint64(head.Int64), nil
}

var _ Journal = (*Postgres)(nil)
