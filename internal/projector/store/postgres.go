package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Postgres persists the checkpoint in projection_checkpoints.
type Postgres struct {
	db   *sql.DB
	name string
}

// NewPostgres constructs a PostgreSQL checkpoint store for the named projection.
func NewPostgres(db *sql.DB, name string) *Postgres {
	return &Postgres{db: db, name: name}
}

func (s *Postgres) Load(ctx context.Context) (*Checkpoint, error) {
	query := `
		SELECT cursor, snapshot
		FROM projection_checkpoints
		WHERE name = $1 AND valid
	`
	var cursor int64
	var snapshot []byte
	err := s.db.QueryRowContext(ctx, query, s.name).Scan(&cursor, &snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &Checkpoint{Cursor: uint64(cursor), Snapshot: snapshot}, nil
}

func (s *Postgres) Save(ctx context.Context, cp Checkpoint) error {
	query := `
		INSERT INTO projection_checkpoints (name, cursor, snapshot, valid, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (name) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			snapshot = EXCLUDED.snapshot,
			valid = TRUE,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, s.name, int64(cp.Cursor), cp.Snapshot); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *Postgres) Invalidate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE projection_checkpoints SET valid = FALSE WHERE name = $1`, s.name); err != nil {
		return fmt.Errorf("invalidate checkpoint: %w", err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
