// Package store persists projector snapshot checkpoints so a restart can
// resume from the last durable cursor instead of replaying the full journal.
package store

import (
	"context"

	"credpass/pkg/platform/sentinel"
)

// ErrNotFound is returned when no valid checkpoint exists.
var ErrNotFound = sentinel.ErrNotFound

// Checkpoint is a canonical snapshot encoding taken at Cursor.
type Checkpoint struct {
	Cursor   uint64
	Snapshot []byte
}

// Store keeps one checkpoint per projection.
type Store interface {
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
	// Invalidate marks the checkpoint unusable so the next start rebuilds.
	Invalidate(ctx context.Context) error
}
