package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/projector/models"
	"credpass/internal/projector/store"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
	"credpass/pkg/platform/tracer"
)

// Rebuild discards the snapshot and replays the journal from the beginning.
// The replacement is built offline and swapped in atomically; on failure the
// previous snapshot stays published.
func (p *Projector) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(ctx, "requested")
}

// Restore loads the last checkpoint and catches up from the journal. A
// missing, invalid or unusable checkpoint falls back to a full rebuild.
func (p *Projector) Restore(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, tracer.SpanProjectorRestore)
	defer func() { span.End(err) }()

	if p.checkpoints == nil {
		return p.rebuildLocked(ctx, "no_checkpoint_store")
	}
	cp, err := p.checkpoints.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.rebuildLocked(ctx, "no_checkpoint")
		}
		p.logger.ErrorContext(ctx, "checkpoint load failed, rebuilding", "error", err)
		return p.rebuildLocked(ctx, "checkpoint_unreadable")
	}
	snap, err := models.DecodeSnapshot(cp.Snapshot)
	if err != nil || snap.Cursor != cp.Cursor {
		p.logger.ErrorContext(ctx, "checkpoint invalid, rebuilding", "cursor", cp.Cursor, "error", err)
		return p.rebuildLocked(ctx, "checkpoint_invalid")
	}
	head, err := p.journal.Head(ctx)
	if err != nil {
		return fmt.Errorf("read journal head: %w", err)
	}
	if head < snap.Cursor {
		// The journal was truncated past the checkpoint.
		return p.rebuildLocked(ctx, "checkpoint_ahead_of_journal")
	}

	n, err := p.replay(ctx, snap, snap.Cursor+1)
	if err != nil {
		return err
	}
	p.publish(snap)
	span.SetAttributes(tracer.Uint64(tracer.AttrCursor, snap.Cursor), tracer.Int64(tracer.AttrEvents, int64(n)))
	p.logger.InfoContext(ctx, "projection restored", "checkpoint_cursor", cp.Cursor, "cursor", snap.Cursor, "replayed", n)
	return nil
}

// Rewind handles a reorg: the journal is truncated at fromSeq and the
// snapshot rebuilt from what remains. Re-delivered events then apply normally.
func (p *Projector) Rewind(ctx context.Context, fromSeq uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewindLocked(ctx, fromSeq)
}

func (p *Projector) rewindLocked(ctx context.Context, fromSeq uint64) (err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanProjectorRewind, tracer.Uint64("from_seq", fromSeq))
	defer func() { span.End(err) }()

	if fromSeq == 0 {
		fromSeq = 1
	}
	if fromSeq > p.View().Cursor {
		return nil
	}
	if err := p.journal.TruncateFrom(ctx, fromSeq); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	p.logger.WarnContext(ctx, "ledger reorg, rewinding projection", "from_seq", fromSeq, "cursor", p.View().Cursor)
	return p.rebuildLocked(ctx, "reorg")
}

func (p *Projector) rebuildLocked(ctx context.Context, reason string) (err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanProjectorRebuild, tracer.String("reason", reason))
	defer func() { span.End(err) }()

	start := time.Now()
	snap := models.NewSnapshot()
	n, err := p.replay(ctx, snap, 0)
	if err != nil {
		return err
	}
	p.publish(snap)
	if p.metrics != nil {
		p.metrics.ObserveRebuild(reason, time.Since(start).Seconds())
	}
	span.SetAttributes(tracer.Uint64(tracer.AttrCursor, snap.Cursor), tracer.Int64(tracer.AttrEvents, int64(n)))
	p.logger.InfoContext(ctx, "projection rebuilt", "reason", reason, "cursor", snap.Cursor, "events", n)

	if p.checkpoints != nil {
		return p.checkpointLocked(ctx, snap)
	}
	return nil
}

// replay folds journaled events after snap's cursor into snap in place. snap
// must be private to the caller.
func (p *Projector) replay(ctx context.Context, snap *models.Snapshot, fromSeq uint64) (int, error) {
	n := 0
	err := p.journal.Range(ctx, fromSeq, func(ev ledger.Event) error {
		if ev.Seq <= snap.Cursor {
			return nil
		}
		if ruleErr := p.mutate(ctx, snap, ev, true); ruleErr != nil {
			p.logger.DebugContext(ctx, "replayed event skipped", "seq", ev.Seq, "kind", ev.Kind, "error", ruleErr)
		}
		snap.Cursor = ev.Seq
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("replay journal: %w", err)
	}
	return n, nil
}

func (p *Projector) maybeCheckpoint(ctx context.Context, snap *models.Snapshot, applied uint64) error {
	if p.checkpoints == nil {
		return nil
	}
	p.sinceCheckpoint += applied
	if p.sinceCheckpoint < p.checkpointEvery {
		return nil
	}
	return p.checkpointLocked(ctx, snap)
}

// checkpointLocked saves snap. A failed write invalidates the stored copy so
// the next start rebuilds, and is reported as fatal.
func (p *Projector) checkpointLocked(ctx context.Context, snap *models.Snapshot) (err error) {
	if p.checkpoints == nil {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, tracer.SpanProjectorCheckpoint, tracer.Uint64(tracer.AttrCursor, snap.Cursor))
	defer func() { span.End(err) }()

	data, err := snap.Canonical()
	if err == nil {
		err = p.checkpoints.Save(ctx, store.Checkpoint{Cursor: snap.Cursor, Snapshot: data})
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncCheckpoint("failed")
		}
		if invErr := p.checkpoints.Invalidate(ctx); invErr != nil {
			p.logger.ErrorContext(ctx, "checkpoint invalidation failed", "error", invErr)
		}
		p.logger.ErrorContext(ctx, "checkpoint write failed", "cursor", snap.Cursor, "error", err)
		return dErrors.Tag(sentinel.ErrCheckpoint, dErrors.CodeFatal,
			fmt.Sprintf("checkpoint at cursor %d: %v", snap.Cursor, err))
	}
	p.sinceCheckpoint = 0
	if p.metrics != nil {
		p.metrics.IncCheckpoint("ok")
	}
	return nil
}
