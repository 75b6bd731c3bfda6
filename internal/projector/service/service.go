// Package service implements the event projector: the single writer that
// folds ledger events into the materialized snapshot.
//
// Writers are serialized by a mutex. Each apply builds a new snapshot from a
// shallow clone of the current one and publishes it atomically, so readers
// calling View never observe a partially applied event.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"credpass/internal/consensus"
	"credpass/internal/ledger/journal"
	"credpass/internal/projector/metrics"
	"credpass/internal/projector/models"
	"credpass/internal/projector/store"
	"credpass/pkg/platform/tracer"
)

const (
	defaultCheckpointEvery = 100
	defaultErrorLogSize    = 100
)

// Projector owns the snapshot.
type Projector struct {
	mu      sync.Mutex
	current atomic.Pointer[models.Snapshot]

	journal         journal.Journal
	checkpoints     store.Store
	checkpointEvery uint64
	sinceCheckpoint uint64

	engine  *consensus.Engine
	errors  *errorLog
	changes chan struct{}

	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Projector.
type Option func(*Projector)

// WithCheckpointStore persists snapshots so Restore can skip a full replay.
func WithCheckpointStore(s store.Store) Option {
	return func(p *Projector) {
		p.checkpoints = s
	}
}

// WithCheckpointEvery sets how many applied events trigger a checkpoint.
func WithCheckpointEvery(n uint64) Option {
	return func(p *Projector) {
		if n > 0 {
			p.checkpointEvery = n
		}
	}
}

// WithEngine replaces the consensus engine used for the mirrored outcome.
func WithEngine(e *consensus.Engine) Option {
	return func(p *Projector) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithErrorLogSize bounds the in-memory log of skipped events.
func WithErrorLogSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.errors = newErrorLog(n)
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) {
		p.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(p *Projector) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the time source for error log entries.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Projector over an empty snapshot. Call Restore or Rebuild to
// load existing history.
func New(j journal.Journal, opts ...Option) *Projector {
	p := &Projector{
		journal:         j,
		checkpointEvery: defaultCheckpointEvery,
		engine:          consensus.New(),
		errors:          newErrorLog(defaultErrorLogSize),
		changes:         make(chan struct{}, 1),
		tracer:          tracer.NewNoop(),
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(models.NewSnapshot())
	return p
}

// View returns the latest published snapshot. It must be treated as read-only.
func (p *Projector) View() *models.Snapshot {
	return p.current.Load()
}

// Cursor returns the lastProcessedEventCursor of the latest snapshot.
func (p *Projector) Cursor() uint64 {
	return p.View().Cursor
}

// Changes delivers a coalesced signal after each published change.
func (p *Projector) Changes() <-chan struct{} {
	return p.changes
}

// Errors returns the retained skipped-event records, newest first.
func (p *Projector) Errors() []ProjectionError {
	return p.errors.list()
}

func (p *Projector) publish(snap *models.Snapshot) {
	p.current.Store(snap)
	if p.metrics != nil {
		p.metrics.SetCursor(snap.Cursor)
		p.metrics.SetEntities(len(snap.Requests), len(snap.Credentials), len(snap.Epochs))
	}
	select {
	case p.changes <- struct{}{}:
	default:
	}
}

// Checkpoint persists the current snapshot immediately.
func (p *Projector) Checkpoint(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpointLocked(ctx, p.View())
}
