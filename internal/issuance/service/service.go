// Package service implements the credential issuance bridge: it turns an
// approved, finalized verification request into one mint intent on the ledger.
//
// The request id is the idempotency key. A request that already has a minted
// credential in the snapshot, or an intent in the store, is never minted
// again. The mint's completion is observed later as a ledger event; the bridge
// never waits for it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"credpass/internal/issuance/metrics"
	"credpass/internal/issuance/store"
	"credpass/internal/ledger/ports"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
	platformsync "credpass/pkg/platform/sync"
	"credpass/pkg/platform/tracer"
)

const (
	defaultCredentialTTL = 365 * 24 * time.Hour
	defaultPollInterval  = 5 * time.Second
)

// Projection is the snapshot source the bridge watches.
type Projection interface {
	View() *models.Snapshot
	Changes() <-chan struct{}
}

// Bridge issues credential mints for approved requests.
type Bridge struct {
	projection Projection
	minter     ports.Minter
	storage    metadata.Storage
	intents    store.Store
	locks      *platformsync.ShardedMutex

	ttl          time.Duration
	pollInterval time.Duration

	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithCredentialTTL sets how long an issued credential stays valid after the
// request was finalized. Zero issues credentials that never expire.
func WithCredentialTTL(ttl time.Duration) Option {
	return func(b *Bridge) {
		if ttl >= 0 {
			b.ttl = ttl
		}
	}
}

// WithPollInterval sets the reconcile interval of the background worker.
func WithPollInterval(interval time.Duration) Option {
	return func(b *Bridge) {
		if interval > 0 {
			b.pollInterval = interval
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(b *Bridge) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Bridge.
func New(projection Projection, minter ports.Minter, storage metadata.Storage, intents store.Store, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		projection:   projection,
		minter:       minter,
		storage:      storage,
		intents:      intents,
		locks:        platformsync.NewShardedMutex(0),
		ttl:          defaultCredentialTTL,
		pollInterval: defaultPollInterval,
		tracer:       tracer.NewNoop(),
		logger:       slog.Default(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnFinalized issues the mint intent for an approved request. It returns an
// issuance_duplicate error carrying the existing intent, if any, when the
// request was minted or claimed before, and not_approved when the request is
// not a finalized approval.
func (b *Bridge) OnFinalized(ctx context.Context, req models.VerificationRequest) (intent *store.Intent, err error) {
	if !req.Finalized || !req.Approved {
		return nil, dErrors.Tag(sentinel.ErrNotApproved, dErrors.CodeNotApproved,
			fmt.Sprintf("request %s is not an approved finalization", req.ID))
	}
	if req.MintedCredentialID != nil {
		b.countDuplicate("minted")
		return nil, issuanceDuplicate(fmt.Sprintf("request %s already minted as token %s", req.ID, *req.MintedCredentialID))
	}

	key := req.ID.String()
	b.locks.Lock(key)
	defer b.locks.Unlock(key)

	ctx, span := b.tracer.Start(ctx, tracer.SpanIssuanceMint, tracer.Uint64(tracer.AttrRequestID, uint64(req.ID)))
	defer func() {
		if dErrors.IsInformational(err) {
			span.SetAttributes(tracer.String(tracer.AttrOutcome, "duplicate"))
			span.End(nil)
			return
		}
		span.End(err)
	}()

	existing, err := b.intents.Get(ctx, req.ID)
	switch {
	case err == nil:
		b.countDuplicate("claimed")
		return existing, issuanceDuplicate(fmt.Sprintf("request %s already claimed by intent %s", req.ID, existing.ID))
	case !errors.Is(err, store.ErrNotFound):
		b.countFailure("store")
		return nil, fmt.Errorf("load intent for request %s: %w", req.ID, err)
	}

	if b.metrics != nil {
		b.metrics.IncAttempt()
	}
	uri, err := b.storeDocument(ctx, req)
	if err != nil {
		b.countFailure("metadata")
		return nil, err
	}

	now := b.now().UTC()
	claim := store.Intent{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Owner:       req.Proposer,
		MetadataURI: uri,
		ExpiryTs:    b.expiry(req),
		State:       store.StateClaimed,
		ClaimedAt:   now,
		UpdatedAt:   now,
	}
	won, err := b.intents.Claim(ctx, claim)
	if err != nil {
		b.countFailure("claim")
		return nil, fmt.Errorf("claim request %s: %w", req.ID, err)
	}
	if !won {
		b.countDuplicate("claimed")
		return nil, issuanceDuplicate(fmt.Sprintf("request %s claimed concurrently", req.ID))
	}

	start := time.Now()
	tx, err := b.minter.MintCredential(ctx, claim.Owner, claim.MetadataURI, claim.ExpiryTs)
	if b.metrics != nil {
		b.metrics.ObserveMint(time.Since(start).Seconds())
	}
	if err != nil {
		b.countFailure("mint")
		b.settleMintFailure(context.WithoutCancel(ctx), req, err)
		return nil, fmt.Errorf("mint credential for request %s: %w", req.ID, err)
	}

	if err := b.intents.MarkSubmitted(ctx, req.ID, tx.Hash); err != nil {
		// The claim still blocks a second mint.
		b.countFailure("store")
		b.logger.ErrorContext(ctx, "record submitted mint", "request_id", req.ID, "tx_hash", tx.Hash.Hex(), "error", err)
	} else {
		claim.State = store.StateSubmitted
		claim.TxHash = &tx.Hash
	}
	if b.metrics != nil {
		b.metrics.IncSubmitted()
	}
	b.logger.InfoContext(ctx, "credential mint submitted",
		"request_id", req.ID,
		"owner", claim.Owner.Hex(),
		"metadata_uri", claim.MetadataURI,
		"expiry_ts", claim.ExpiryTs,
		"tx_hash", tx.Hash.Hex(),
	)
	return &claim, nil
}

// settleMintFailure decides what a failed mint leaves behind. Only a failure
// the ledger client reports as never broadcast frees the request for another
// attempt. Anything else may have reached the ledger, so the claim is kept
// and marked failed until the mint is observed or an operator releases it.
func (b *Bridge) settleMintFailure(ctx context.Context, req models.VerificationRequest, mintErr error) {
	if errors.Is(mintErr, ports.ErrNotBroadcast) {
		if err := b.intents.Release(ctx, req.ID); err != nil {
			b.logger.ErrorContext(ctx, "release unsent intent", "request_id", req.ID, "error", err)
		}
		b.logger.WarnContext(ctx, "credential mint not sent", "request_id", req.ID, "error", mintErr)
		return
	}
	if err := b.intents.MarkFailed(ctx, req.ID, mintErr.Error()); err != nil {
		b.logger.ErrorContext(ctx, "record failed mint", "request_id", req.ID, "error", err)
	}
	b.logger.ErrorContext(ctx, "credential mint outcome unknown, holding claim until observed or released",
		"request_id", req.ID, "error", mintErr)
}

// storeDocument puts the onboarding document and checks the store addressed
// it the way the projector will when linking the mint.
func (b *Bridge) storeDocument(ctx context.Context, req models.VerificationRequest) (string, error) {
	data, err := metadata.OnboardingBytes(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode onboarding metadata")
	}
	want, err := metadata.OnboardingURI(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "derive onboarding uri")
	}
	got, err := b.storage.Put(ctx, data)
	if err != nil {
		return "", err
	}
	gotID, err := metadata.ParseURI(got)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "metadata store returned an unparseable uri")
	}
	wantID, _ := metadata.ParseURI(want)
	if !gotID.Equals(wantID) {
		return "", dErrors.New(dErrors.CodeInternal, fmt.Sprintf("metadata stored as %s, expected %s", got, want))
	}
	return want, nil
}

func (b *Bridge) expiry(req models.VerificationRequest) int64 {
	if b.ttl == 0 {
		return 0
	}
	base := req.FinalizedAt
	if base == 0 {
		base = b.now().Unix()
	}
	return base + int64(b.ttl/time.Second)
}

func (b *Bridge) countDuplicate(reason string) {
	if b.metrics != nil {
		b.metrics.IncDuplicate(reason)
	}
}

func (b *Bridge) countFailure(stage string) {
	if b.metrics != nil {
		b.metrics.IncFailure(stage)
	}
}

func issuanceDuplicate(msg string) error {
	return dErrors.Tag(sentinel.ErrIssuanceDuplicate, dErrors.CodeIssuanceDuplicate, msg)
}
