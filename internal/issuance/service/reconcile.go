package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"credpass/internal/issuance/store"
	ledger "credpass/internal/ledger/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/tracer"
)

// Reconcile walks the latest snapshot once. Intents whose mint has been
// observed are settled, and approved requests without a credential or an
// intent are issued. It returns the number of mints submitted.
func (b *Bridge) Reconcile(ctx context.Context) (issued int, err error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanIssuanceReconcile)
	defer func() {
		span.SetAttributes(tracer.Int64("issuance.issued", int64(issued)))
		span.End(err)
	}()
	if b.metrics != nil {
		b.metrics.IncReconcile()
	}

	snap := b.projection.View()
	pending, err := b.intents.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending intents: %w", err)
	}

	claimed := make(map[ledger.RequestID]bool, len(pending))
	open := 0
	for _, intent := range pending {
		claimed[intent.RequestID] = true
		req := snap.Requests[intent.RequestID]
		if req == nil || req.MintedCredentialID == nil {
			open++
			continue
		}
		if err := b.intents.MarkSettled(ctx, intent.RequestID, *req.MintedCredentialID); err != nil {
			b.logger.WarnContext(ctx, "settle intent", "request_id", intent.RequestID, "error", err)
			open++
			continue
		}
		if b.metrics != nil {
			b.metrics.IncSettled()
		}
		b.logger.InfoContext(ctx, "credential issuance settled",
			"request_id", intent.RequestID, "token_id", *req.MintedCredentialID)
	}

	ids := make([]ledger.RequestID, 0)
	for id, req := range snap.Requests {
		if req.AwaitingIssuance() && !claimed[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		switch _, err := b.OnFinalized(ctx, *snap.Requests[id]); {
		case err == nil:
			issued++
			open++
		case dErrors.IsInformational(err):
		default:
			errs = append(errs, err)
		}
	}
	if b.metrics != nil {
		b.metrics.SetPending(open)
	}
	return issued, errors.Join(errs...)
}

// Release drops the intent for a request so a later reconcile may mint
// again. It is an operator action for mints known not to have landed.
func (b *Bridge) Release(ctx context.Context, requestID ledger.RequestID) error {
	intent, err := b.intents.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.Tag(store.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("no intent for request %s", requestID))
		}
		return err
	}
	if intent.State == store.StateSettled {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("intent for request %s is settled", requestID))
	}
	if err := b.intents.Release(ctx, requestID); err != nil {
		return fmt.Errorf("release intent for request %s: %w", requestID, err)
	}
	b.logger.WarnContext(ctx, "issuance intent released",
		"request_id", requestID, "intent_id", intent.ID, "state", intent.State)
	return nil
}

// Intent returns the stored intent for a request.
func (b *Bridge) Intent(ctx context.Context, requestID ledger.RequestID) (*store.Intent, error) {
	intent, err := b.intents.Get(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.Tag(store.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("no intent for request %s", requestID))
	}
	return intent, err
}

// Start runs Reconcile in the background on every snapshot change and on
// the poll interval.
func (b *Bridge) Start() {
	b.wg.Add(1)
	go b.run()
}

func (b *Bridge) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.projection.Changes():
			b.reconcile()
		case <-ticker.C:
			b.reconcile()
		}
	}
}

func (b *Bridge) reconcile() {
	if _, err := b.Reconcile(b.ctx); err != nil && b.ctx.Err() == nil {
		b.logger.ErrorContext(b.ctx, "issuance reconcile failed", "error", err)
	}
}

// Stop cancels the worker and waits for an in-flight pass to finish.
func (b *Bridge) Stop(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
