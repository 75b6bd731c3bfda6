package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

// Apply folds one decoded event into the snapshot and publishes the result.
//
// An event at or below the cursor is a DuplicateApplication no-op. An event
// that decodes but breaks a rule (unknown reference, repeated vote, frozen
// tally) is journaled and advances the cursor without changing state; its
// error is returned and recorded but never stops the stream. Only checkpoint
// I/O failures come back as fatal.
func (p *Projector) Apply(ctx context.Context, ev ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := ev.Payload.(ledger.Reorg); ok {
		return p.rewindLocked(ctx, r.FromSeq)
	}

	cur := p.View()
	if ev.Seq <= cur.Cursor {
		return duplicate(ev.Seq, cur.Cursor)
	}

	next := cur.Clone()
	ruleErr, err := p.advance(ctx, next, ev)
	if err != nil {
		return err
	}
	p.publish(next)

	if err := p.maybeCheckpoint(ctx, next, 1); err != nil {
		return err
	}
	return ruleErr
}

// ApplyBatch applies events in order and publishes once. It returns the
// number of events that advanced the cursor. Rule violations are recorded and
// skipped; a journal or checkpoint failure stops the batch after publishing
// what was applied so far.
func (p *Projector) ApplyBatch(ctx context.Context, events []ledger.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.View().Clone()
	applied := 0
	var stopErr error
	for _, ev := range events {
		if r, ok := ev.Payload.(ledger.Reorg); ok {
			if applied > 0 {
				p.publish(next)
			}
			if err := p.rewindLocked(ctx, r.FromSeq); err != nil {
				return applied, err
			}
			next = p.View().Clone()
			applied = 0
			continue
		}
		if ev.Seq <= next.Cursor {
			continue
		}
		if _, err := p.advance(ctx, next, ev); err != nil {
			stopErr = err
			break
		}
		applied++
	}
	if applied > 0 {
		p.publish(next)
		if err := p.maybeCheckpoint(ctx, next, uint64(applied)); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	return applied, stopErr
}

// RecordDecodeError logs a malformed event that never reached Apply.
func (p *Projector) RecordDecodeError(ctx context.Context, seq uint64, err error) {
	p.recordSkip(ctx, ledger.Event{Seq: seq}, err)
}

// advance journals ev, then mutates next and moves its cursor. ruleErr is the
// rule violation, if any. err is a journal failure that left next untouched.
func (p *Projector) advance(ctx context.Context, next *models.Snapshot, ev ledger.Event) (ruleErr, err error) {
	if err := p.journal.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("journal event %d: %w", ev.Seq, err)
	}

	start := time.Now()
	ruleErr = p.mutate(ctx, next, ev, false)
	next.Cursor = ev.Seq

	if ruleErr != nil {
		p.recordSkip(ctx, ev, ruleErr)
	} else if p.metrics != nil {
		p.metrics.IncApplied(string(ev.Kind))
	}
	if p.metrics != nil {
		p.metrics.ObserveApply(time.Since(start).Seconds())
	}
	return ruleErr, nil
}

func (p *Projector) recordSkip(ctx context.Context, ev ledger.Event, err error) {
	if p.metrics != nil {
		p.metrics.IncSkipped(string(ev.Kind), string(dErrors.CodeOf(err)))
	}
	p.recordError(ctx, ev, err)
}

// recordError keeps err in the recent-errors list and logs it.
func (p *Projector) recordError(ctx context.Context, ev ledger.Event, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeDuplicateApplication {
		return
	}
	p.errors.add(ProjectionError{Seq: ev.Seq, Kind: ev.Kind, Code: code, Message: err.Error(), At: p.now()})
	if dErrors.IsInformational(err) {
		p.logger.InfoContext(ctx, "ledger event had no effect",
			"seq", ev.Seq, "kind", ev.Kind, "code", code, "error", err)
		return
	}
	p.logger.WarnContext(ctx, "ledger event skipped",
		"seq", ev.Seq, "kind", ev.Kind, "code", code, "error", err)
}

// mutate applies the per-kind rule to next. next's top-level maps are private
// to the caller; entries are replaced, never modified in place. A returned
// error means next was left unchanged.
func (p *Projector) mutate(ctx context.Context, next *models.Snapshot, ev ledger.Event, replay bool) error {
	switch e := ev.Payload.(type) {
	case ledger.Submitted:
		if _, exists := next.Requests[e.ID]; exists {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("request %s already submitted", e.ID))
		}
		next.Requests[e.ID] = &models.VerificationRequest{
			ID:           e.ID,
			ProjectID:    e.ProjectID,
			Proposer:     e.Proposer,
			ProofURI:     e.ProofURI,
			Epoch:        e.Epoch,
			SubmittedSeq: ev.Seq,
			SubmittedAt:  ev.Timestamp,
		}
		next.Tallies[e.ID] = models.NewVoteTally(e.ID)

	case ledger.Voted:
		req, ok := next.Requests[e.RequestID]
		if !ok {
			return unknown("vote", "request", e.RequestID.String())
		}
		if req.Finalized {
			return dErrors.Tag(sentinel.ErrTallyFrozen, dErrors.CodeTallyFrozen,
				fmt.Sprintf("request %s is finalized", e.RequestID))
		}
		tally := next.Tallies[e.RequestID]
		if tally == nil {
			tally = models.NewVoteTally(e.RequestID)
		}
		if tally.HasVoted(e.Voter) {
			return dErrors.Tag(sentinel.ErrAlreadyVoted, dErrors.CodeAlreadyVoted,
				fmt.Sprintf("%s already voted on request %s", e.Voter.Hex(), e.RequestID))
		}
		next.Tallies[e.RequestID] = tally.WithVote(e.Voter, e.Choice)

	case ledger.Finalized:
		req, ok := next.Requests[e.RequestID]
		if !ok {
			return unknown("finalize", "request", e.RequestID.String())
		}
		final, err := p.engine.Finalize(*req, next.Tallies[e.RequestID])
		if err != nil {
			return err
		}
		// The ledger's outcome is authoritative; the engine's is kept for comparison.
		final.Approved = e.Approved
		final.FinalizedSeq = ev.Seq
		final.FinalizedAt = ev.Timestamp
		if final.MirroredApproved != e.Approved && !replay {
			if p.metrics != nil {
				p.metrics.IncDivergence()
			}
			p.logger.WarnContext(ctx, "mirrored outcome differs from ledger",
				"request_id", e.RequestID, "ledger_approved", e.Approved, "mirrored_approved", final.MirroredApproved)
		}
		if final.Approved {
			uri, err := metadata.OnboardingURI(final)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "derive onboarding uri")
			}
			next.PendingMints[uri] = final.ID
		}
		next.Requests[e.RequestID] = &final

	case ledger.CredentialMinted:
		if _, exists := next.Credentials[e.TokenID]; exists {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("token %s already minted", e.TokenID))
		}
		record := &models.CredentialRecord{
			TokenID:         e.TokenID,
			Owner:           e.To,
			MetadataURI:     e.URI,
			ExpiryTimestamp: e.ExpiryTs,
			MintedSeq:       ev.Seq,
		}
		req, dupOf := p.mintedFor(ctx, next, e, replay)
		if req != nil {
			linked := *req
			tokenID := e.TokenID
			linked.MintedCredentialID = &tokenID
			reqID := req.ID
			record.RequestID = &reqID
			next.Requests[req.ID] = &linked
			if uri, err := metadata.OnboardingURI(*req); err == nil {
				delete(next.PendingMints, uri)
			}
		}
		next.Credentials[e.TokenID] = record
		if dupOf != nil && !replay {
			p.recordError(ctx, ev, dErrors.Tag(sentinel.ErrIssuanceDuplicate, dErrors.CodeIssuanceDuplicate,
				fmt.Sprintf("token %s repeats the credential of request %s already minted as token %s",
					e.TokenID, dupOf.ID, *dupOf.MintedCredentialID)))
		}

	case ledger.CredentialRevoked:
		cred, ok := next.Credentials[e.TokenID]
		if !ok {
			return unknown("revoke", "token", e.TokenID.String())
		}
		updated := *cred
		updated.Revoked = true
		next.Credentials[e.TokenID] = &updated

	case ledger.CredentialBurned:
		cred, ok := next.Credentials[e.TokenID]
		if !ok {
			return unknown("burn", "token", e.TokenID.String())
		}
		if cred.Owner != e.From {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("burn of token %s by %s, owner is %s", e.TokenID, e.From.Hex(), cred.Owner.Hex()))
		}
		updated := *cred
		updated.Burned = true
		next.Credentials[e.TokenID] = &updated

	case ledger.CredentialTransferred:
		cred, ok := next.Credentials[e.TokenID]
		if !ok {
			return unknown("transfer", "token", e.TokenID.String())
		}
		if cred.Burned {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("transfer of burned token %s", e.TokenID))
		}
		if cred.Owner != e.From {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("transfer of token %s from %s, owner is %s", e.TokenID, e.From.Hex(), cred.Owner.Hex()))
		}
		updated := *cred
		updated.Owner = e.To
		next.Credentials[e.TokenID] = &updated

	case ledger.RoleChanged:
		members := make(map[common.Address]bool, len(next.Roles[e.Role])+1)
		for acct := range next.Roles[e.Role] {
			members[acct] = true
		}
		if e.Granted {
			members[e.Account] = true
		} else {
			delete(members, e.Account)
		}
		if len(members) == 0 {
			delete(next.Roles, e.Role)
		} else {
			next.Roles[e.Role] = members
		}

	case ledger.IssuerUpdated:
		if e.Allowed {
			next.Issuers[e.Issuer] = true
		} else {
			delete(next.Issuers, e.Issuer)
		}

	case ledger.ElectionStarted:
		if running, ok := next.Epochs[next.CurrentEpoch]; ok && running.StartedSeq != 0 && e.Epoch <= next.CurrentEpoch {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("election %s does not follow current election %s", e.Epoch, next.CurrentEpoch))
		}
		epoch := &models.ElectionEpoch{ID: e.Epoch, StartedSeq: ev.Seq, Balances: map[common.Address]uint8{}}
		if existing, ok := next.Epochs[e.Epoch]; ok {
			for acct, bal := range existing.Balances {
				epoch.Balances[acct] = bal
			}
		}
		next.Epochs[e.Epoch] = epoch
		next.CurrentEpoch = e.Epoch

	case ledger.VotingRightAssigned:
		epoch := &models.ElectionEpoch{ID: e.Epoch, Balances: map[common.Address]uint8{}}
		if existing, ok := next.Epochs[e.Epoch]; ok {
			epoch.StartedSeq = existing.StartedSeq
			for acct, bal := range existing.Balances {
				epoch.Balances[acct] = bal
			}
		}
		if e.Balance == 1 {
			epoch.Balances[e.Account] = 1
		} else {
			delete(epoch.Balances, e.Account)
		}
		next.Epochs[e.Epoch] = epoch

	default:
		return dErrors.Tag(sentinel.ErrDecode, dErrors.CodeDecode, fmt.Sprintf("event %d: unsupported payload", ev.Seq))
	}
	return nil
}

// mintedFor finds the approved, unminted request a mint settles: the request
// named by the event, or the one whose proposer and onboarding metadata URI
// match the mint. The second result is set instead when the mint repeats the
// credential of a request that is already minted.
func (p *Projector) mintedFor(ctx context.Context, snap *models.Snapshot, e ledger.CredentialMinted, replay bool) (*models.VerificationRequest, *models.VerificationRequest) {
	if e.RequestID != nil {
		req, ok := snap.Requests[*e.RequestID]
		switch {
		case ok && req.AwaitingIssuance():
			return req, nil
		case ok && req.MintedCredentialID != nil:
			return nil, req
		}
		level := slog.LevelWarn
		if replay {
			level = slog.LevelDebug
		}
		p.logger.Log(ctx, level, "mint names a request that is not awaiting issuance",
			"token_id", e.TokenID, "request_id", *e.RequestID)
		return nil, nil
	}
	if id, ok := snap.PendingMints[e.URI]; ok {
		req, ok := snap.Requests[id]
		if ok && req.AwaitingIssuance() && req.Proposer == e.To {
			return req, nil
		}
		return nil, nil
	}
	for _, cred := range snap.Credentials {
		if cred.RequestID == nil || cred.MetadataURI != e.URI || cred.Owner != e.To {
			continue
		}
		if req, ok := snap.Requests[*cred.RequestID]; ok && req.MintedCredentialID != nil {
			return nil, req
		}
	}
	return nil, nil
}

func unknown(action, entity, id string) error {
	return dErrors.Tag(sentinel.ErrUnknownReference, dErrors.CodeUnknownReference,
		fmt.Sprintf("%s references unknown %s %s", action, entity, id))
}

func duplicate(seq, cursor uint64) error {
	return dErrors.Tag(sentinel.ErrDuplicateApplication, dErrors.CodeDuplicateApplication,
		fmt.Sprintf("event %d at or below cursor %d", seq, cursor))
}
