// Package consensus maps a vote tally to a verification outcome.
//
// The ledger runs the authoritative copy of these rules. The engine mirrors
// them off-chain so the projector can derive the result view and detect
// disagreement with what the ledger finalized.
package consensus

import (
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"

	"credpass/internal/projector/models"
)

// Outcome is the result of a finalize transition.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Engine evaluates the strict-majority rule.
type Engine struct {
	minVotes uint64
}

// Option configures the Engine.
type Option func(*Engine)

// WithMinVotes requires at least n cast votes for approval. The ledger has no
// quorum, so the default of zero matches it.
func WithMinVotes(n uint64) Option {
	return func(e *Engine) {
		e.minVotes = n
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide reports whether a tally approves its request: yes > no, ties reject.
// A nil tally has no votes and rejects.
func (e *Engine) Decide(tally *models.VoteTally) bool {
	if tally == nil {
		return false
	}
	if tally.Yes+tally.No < e.minVotes {
		return false
	}
	return tally.Yes > tally.No
}

// Outcome reports the state of a request as seen by the engine.
func (e *Engine) Outcome(req models.VerificationRequest) Outcome {
	switch {
	case !req.Finalized:
		return OutcomePending
	case req.Approved:
		return OutcomeApproved
	default:
		return OutcomeRejected
	}
}

// Finalize performs the one-shot Open -> Finalized transition on a copy of the
// request. A request that is already finalized yields AlreadyFinalized and is
// returned unchanged.
func (e *Engine) Finalize(req models.VerificationRequest, tally *models.VoteTally) (models.VerificationRequest, error) {
	if req.Finalized {
		return req, dErrors.Tag(sentinel.ErrAlreadyFinalized, dErrors.CodeAlreadyFinalized,
			"request "+req.ID.String()+" already finalized")
	}
	approved := e.Decide(tally)
	req.Finalized = true
	req.Approved = approved
	req.MirroredApproved = approved
	return req, nil
}
