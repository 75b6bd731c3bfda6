// Package eligibility mirrors the ledger's per-epoch voting rights for
// display and client-side pre-checks. The ledger enforces eligibility; a
// result here is never treated as authorization.
package eligibility

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

// ViewSource yields the latest published snapshot.
type ViewSource interface {
	View() *models.Snapshot
}

// Gate answers eligibility questions against a snapshot source.
type Gate struct {
	views ViewSource
}

// New creates a Gate reading from views.
func New(views ViewSource) *Gate {
	return &Gate{views: views}
}

// IsEligible reports whether account holds the voting-right unit for epoch.
func (g *Gate) IsEligible(epoch ledger.EpochID, account common.Address) bool {
	return IsEligible(g.views.View(), epoch, account)
}

// CheckVote runs the vote pre-check for account on requestID against one
// consistent snapshot.
func (g *Gate) CheckVote(requestID ledger.RequestID, account common.Address) error {
	return CheckVote(g.views.View(), requestID, account)
}

// IsEligible is the pure form of Gate.IsEligible.
func IsEligible(snap *models.Snapshot, epoch ledger.EpochID, account common.Address) bool {
	if snap == nil {
		return false
	}
	return snap.Epochs[epoch].Eligible(account)
}

// CheckVote reports why a vote by account on requestID would be rejected by
// the ledger, or nil if the mirror sees no reason. Eligibility is evaluated
// in the request's epoch.
func CheckVote(snap *models.Snapshot, requestID ledger.RequestID, account common.Address) error {
	if snap == nil {
		return dErrors.Tag(sentinel.ErrUnknownReference, dErrors.CodeUnknownReference, "no projection loaded")
	}
	req, ok := snap.Requests[requestID]
	if !ok {
		return dErrors.Tag(sentinel.ErrUnknownReference, dErrors.CodeUnknownReference,
			fmt.Sprintf("request %s not found", requestID))
	}
	if req.Finalized {
		return dErrors.Tag(sentinel.ErrAlreadyFinalized, dErrors.CodeAlreadyFinalized,
			fmt.Sprintf("request %s is finalized", requestID))
	}
	if !IsEligible(snap, req.Epoch, account) {
		return dErrors.Tag(sentinel.ErrIneligibleVoter, dErrors.CodeIneligibleVoter,
			fmt.Sprintf("%s holds no voting right in epoch %s", account.Hex(), req.Epoch))
	}
	if snap.Tallies[requestID].HasVoted(account) {
		return dErrors.Tag(sentinel.ErrAlreadyVoted, dErrors.CodeAlreadyVoted,
			fmt.Sprintf("%s already voted on request %s", account.Hex(), requestID))
	}
	return nil
}
