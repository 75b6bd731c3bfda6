// Package readmodels holds the JSON views served by the query API.
// Identifiers are rendered as decimal strings and accounts as checksummed hex.
package readmodels

import (
	"sort"

	"credpass/internal/consensus"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
)

// Credential is a credential token with its validity at evaluation time.
type Credential struct {
	TokenID         string  `json:"tokenId"`
	Owner           string  `json:"owner"`
	MetadataURI     string  `json:"metadataURI"`
	GatewayURL      string  `json:"gatewayURL,omitempty"`
	ExpiryTimestamp int64   `json:"expiryTimestamp"`
	Revoked         bool    `json:"revoked"`
	Burned          bool    `json:"burned"`
	Valid           bool    `json:"valid"`
	EvaluatedAt     int64   `json:"evaluatedAt"`
	RequestID       *string `json:"requestId,omitempty"`
}

// Vote is one recorded vote.
type Vote struct {
	Voter   string `json:"voter"`
	Approve bool   `json:"approve"`
}

// Tally is the vote count on a request and the outcome it maps to.
type Tally struct {
	RequestID string `json:"requestId"`
	Yes       uint64 `json:"yes"`
	No        uint64 `json:"no"`
	Votes     []Vote `json:"votes"`
	Outcome   string `json:"outcome"`
}

// Request is a verification request with its tally.
type Request struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"projectId"`
	Proposer           string  `json:"proposer"`
	ProofURI           string  `json:"proofURI"`
	Epoch              string  `json:"epoch"`
	SubmittedSeq       uint64  `json:"submittedSeq"`
	SubmittedAt        int64   `json:"submittedAt"`
	Status             string  `json:"status"`
	Finalized          bool    `json:"finalized"`
	Approved           bool    `json:"approved"`
	MirroredApproved   bool    `json:"mirroredApproved"`
	FinalizedAt        int64   `json:"finalizedAt,omitempty"`
	MintedCredentialID *string `json:"mintedCredentialId,omitempty"`
	Tally              Tally   `json:"tally"`
}

// Epoch is an election epoch summary.
type Epoch struct {
	ID            string   `json:"id"`
	Current       bool     `json:"current"`
	StartedSeq    uint64   `json:"startedSeq,omitempty"`
	EligibleCount int      `json:"eligibleCount"`
	Eligible      []string `json:"eligible"`
}

// Eligibility is the mirrored voting right of one account.
type Eligibility struct {
	Epoch    string `json:"epoch"`
	Account  string `json:"account"`
	Eligible bool   `json:"eligible"`
}

// Institution reports whether a project is currently trusted.
type Institution struct {
	ProjectID  string      `json:"projectId"`
	Trusted    bool        `json:"trusted"`
	Status     string      `json:"status"`
	Request    Request     `json:"request"`
	Credential *Credential `json:"credential,omitempty"`
}

// Projection summarizes the snapshot.
type Projection struct {
	Cursor       uint64 `json:"cursor"`
	CurrentEpoch string `json:"currentEpoch"`
	Requests     int    `json:"requests"`
	Credentials  int    `json:"credentials"`
	Epochs       int    `json:"epochs"`
	PendingMints int    `json:"pendingMints"`
}

// Request statuses.
const (
	StatusOpen             = "open"
	StatusRejected         = "rejected"
	StatusAwaitingIssuance = "awaiting_issuance"
	StatusIssued           = "issued"
)

// FromCredential renders a credential evaluated at unix time now.
func FromCredential(c *models.CredentialRecord, gateway string, now int64) Credential {
	out := Credential{
		TokenID:         c.TokenID.String(),
		Owner:           c.Owner.Hex(),
		MetadataURI:     c.MetadataURI,
		ExpiryTimestamp: c.ExpiryTimestamp,
		Revoked:         c.Revoked,
		Burned:          c.Burned,
		Valid:           c.ValidAt(now),
		EvaluatedAt:     now,
	}
	if gateway != "" {
		out.GatewayURL = metadata.GatewayURL(gateway, c.MetadataURI)
	}
	if c.RequestID != nil {
		id := c.RequestID.String()
		out.RequestID = &id
	}
	return out
}

// FromTally renders a tally. A nil tally renders as empty.
func FromTally(t *models.VoteTally, outcome consensus.Outcome) Tally {
	out := Tally{Votes: []Vote{}, Outcome: string(outcome)}
	if t == nil {
		return out
	}
	out.RequestID = t.RequestID.String()
	out.Yes, out.No = t.Yes, t.No
	for voter, approve := range t.Voters {
		out.Votes = append(out.Votes, Vote{Voter: voter.Hex(), Approve: approve})
	}
	sort.Slice(out.Votes, func(i, j int) bool { return out.Votes[i].Voter < out.Votes[j].Voter })
	return out
}

// FromRequest renders a request with its tally.
func FromRequest(r *models.VerificationRequest, t *models.VoteTally, outcome consensus.Outcome) Request {
	out := Request{
		ID:               r.ID.String(),
		ProjectID:        r.ProjectID,
		Proposer:         r.Proposer.Hex(),
		ProofURI:         r.ProofURI,
		Epoch:            r.Epoch.String(),
		SubmittedSeq:     r.SubmittedSeq,
		SubmittedAt:      r.SubmittedAt,
		Status:           RequestStatus(r),
		Finalized:        r.Finalized,
		Approved:         r.Approved,
		MirroredApproved: r.MirroredApproved,
		FinalizedAt:      r.FinalizedAt,
		Tally:            FromTally(t, outcome),
	}
	if out.Tally.RequestID == "" {
		out.Tally.RequestID = out.ID
	}
	if r.MintedCredentialID != nil {
		id := r.MintedCredentialID.String()
		out.MintedCredentialID = &id
	}
	return out
}

// RequestStatus names the lifecycle position of a request.
func RequestStatus(r *models.VerificationRequest) string {
	switch {
	case !r.Finalized:
		return StatusOpen
	case !r.Approved:
		return StatusRejected
	case r.MintedCredentialID == nil:
		return StatusAwaitingIssuance
	default:
		return StatusIssued
	}
}

// FromEpoch renders an epoch with its eligible accounts in address order.
func FromEpoch(e *models.ElectionEpoch, current bool) Epoch {
	out := Epoch{ID: e.ID.String(), Current: current, StartedSeq: e.StartedSeq, Eligible: []string{}}
	for account := range e.Balances {
		if e.Eligible(account) {
			out.Eligible = append(out.Eligible, account.Hex())
		}
	}
	sort.Strings(out.Eligible)
	out.EligibleCount = len(out.Eligible)
	return out
}
