// Package models defines the closed set of ledger events consumed by the
// projector. Every event arrives in an envelope carrying a strictly increasing
// sequence number; the payload is one of the variant types below.
package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Kind tags the payload variant of an event envelope.
type Kind string

const (
	KindSubmitted             Kind = "submitted"
	KindVoted                 Kind = "voted"
	KindFinalized             Kind = "finalized"
	KindCredentialMinted      Kind = "credential_minted"
	KindCredentialRevoked     Kind = "credential_revoked"
	KindCredentialBurned      Kind = "credential_burned"
	KindCredentialTransferred Kind = "credential_transferred"
	KindRoleGranted           Kind = "role_granted"
	KindRoleRevoked           Kind = "role_revoked"
	KindIssuerUpdated         Kind = "issuer_updated"
	KindElectionStarted       Kind = "election_started"
	KindVotingRightAssigned   Kind = "voting_right_assigned"

	// KindReorg is a control event from the indexer: events at or after
	// FromSeq were orphaned and will be re-delivered from the canonical chain.
	KindReorg Kind = "reorg"
)

// Event is one immutable ledger event.
type Event struct {
	Seq       uint64
	Kind      Kind
	Block     uint64
	TxHash    common.Hash
	Timestamp int64
	Payload   Payload
}

// Payload is implemented only by the variant types in this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// Submitted records a new verification request.
type Submitted struct {
	ID        RequestID      `json:"id"`
	ProjectID string         `json:"projectId"`
	Proposer  common.Address `json:"proposer"`
	ProofURI  string         `json:"proofURI"`
	Epoch     EpochID        `json:"epoch"`
}

// Voted records one account's vote on a request.
type Voted struct {
	RequestID RequestID      `json:"requestId"`
	Voter     common.Address `json:"voter"`
	Choice    bool           `json:"choice"`
}

// Finalized records the authoritative outcome of a request.
type Finalized struct {
	RequestID RequestID `json:"requestId"`
	Approved  bool      `json:"approved"`
}

// CredentialMinted records a credential token being minted. RequestID is set
// when the mint was issued for an approved verification request and the
// indexer could attribute it.
type CredentialMinted struct {
	TokenID   TokenID        `json:"tokenId"`
	To        common.Address `json:"to"`
	URI       string         `json:"uri"`
	ExpiryTs  int64          `json:"expiryTs"`
	RequestID *RequestID     `json:"requestId,omitempty"`
}

// CredentialRevoked marks a credential as revoked.
type CredentialRevoked struct {
	TokenID TokenID `json:"tokenId"`
}

// CredentialBurned records a credential token being destroyed by its holder.
type CredentialBurned struct {
	TokenID TokenID        `json:"tokenId"`
	From    common.Address `json:"from"`
}

// CredentialTransferred records an explicit ledger transfer of a credential.
type CredentialTransferred struct {
	TokenID TokenID        `json:"tokenId"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
}

// RoleChanged is the payload of both role_granted and role_revoked.
type RoleChanged struct {
	Granted bool           `json:"-"`
	Role    Role           `json:"role"`
	Account common.Address `json:"account"`
	Sender  common.Address `json:"sender"`
}

// IssuerUpdated toggles an account on the issuer allow-list.
type IssuerUpdated struct {
	Issuer  common.Address `json:"issuer"`
	Allowed bool           `json:"allowed"`
}

// ElectionStarted opens a new election epoch.
type ElectionStarted struct {
	Epoch EpochID `json:"epoch"`
}

// VotingRightAssigned sets an account's voting-right balance for an epoch.
// Balances are 0 or 1.
type VotingRightAssigned struct {
	Epoch   EpochID        `json:"epoch"`
	Account common.Address `json:"account"`
	Balance uint8          `json:"balance"`
}

// Reorg rewinds the stream to FromSeq.
type Reorg struct {
	FromSeq uint64 `json:"fromSeq"`
}

func (Submitted) Kind() Kind             { return KindSubmitted }
func (Voted) Kind() Kind                 { return KindVoted }
func (Finalized) Kind() Kind             { return KindFinalized }
func (CredentialMinted) Kind() Kind      { return KindCredentialMinted }
func (CredentialRevoked) Kind() Kind     { return KindCredentialRevoked }
func (CredentialBurned) Kind() Kind      { return KindCredentialBurned }
func (CredentialTransferred) Kind() Kind { return KindCredentialTransferred }
func (IssuerUpdated) Kind() Kind         { return KindIssuerUpdated }
func (ElectionStarted) Kind() Kind       { return KindElectionStarted }
func (VotingRightAssigned) Kind() Kind   { return KindVotingRightAssigned }
func (Reorg) Kind() Kind                 { return KindReorg }

// Kind reports role_granted or role_revoked depending on Granted.
func (r RoleChanged) Kind() Kind {
	if r.Granted {
		return KindRoleGranted
	}
	return KindRoleRevoked
}

func (Submitted) sealed()             {}
func (Voted) sealed()                 {}
func (Finalized) sealed()             {}
func (CredentialMinted) sealed()      {}
func (CredentialRevoked) sealed()     {}
func (CredentialBurned) sealed()      {}
func (CredentialTransferred) sealed() {}
func (RoleChanged) sealed()           {}
func (IssuerUpdated) sealed()         {}
func (ElectionStarted) sealed()       {}
func (VotingRightAssigned) sealed()   {}
func (Reorg) sealed()                 {}

// NewEvent builds an envelope around a payload. Kind is taken from the payload.
func NewEvent(seq uint64, payload Payload) Event {
	return Event{Seq: seq, Kind: payload.Kind(), Payload: payload}
}
