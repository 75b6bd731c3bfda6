// Package models holds the materialized read model the projector builds from
// ledger history. Values reachable from a published Snapshot are immutable:
// the projector replaces entries with modified copies instead of mutating them.
package models

import (
	"encoding/json"
	"maps"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
)

// VerificationRequest is an institution/project verification proposal.
type VerificationRequest struct {
	ID           ledger.RequestID `json:"id"`
	ProjectID    string           `json:"projectId"`
	Proposer     common.Address   `json:"proposer"`
	ProofURI     string           `json:"proofURI"`
	Epoch        ledger.EpochID   `json:"epoch"`
	SubmittedSeq uint64           `json:"submittedSeq"`
	SubmittedAt  int64            `json:"submittedAt"`

	Finalized    bool   `json:"finalized"`
	Approved     bool   `json:"approved"`
	FinalizedSeq uint64 `json:"finalizedSeq,omitempty"`
	FinalizedAt  int64  `json:"finalizedAt,omitempty"`

	// MirroredApproved is the off-chain consensus result for the finalized
	// tally. It differs from Approved only if the mirror disagrees with the ledger.
	MirroredApproved bool `json:"mirroredApproved"`

	MintedCredentialID *ledger.TokenID `json:"mintedCredentialId,omitempty"`
}

// AwaitingIssuance reports whether the request is approved but not yet minted.
func (r VerificationRequest) AwaitingIssuance() bool {
	return r.Finalized && r.Approved && r.MintedCredentialID == nil
}

// VoteTally counts votes on one request. len(Voters) == Yes+No always holds.
type VoteTally struct {
	RequestID ledger.RequestID        `json:"requestId"`
	Yes       uint64                  `json:"yes"`
	No        uint64                  `json:"no"`
	Voters    map[common.Address]bool `json:"voters"`
}

// NewVoteTally returns an empty tally for a request.
func NewVoteTally(id ledger.RequestID) *VoteTally {
	return &VoteTally{RequestID: id, Voters: map[common.Address]bool{}}
}

// HasVoted reports whether the account already has a vote recorded.
func (t *VoteTally) HasVoted(account common.Address) bool {
	if t == nil {
		return false
	}
	_, ok := t.Voters[account]
	return ok
}

// WithVote returns a copy of the tally with one more vote recorded.
// The caller must have checked HasVoted.
func (t *VoteTally) WithVote(voter common.Address, approve bool) *VoteTally {
	next := &VoteTally{RequestID: t.RequestID, Yes: t.Yes, No: t.No, Voters: maps.Clone(t.Voters)}
	if next.Voters == nil {
		next.Voters = map[common.Address]bool{}
	}
	next.Voters[voter] = approve
	if approve {
		next.Yes++
	} else {
		next.No++
	}
	return next
}

// Consistent checks the tally invariant.
func (t *VoteTally) Consistent() bool {
	return uint64(len(t.Voters)) == t.Yes+t.No
}

// CredentialRecord is a credential token as seen on the ledger.
type CredentialRecord struct {
	TokenID         ledger.TokenID    `json:"tokenId"`
	Owner           common.Address    `json:"owner"`
	MetadataURI     string            `json:"metadataURI"`
	ExpiryTimestamp int64             `json:"expiryTimestamp"`
	Revoked         bool              `json:"revoked"`
	Burned          bool              `json:"burned"`
	MintedSeq       uint64            `json:"mintedSeq"`
	RequestID       *ledger.RequestID `json:"requestId,omitempty"`
}

// ValidAt reports whether the credential is usable at unix time now.
// An expiry of zero means the credential does not expire.
func (c CredentialRecord) ValidAt(now int64) bool {
	if c.Revoked || c.Burned {
		return false
	}
	return c.ExpiryTimestamp == 0 || now < c.ExpiryTimestamp
}

// ElectionEpoch holds the voting-right balance snapshot for one epoch.
type ElectionEpoch struct {
	ID         ledger.EpochID           `json:"id"`
	StartedSeq uint64                   `json:"startedSeq,omitempty"`
	Balances   map[common.Address]uint8 `json:"balances"`
}

// Eligible reports whether the account holds a voting right in this epoch.
func (e *ElectionEpoch) Eligible(account common.Address) bool {
	return e != nil && e.Balances[account] == 1
}

// Snapshot is the projector's materialized state as of Cursor.
type Snapshot struct {
	Cursor       uint64         `json:"cursor"`
	CurrentEpoch ledger.EpochID `json:"currentEpoch"`

	Requests    map[ledger.RequestID]*VerificationRequest `json:"requests"`
	Tallies     map[ledger.RequestID]*VoteTally           `json:"tallies"`
	Credentials map[ledger.TokenID]*CredentialRecord      `json:"credentials"`
	Epochs      map[ledger.EpochID]*ElectionEpoch         `json:"epochs"`

	Roles   map[ledger.Role]map[common.Address]bool `json:"roles"`
	Issuers map[common.Address]bool                `json:"issuers"`

	// PendingMints indexes approved, unminted requests by the metadata URI
	// their credential will be minted with.
	PendingMints map[string]ledger.RequestID `json:"pendingMints"`
}

// NewSnapshot returns an empty snapshot at cursor zero.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Requests:     map[ledger.RequestID]*VerificationRequest{},
		Tallies:      map[ledger.RequestID]*VoteTally{},
		Credentials:  map[ledger.TokenID]*CredentialRecord{},
		Epochs:       map[ledger.EpochID]*ElectionEpoch{},
		Roles:        map[ledger.Role]map[common.Address]bool{},
		Issuers:      map[common.Address]bool{},
		PendingMints: map[string]ledger.RequestID{},
	}
}

// Clone returns a shallow copy whose top-level maps may be modified freely.
// Entries are shared and must be replaced, not mutated.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Cursor:       s.Cursor,
		CurrentEpoch: s.CurrentEpoch,
		Requests:     maps.Clone(s.Requests),
		Tallies:      maps.Clone(s.Tallies),
		Credentials:  maps.Clone(s.Credentials),
		Epochs:       maps.Clone(s.Epochs),
		Roles:        maps.Clone(s.Roles),
		Issuers:      maps.Clone(s.Issuers),
		PendingMints: maps.Clone(s.PendingMints),
	}
}

// Canonical returns a deterministic byte encoding of the snapshot. Map keys
// are emitted in sorted order by encoding/json, so equal states encode equally.
func (s *Snapshot) Canonical() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot restores a snapshot from its canonical encoding.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	snap := NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	snap.ensureMaps()
	return snap, nil
}

func (s *Snapshot) ensureMaps() {
	if s.Requests == nil {
		s.Requests = map[ledger.RequestID]*VerificationRequest{}
	}
	if s.Tallies == nil {
		s.Tallies = map[ledger.RequestID]*VoteTally{}
	}
	if s.Credentials == nil {
		s.Credentials = map[ledger.TokenID]*CredentialRecord{}
	}
	if s.Epochs == nil {
		s.Epochs = map[ledger.EpochID]*ElectionEpoch{}
	}
	if s.Roles == nil {
		s.Roles = map[ledger.Role]map[common.Address]bool{}
	}
	if s.Issuers == nil {
		s.Issuers = map[common.Address]bool{}
	}
	if s.PendingMints == nil {
		s.PendingMints = map[string]ledger.RequestID{}
	}
}
