package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
)

// Well-known accounts for deterministic test histories.
var Accounts = struct {
	Proposer common.Address
	Other    common.Address
	VoterA   common.Address
	VoterB   common.Address
	VoterC   common.Address
}{
	Proposer: common.BigToAddress(big.NewInt(0xa1)),
	Other:    common.BigToAddress(big.NewInt(0xa2)),
	VoterA:   common.BigToAddress(big.NewInt(0xb1)),
	VoterB:   common.BigToAddress(big.NewInt(0xb2)),
	VoterC:   common.BigToAddress(big.NewInt(0xb3)),
}

// StreamBuilder builds a ledger event history with consecutive sequence
// numbers and a fixed timestamp.
type StreamBuilder struct {
	events    []ledger.Event
	seq       uint64
	timestamp int64
}

// NewStream starts a history at sequence 1.
func NewStream(timestamp int64) *StreamBuilder {
	return &StreamBuilder{timestamp: timestamp}
}

// Add appends payload as the next event.
func (b *StreamBuilder) Add(payload ledger.Payload) *StreamBuilder {
	b.seq++
	ev := ledger.NewEvent(b.seq, payload)
	ev.Timestamp = b.timestamp
	ev.Block = b.seq
	b.events = append(b.events, ev)
	return b
}

// Election opens epoch and assigns one voting right to each voter.
func (b *StreamBuilder) Election(epoch ledger.EpochID, voters ...common.Address) *StreamBuilder {
	b.Add(ledger.ElectionStarted{Epoch: epoch})
	for _, v := range voters {
		b.Add(ledger.VotingRightAssigned{Epoch: epoch, Account: v, Balance: 1})
	}
	return b
}

// Submit appends a verification request from the well-known proposer.
func (b *StreamBuilder) Submit(id ledger.RequestID, projectID string, epoch ledger.EpochID) *StreamBuilder {
	return b.Add(ledger.Submitted{
		ID:        id,
		ProjectID: projectID,
		Proposer:  Accounts.Proposer,
		ProofURI:  "cid://proof-" + id.String(),
		Epoch:     epoch,
	})
}

// Vote appends one vote.
func (b *StreamBuilder) Vote(id ledger.RequestID, voter common.Address, approve bool) *StreamBuilder {
	return b.Add(ledger.Voted{RequestID: id, Voter: voter, Choice: approve})
}

// Finalize appends the ledger's finalization of a request.
func (b *StreamBuilder) Finalize(id ledger.RequestID, approved bool) *StreamBuilder {
	return b.Add(ledger.Finalized{RequestID: id, Approved: approved})
}

// Onboarding is the MITS history: three voters, two approve, one rejects,
// finalized as approved.
func (b *StreamBuilder) Onboarding(id ledger.RequestID) *StreamBuilder {
	return b.Election(1, Accounts.VoterA, Accounts.VoterB, Accounts.VoterC).
		Submit(id, "MITS", 1).
		Vote(id, Accounts.VoterA, true).
		Vote(id, Accounts.VoterB, true).
		Vote(id, Accounts.VoterC, false).
		Finalize(id, true)
}

// Events returns the built history.
func (b *StreamBuilder) Events() []ledger.Event {
	out := make([]ledger.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Encoded returns the history in wire form, one event per element.
func (b *StreamBuilder) Encoded() ([][]byte, error) {
	out := make([][]byte, 0, len(b.events))
	for _, ev := range b.events {
		data, err := ledger.Encode(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
