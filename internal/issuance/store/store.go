// Package store holds issuance intents: the idempotency record that guards a
// credential mint so each approved request is minted at most once.
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	ledger "credpass/internal/ledger/models"
	"credpass/pkg/platform/sentinel"
)

// ErrNotFound is returned when no intent exists for a request.
var ErrNotFound = sentinel.ErrNotFound

// State is an intent's progress toward a minted credential.
type State string

const (
	// StateClaimed means a bridge owns the request and may be minting.
	StateClaimed State = "claimed"
	// StateSubmitted means the mint transaction was accepted by the ledger.
	StateSubmitted State = "submitted"
	// StateSettled means the mint was observed on the event stream.
	StateSettled State = "settled"
	// StateFailed means the mint call errored after it may have reached the
	// ledger. The intent keeps its claim until the mint is observed or an
	// operator releases it.
	StateFailed State = "failed"
)

// Intent is keyed by request id.
type Intent struct {
	ID          uuid.UUID        `json:"id"`
	RequestID   ledger.RequestID `json:"requestId"`
	Owner       common.Address   `json:"owner"`
	MetadataURI string           `json:"metadataURI"`
	ExpiryTs    int64            `json:"expiryTs"`
	State       State            `json:"state"`
	TxHash      *common.Hash     `json:"txHash,omitempty"`
	TokenID     *ledger.TokenID  `json:"tokenId,omitempty"`
	ClaimedAt   time.Time        `json:"claimedAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	LastError   string           `json:"lastError,omitempty"`
}

// Store persists intents.
type Store interface {
	// Claim records intent if no intent exists for its request. It reports
	// whether this caller won the claim.
	Claim(ctx context.Context, intent Intent) (bool, error)
	Get(ctx context.Context, requestID ledger.RequestID) (*Intent, error)
	MarkSubmitted(ctx context.Context, requestID ledger.RequestID, tx common.Hash) error
	MarkSettled(ctx context.Context, requestID ledger.RequestID, tokenID ledger.TokenID) error
	// MarkFailed keeps the claim and records why the mint outcome is unknown.
	MarkFailed(ctx context.Context, requestID ledger.RequestID, reason string) error
	// Release drops the intent so the request may be claimed again.
	Release(ctx context.Context, requestID ledger.RequestID) error
	// Pending lists intents that are not yet settled.
	Pending(ctx context.Context) ([]Intent, error)
}
