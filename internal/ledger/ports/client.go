// Package ports declares the call interface into the ledger. Every call is a
// possibly-failing remote operation; a returned TxRef only means the ledger
// accepted the transaction for inclusion. Success is confirmed solely by the
// corresponding event arriving on the stream.
package ports

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Minter,Client

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"credpass/internal/ledger/models"
)

// ErrNotBroadcast marks a call failure that happened before the transaction
// was handed to the ledger. Any other error leaves the outcome unknown.
var ErrNotBroadcast = errors.New("transaction was not broadcast")

// TxRef identifies a submitted ledger transaction.
type TxRef struct {
	Hash common.Hash
}

// Minter issues credential mint intents.
type Minter interface {
	MintCredential(ctx context.Context, to common.Address, metadataURI string, expiryTs int64) (TxRef, error)
}

// Client is the full ledger call surface.
type Client interface {
	Minter

	// Account is the identity the client's transactions are sent from.
	Account() common.Address

	SubmitVerification(ctx context.Context, projectID, proofURI string) (TxRef, error)
	Vote(ctx context.Context, requestID models.RequestID, approve bool) (TxRef, error)
	Finalize(ctx context.Context, requestID models.RequestID) (TxRef, error)
}
