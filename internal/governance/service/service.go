// Package service is the intent side of governance: it relays submissions,
// votes and finalizations to the ledger after checking them against the
// projected snapshot. The checks only save clients a doomed transaction; the
// ledger remains the authority and its events are the only confirmation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/ledger/ports"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
	"credpass/pkg/validation"
)

// ViewSource yields the latest published snapshot.
type ViewSource interface {
	View() *models.Snapshot
}

// VoteChecker pre-checks a vote against the snapshot.
type VoteChecker interface {
	CheckVote(requestID ledger.RequestID, account common.Address) error
}

// SubmitRequest proposes an institution for verification.
type SubmitRequest struct {
	ProjectID string `json:"projectId" validate:"required,notblank,max=128"`
	ProofURI  string `json:"proofURI" validate:"required,content_uri,max=2048"`
}

// Service relays governance intents to the ledger.
type Service struct {
	ledger  ports.Client
	views   ViewSource
	votes   VoteChecker
	storage metadata.Storage
	logger  *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithStorage enables proof uploads.
func WithStorage(storage metadata.Storage) Option {
	return func(s *Service) {
		s.storage = storage
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a governance Service.
func New(client ports.Client, views ViewSource, votes VoteChecker, opts ...Option) *Service {
	s := &Service{
		ledger: client,
		views:  views,
		votes:  votes,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends submitVerification for a project and its proof.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (ports.TxRef, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.ProofURI = strings.TrimSpace(req.ProofURI)
	if err := validation.Validate(req); err != nil {
		return ports.TxRef{}, err
	}
	tx, err := s.ledger.SubmitVerification(ctx, req.ProjectID, req.ProofURI)
	if err != nil {
		return ports.TxRef{}, fmt.Errorf("submit verification for %q: %w", req.ProjectID, err)
	}
	s.logger.InfoContext(ctx, "verification submitted",
		"project_id", req.ProjectID, "proof_uri", req.ProofURI, "tx_hash", tx.Hash.Hex())
	return tx, nil
}

// Vote sends a vote from the client's account. A vote the mirror already
// knows the ledger would reject (ineligible, repeated, finalized) is refused
// with the matching error and never sent.
func (s *Service) Vote(ctx context.Context, requestID ledger.RequestID, approve bool) (ports.TxRef, error) {
	account := s.ledger.Account()
	if err := s.votes.CheckVote(requestID, account); err != nil {
		s.logger.InfoContext(ctx, "vote refused before submission",
			"request_id", requestID, "voter", account.Hex(), "code", dErrors.CodeOf(err))
		return ports.TxRef{}, err
	}
	tx, err := s.ledger.Vote(ctx, requestID, approve)
	if err != nil {
		return ports.TxRef{}, fmt.Errorf("vote on request %s: %w", requestID, err)
	}
	s.logger.InfoContext(ctx, "vote submitted",
		"request_id", requestID, "voter", account.Hex(), "approve", approve, "tx_hash", tx.Hash.Hex())
	return tx, nil
}

// Finalize asks the ledger to close voting on a request. Finalizing an
// already finalized request is an already_finalized no-op.
func (s *Service) Finalize(ctx context.Context, requestID ledger.RequestID) (ports.TxRef, error) {
	req, ok := s.views.View().Requests[requestID]
	if !ok {
		return ports.TxRef{}, dErrors.Tag(sentinel.ErrUnknownReference, dErrors.CodeUnknownReference,
			fmt.Sprintf("request %s not found", requestID))
	}
	if req.Finalized {
		return ports.TxRef{}, dErrors.Tag(sentinel.ErrAlreadyFinalized, dErrors.CodeAlreadyFinalized,
			fmt.Sprintf("request %s already finalized", requestID))
	}
	tx, err := s.ledger.Finalize(ctx, requestID)
	if err != nil {
		return ports.TxRef{}, fmt.Errorf("finalize request %s: %w", requestID, err)
	}
	s.logger.InfoContext(ctx, "finalize submitted", "request_id", requestID, "tx_hash", tx.Hash.Hex())
	return tx, nil
}

// UploadProof stores a proof document and returns its content URI for Submit.
func (s *Service) UploadProof(ctx context.Context, data []byte) (string, error) {
	if s.storage == nil {
		return "", metadata.Unavailable("", fmt.Errorf("no content storage configured"))
	}
	if len(data) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "proof must not be empty")
	}
	if err := validation.CheckSize("proof", len(data), validation.MaxProofSize); err != nil {
		return "", err
	}
	uri, err := s.storage.Put(ctx, data)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "proof uploaded", "uri", uri, "bytes", len(data))
	return uri, nil
}
