package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credpass/internal/issuance/store"
	"credpass/internal/ledger/journal"
	ledger "credpass/internal/ledger/models"
	"credpass/internal/ledger/ports"
	"credpass/internal/ledger/ports/mocks"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	projector "credpass/internal/projector/service"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
	"credpass/pkg/testutil"
)

var (
	proposer  = common.BigToAddress(big.NewInt(0xa1))
	voter     = common.BigToAddress(big.NewInt(0xb1))
	finalTime = int64(1700000000)
	ttl       = 24 * time.Hour
)

type BridgeSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	minter    *mocks.MockMinter
	storage   *metadata.InMemory
	intents   *store.InMemory
	projector *projector.Projector
	bridge    *Bridge
	seq       uint64
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

func (s *BridgeSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.minter = mocks.NewMockMinter(s.ctrl)
	s.storage = metadata.NewInMemory()
	s.intents = store.NewInMemory()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s.projector = projector.New(journal.NewInMemory(), projector.WithLogger(logger))
	s.bridge = New(s.projector, s.minter, s.storage, s.intents,
		WithCredentialTTL(ttl),
		WithPollInterval(time.Hour),
		WithLogger(logger),
	)
	s.seq = 0
}

func (s *BridgeSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *BridgeSuite) apply(payload ledger.Payload) {
	s.seq++
	ev := ledger.NewEvent(s.seq, payload)
	ev.Timestamp = finalTime
	s.Require().NoError(s.projector.Apply(s.ctx, ev))
}

func approved(id ledger.RequestID) models.VerificationRequest {
	return models.VerificationRequest{
		ID:          id,
		ProjectID:   "MITS",
		Proposer:    proposer,
		ProofURI:    "cid://abc",
		Epoch:       1,
		Finalized:   true,
		Approved:    true,
		FinalizedAt: finalTime,
	}
}

func (s *BridgeSuite) expectedURI(req models.VerificationRequest) string {
	uri, err := metadata.OnboardingURI(req)
	s.Require().NoError(err)
	return uri
}

func (s *BridgeSuite) TestOnFinalizedMintsOnce() {
	req := approved(1)
	uri := s.expectedURI(req)
	tx := ports.TxRef{Hash: common.HexToHash("0xfeed")}

	s.minter.EXPECT().
		MintCredential(gomock.Any(), proposer, uri, finalTime+int64(ttl/time.Second)).
		Return(tx, nil).
		Times(1)

	intent, err := s.bridge.OnFinalized(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(store.StateSubmitted, intent.State)
	s.Equal(tx.Hash, *intent.TxHash)
	s.Equal(1, s.storage.Len())

	doc, err := s.storage.Get(s.ctx, uri)
	s.Require().NoError(err)
	decoded, err := metadata.DecodeDocument(doc)
	s.Require().NoError(err)
	s.Equal("MITS", decoded.Name)

	for range 3 {
		again, err := s.bridge.OnFinalized(s.ctx, req)
		s.True(errors.Is(err, sentinel.ErrIssuanceDuplicate))
		s.True(dErrors.IsInformational(err))
		s.Equal(intent.ID, again.ID)
	}
}

func (s *BridgeSuite) TestConcurrentFinalizeNotificationsMintOnce() {
	s.minter.EXPECT().
		MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
		Return(ports.TxRef{}, nil).
		Times(1)

	result := testutil.RunConcurrent(16, func(int) error {
		_, err := s.bridge.OnFinalized(s.ctx, approved(2))
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(15), result.Duplicates)
}

func (s *BridgeSuite) TestMintedRequestIsDuplicate() {
	req := approved(3)
	token := ledger.TokenID(4)
	req.MintedCredentialID = &token

	_, err := s.bridge.OnFinalized(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeIssuanceDuplicate))
	s.Zero(s.storage.Len())
}

func (s *BridgeSuite) TestRejectedRequestIsNotIssued() {
	req := approved(5)
	req.Approved = false
	_, err := s.bridge.OnFinalized(s.ctx, req)
	s.True(errors.Is(err, sentinel.ErrNotApproved))

	req = approved(5)
	req.Finalized = false
	_, err = s.bridge.OnFinalized(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeNotApproved))
}

func (s *BridgeSuite) finalizeOne(id ledger.RequestID) string {
	s.apply(ledger.Submitted{ID: id, ProjectID: "MITS", Proposer: proposer, ProofURI: "cid://abc", Epoch: 1})
	s.apply(ledger.Finalized{RequestID: id, Approved: true})
	return s.expectedURI(*s.projector.View().Requests[id])
}

func (s *BridgeSuite) TestAmbiguousMintFailureIsNeverRetried() {
	uri := s.finalizeOne(6)
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, uri, gomock.Any()).
		Return(ports.TxRef{}, context.DeadlineExceeded).
		Times(1)

	_, err := s.bridge.Reconcile(s.ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)

	for range 2 {
		issued, err := s.bridge.Reconcile(s.ctx)
		s.Require().NoError(err)
		s.Zero(issued)
	}
	intent, err := s.bridge.Intent(s.ctx, 6)
	s.Require().NoError(err)
	s.Equal(store.StateFailed, intent.State)
	s.Contains(intent.LastError, "deadline exceeded")

	_, err = s.bridge.OnFinalized(s.ctx, *s.projector.View().Requests[6])
	s.True(dErrors.HasCode(err, dErrors.CodeIssuanceDuplicate))

	// The timed-out transaction landed after all.
	s.apply(ledger.CredentialMinted{TokenID: 3, To: proposer, URI: uri, ExpiryTs: finalTime + 86400})
	_, err = s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)

	intent, err = s.bridge.Intent(s.ctx, 6)
	s.Require().NoError(err)
	s.Equal(store.StateSettled, intent.State)
	s.Len(s.projector.View().Credentials, 1)
}

func (s *BridgeSuite) TestUnsentMintFailureIsRetried() {
	s.finalizeOne(7)
	gomock.InOrder(
		s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
			Return(ports.TxRef{}, fmt.Errorf("estimate gas: %w", ports.ErrNotBroadcast)),
		s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
			Return(ports.TxRef{Hash: common.HexToHash("0x02")}, nil),
	)

	_, err := s.bridge.Reconcile(s.ctx)
	s.Require().ErrorIs(err, ports.ErrNotBroadcast)
	_, err = s.intents.Get(s.ctx, 7)
	s.True(errors.Is(err, store.ErrNotFound))

	issued, err := s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, issued)
	intent, err := s.bridge.Intent(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(store.StateSubmitted, intent.State)
}

func (s *BridgeSuite) TestReleaseOfFailedMintReissues() {
	s.finalizeOne(12)
	gomock.InOrder(
		s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
			Return(ports.TxRef{}, errors.New("connection reset by peer")),
		s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
			Return(ports.TxRef{Hash: common.HexToHash("0x03")}, nil),
	)

	_, err := s.bridge.Reconcile(s.ctx)
	s.Require().Error(err)
	issued, err := s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Zero(issued)

	s.Require().NoError(s.bridge.Release(s.ctx, 12))
	issued, err = s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, issued)
}

func (s *BridgeSuite) TestRestartedBridgeDoesNotRemint() {
	s.finalizeOne(13)
	s.finalizeOne(14)
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ common.Address, uri string, _ int64) (ports.TxRef, error) {
			if uri == s.expectedURI(*s.projector.View().Requests[14]) {
				return ports.TxRef{}, context.DeadlineExceeded
			}
			return ports.TxRef{Hash: common.HexToHash("0x04")}, nil
		}).
		Times(2)

	_, err := s.bridge.Reconcile(s.ctx)
	s.Require().Error(err)

	// A new process over the same intent store with a minter that must not be called.
	restarted := New(s.projector, mocks.NewMockMinter(s.ctrl), s.storage, s.intents, WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	issued, err := restarted.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Zero(issued)

	pending, err := s.intents.Pending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(store.StateSubmitted, pending[0].State)
	s.Equal(store.StateFailed, pending[1].State)
}

func (s *BridgeSuite) TestZeroTTLNeverExpires() {
	bridge := New(s.projector, s.minter, s.storage, s.intents, WithCredentialTTL(0))
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), int64(0)).Return(ports.TxRef{}, nil)

	_, err := bridge.OnFinalized(s.ctx, approved(8))
	s.Require().NoError(err)
}

type unavailableStorage struct{}

func (unavailableStorage) Put(context.Context, []byte) (string, error) {
	return "", metadata.Unavailable("", errors.New("gateway down"))
}

func (unavailableStorage) Get(_ context.Context, uri string) ([]byte, error) {
	return nil, metadata.Unavailable(uri, nil)
}

func (s *BridgeSuite) TestMetadataOutageLeavesNoClaim() {
	bridge := New(s.projector, s.minter, unavailableStorage{}, s.intents)

	_, err := bridge.OnFinalized(s.ctx, approved(9))
	s.True(errors.Is(err, sentinel.ErrUnavailable))
	_, err = s.intents.Get(s.ctx, 9)
	s.True(errors.Is(err, store.ErrNotFound))
}

type wrongStorage struct{ *metadata.InMemory }

func (w *wrongStorage) Put(ctx context.Context, _ []byte) (string, error) {
	return w.InMemory.Put(ctx, []byte("something else"))
}

func (s *BridgeSuite) TestMetadataAddressMismatchIsRejected() {
	bridge := New(s.projector, s.minter, &wrongStorage{InMemory: metadata.NewInMemory()}, s.intents)

	_, err := bridge.OnFinalized(s.ctx, approved(10))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *BridgeSuite) TestReconcileIssuesAndSettles() {
	s.apply(ledger.Submitted{ID: 1, ProjectID: "MITS", Proposer: proposer, ProofURI: "cid://abc", Epoch: 1})
	s.apply(ledger.Voted{RequestID: 1, Voter: voter, Choice: true})
	s.apply(ledger.Submitted{ID: 2, ProjectID: "Rejected U", Proposer: proposer, ProofURI: "cid://def", Epoch: 1})
	s.apply(ledger.Finalized{RequestID: 1, Approved: true})
	s.apply(ledger.Finalized{RequestID: 2, Approved: false})

	uri := s.expectedURI(*s.projector.View().Requests[1])
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, uri, gomock.Any()).Return(ports.TxRef{}, nil).Times(1)

	issued, err := s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, issued)

	issued, err = s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Zero(issued)

	s.apply(ledger.CredentialMinted{TokenID: 0, To: proposer, URI: uri, ExpiryTs: finalTime + 86400})
	_, err = s.bridge.Reconcile(s.ctx)
	s.Require().NoError(err)

	intent, err := s.bridge.Intent(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(store.StateSettled, intent.State)
	s.Equal(ledger.TokenID(0), *intent.TokenID)

	s.True(dErrors.HasCode(s.bridge.Release(s.ctx, 1), dErrors.CodeConflict))
}

func (s *BridgeSuite) TestReleaseAllowsRetry() {
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).Return(ports.TxRef{}, nil).Times(2)

	_, err := s.bridge.OnFinalized(s.ctx, approved(11))
	s.Require().NoError(err)
	s.Require().NoError(s.bridge.Release(s.ctx, 11))
	_, err = s.bridge.OnFinalized(s.ctx, approved(11))
	s.Require().NoError(err)

	s.True(dErrors.HasCode(s.bridge.Release(s.ctx, 99), dErrors.CodeNotFound))
}

func (s *BridgeSuite) TestWorkerIssuesOnSnapshotChange() {
	minted := make(chan struct{})
	s.minter.EXPECT().MintCredential(gomock.Any(), proposer, gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, common.Address, string, int64) (ports.TxRef, error) {
			close(minted)
			return ports.TxRef{}, nil
		}).
		Times(1)

	s.bridge.Start()
	s.apply(ledger.Submitted{ID: 1, ProjectID: "MITS", Proposer: proposer, ProofURI: "cid://abc", Epoch: 1})
	s.apply(ledger.Finalized{RequestID: 1, Approved: true})

	select {
	case <-minted:
	case <-time.After(5 * time.Second):
		s.Fail("worker did not issue the credential")
	}

	stopCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(s.bridge.Stop(stopCtx))
}
