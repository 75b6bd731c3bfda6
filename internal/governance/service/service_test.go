package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credpass/internal/eligibility"
	ledger "credpass/internal/ledger/models"
	"credpass/internal/ledger/ports"
	"credpass/internal/ledger/ports/mocks"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

type staticView struct{ snap *models.Snapshot }

func (v staticView) View() *models.Snapshot { return v.snap }

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	client  *mocks.MockClient
	snap    *models.Snapshot
	storage *metadata.InMemory
	service *Service
	account common.Address
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.account = common.BigToAddress(big.NewInt(42))
	s.client.EXPECT().Account().Return(s.account).AnyTimes()

	s.snap = models.NewSnapshot()
	s.snap.Epochs[1] = &models.ElectionEpoch{ID: 1, Balances: map[common.Address]uint8{}}
	s.snap.Requests[1] = &models.VerificationRequest{ID: 1, ProjectID: "MITS", Epoch: 1}
	s.snap.Tallies[1] = models.NewVoteTally(1)
	s.snap.Requests[2] = &models.VerificationRequest{ID: 2, ProjectID: "Done", Epoch: 1, Finalized: true, Approved: true}

	view := staticView{snap: s.snap}
	s.storage = metadata.NewInMemory()
	s.service = New(s.client, view, eligibility.New(view),
		WithStorage(s.storage),
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("sends trimmed fields", func() {
		tx := ports.TxRef{Hash: common.HexToHash("0x01")}
		s.client.EXPECT().SubmitVerification(gomock.Any(), "MITS", "cid://abc").Return(tx, nil)

		got, err := s.service.Submit(s.ctx, SubmitRequest{ProjectID: "  MITS ", ProofURI: "cid://abc"})
		s.Require().NoError(err)
		s.Equal(tx, got)
	})

	s.Run("rejects invalid input without a ledger call", func() {
		_, err := s.service.Submit(s.ctx, SubmitRequest{ProjectID: " ", ProofURI: "cid://abc"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Submit(s.ctx, SubmitRequest{ProjectID: "MITS", ProofURI: "not a uri"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("wraps ledger failures", func() {
		s.client.EXPECT().SubmitVerification(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(ports.TxRef{}, errors.New("execution reverted"))
		_, err := s.service.Submit(s.ctx, SubmitRequest{ProjectID: "MITS", ProofURI: "cid://abc"})
		s.ErrorContains(err, "execution reverted")
	})
}

func (s *ServiceSuite) TestIneligibleVoteIsNeverSent() {
	s.snap.Epochs[1].Balances[s.account] = 0

	_, err := s.service.Vote(s.ctx, 1, true)
	s.True(errors.Is(err, sentinel.ErrIneligibleVoter))
	s.Zero(s.snap.Tallies[1].Yes)
}

func (s *ServiceSuite) TestEligibleVoteIsSent() {
	s.snap.Epochs[1].Balances[s.account] = 1
	s.client.EXPECT().Vote(gomock.Any(), ledger.RequestID(1), false).Return(ports.TxRef{}, nil)

	_, err := s.service.Vote(s.ctx, 1, false)
	s.NoError(err)
}

func (s *ServiceSuite) TestFinalize() {
	s.client.EXPECT().Finalize(gomock.Any(), ledger.RequestID(1)).Return(ports.TxRef{}, nil).Times(1)

	_, err := s.service.Finalize(s.ctx, 1)
	s.NoError(err)

	_, err = s.service.Finalize(s.ctx, 2)
	s.True(errors.Is(err, sentinel.ErrAlreadyFinalized))
	s.True(dErrors.IsInformational(err))

	_, err = s.service.Finalize(s.ctx, 3)
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownReference))
}

func (s *ServiceSuite) TestUploadProof() {
	uri, err := s.service.UploadProof(s.ctx, []byte("%PDF-1.7 accreditation"))
	s.Require().NoError(err)
	s.Contains(uri, metadata.Scheme)

	data, err := s.storage.Get(s.ctx, uri)
	s.Require().NoError(err)
	s.Equal("%PDF-1.7 accreditation", string(data))

	_, err = s.service.UploadProof(s.ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	noStorage := New(s.client, staticView{snap: s.snap}, eligibility.New(staticView{snap: s.snap}))
	_, err = noStorage.UploadProof(s.ctx, []byte("x"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
