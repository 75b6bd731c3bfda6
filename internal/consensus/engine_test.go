package consensus

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"credpass/internal/projector/models"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = New()
}

func tally(yes, no int) *models.VoteTally {
	t := models.NewVoteTally(1)
	for i := 0; i < yes; i++ {
		t = t.WithVote(common.BigToAddress(big.NewInt(int64(100+i))), true)
	}
	for i := 0; i < no; i++ {
		t = t.WithVote(common.BigToAddress(big.NewInt(int64(200+i))), false)
	}
	return t
}

func (s *EngineSuite) TestDecide() {
	s.Run("strict majority approves", func() {
		s.True(s.engine.Decide(tally(2, 1)))
	})
	s.Run("tie rejects", func() {
		s.False(s.engine.Decide(tally(1, 1)))
	})
	s.Run("no votes rejects", func() {
		s.False(s.engine.Decide(tally(0, 0)))
		s.False(s.engine.Decide(nil))
	})
	s.Run("single yes approves without quorum", func() {
		s.True(s.engine.Decide(tally(1, 0)))
	})
	s.Run("min votes gates the mirror", func() {
		strict := New(WithMinVotes(3))
		s.False(strict.Decide(tally(2, 0)))
		s.True(strict.Decide(tally(2, 1)))
	})
}

func (s *EngineSuite) TestFinalizeIsOneShot() {
	req := models.VerificationRequest{ID: 1, ProjectID: "MITS"}
	s.Equal(OutcomePending, s.engine.Outcome(req))

	final, err := s.engine.Finalize(req, tally(2, 1))
	s.Require().NoError(err)
	s.True(final.Finalized)
	s.True(final.Approved)
	s.Equal(OutcomeApproved, s.engine.Outcome(final))
	s.False(req.Finalized, "input must not be mutated")

	again, err := s.engine.Finalize(final, tally(0, 5))
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrAlreadyFinalized))
	s.True(dErrors.IsInformational(err))
	s.Equal(final, again)
}

func (s *EngineSuite) TestFinalizeRejected() {
	final, err := s.engine.Finalize(models.VerificationRequest{ID: 2}, tally(1, 2))
	s.Require().NoError(err)
	s.True(final.Finalized)
	s.False(final.Approved)
	s.Equal(OutcomeRejected, s.engine.Outcome(final))
}
