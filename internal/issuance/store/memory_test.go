package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	ledger "credpass/internal/ledger/models"
)

// IntentStoreSuite runs against every Store implementation.
type IntentStoreSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() Store
	store    Store
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, &IntentStoreSuite{newStore: func() Store { return NewInMemory() }})
}

func (s *IntentStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func intentFor(id ledger.RequestID) Intent {
	return Intent{
		ID:          uuid.New(),
		RequestID:   id,
		MetadataURI: "ipfs://bafkrei",
		State:       StateClaimed,
		ClaimedAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func (s *IntentStoreSuite) TestClaimOnce() {
	won, err := s.store.Claim(s.ctx, intentFor(1))
	s.Require().NoError(err)
	s.True(won)

	won, err = s.store.Claim(s.ctx, intentFor(1))
	s.Require().NoError(err)
	s.False(won)
}

func (s *IntentStoreSuite) TestConcurrentClaimsHaveOneWinner() {
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if won, _ := s.store.Claim(s.ctx, intentFor(7)); won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *IntentStoreSuite) TestLifecycle() {
	_, err := s.store.Claim(s.ctx, intentFor(2))
	s.Require().NoError(err)

	tx := common.HexToHash("0x01")
	s.Require().NoError(s.store.MarkSubmitted(s.ctx, 2, tx))
	got, err := s.store.Get(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(StateSubmitted, got.State)
	s.Equal(tx, *got.TxHash)

	pending, err := s.store.Pending(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)

	s.Require().NoError(s.store.MarkSettled(s.ctx, 2, 11))
	pending, err = s.store.Pending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	got, err = s.store.Get(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(ledger.TokenID(11), *got.TokenID)
}

func (s *IntentStoreSuite) TestReleaseAllowsReclaim() {
	_, err := s.store.Claim(s.ctx, intentFor(3))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(s.ctx, 3))

	won, err := s.store.Claim(s.ctx, intentFor(3))
	s.Require().NoError(err)
	s.True(won)
}

func (s *IntentStoreSuite) TestMissingIntent() {
	_, err := s.store.Get(s.ctx, 9)
	s.True(errors.Is(err, ErrNotFound))
	s.True(errors.Is(s.store.Release(s.ctx, 9), ErrNotFound))
	s.True(errors.Is(s.store.MarkSubmitted(s.ctx, 9, common.Hash{}), ErrNotFound))
}

func (s *IntentStoreSuite) TestFailedIntentKeepsClaim() {
	_, err := s.store.Claim(s.ctx, intentFor(4))
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkFailed(s.ctx, 4, "context deadline exceeded"))

	got, err := s.store.Get(s.ctx, 4)
	s.Require().NoError(err)
	s.Equal(StateFailed, got.State)
	s.Equal("context deadline exceeded", got.LastError)

	won, err := s.store.Claim(s.ctx, intentFor(4))
	s.Require().NoError(err)
	s.False(won)

	pending, err := s.store.Pending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(StateFailed, pending[0].State)

	s.True(errors.Is(s.store.MarkFailed(s.ctx, 9, "x"), ErrNotFound))
}
