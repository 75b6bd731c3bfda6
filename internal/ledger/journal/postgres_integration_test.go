//go:build integration

package journal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"credpass/internal/ledger/journal"
	ledger "credpass/internal/ledger/models"
	"credpass/pkg/testutil"
	"credpass/pkg/testutil/containers"
)

type PostgresJournalSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	journal  *journal.Postgres
}

func TestPostgresJournalSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresJournalSuite))
}

func (s *PostgresJournalSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.journal = journal.NewPostgres(s.postgres.DB)
}

func (s *PostgresJournalSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresJournalSuite) appendAll(events []ledger.Event) {
	for _, ev := range events {
		s.Require().NoError(s.journal.Append(context.Background(), ev))
	}
}

func (s *PostgresJournalSuite) seqs(from uint64) []uint64 {
	var out []uint64
	err := s.journal.Range(context.Background(), from, func(ev ledger.Event) error {
		out = append(out, ev.Seq)
		return nil
	})
	s.Require().NoError(err)
	return out
}

func (s *PostgresJournalSuite) TestRoundTripsInSequenceOrder() {
	ctx := context.Background()
	events := testutil.NewStream(1700000000).Onboarding(1).Events()
	s.appendAll(events)

	var got []ledger.Event
	s.Require().NoError(s.journal.Range(ctx, 1, func(ev ledger.Event) error {
		got = append(got, ev)
		return nil
	}))
	s.Equal(events, got)

	head, err := s.journal.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(9), head)
}

func (s *PostgresJournalSuite) TestAppendIsIdempotentPerSequence() {
	events := testutil.NewStream(1700000000).Election(1, testutil.Accounts.VoterA).Events()
	s.appendAll(events)
	s.appendAll(events)

	s.Equal([]uint64{1, 2}, s.seqs(1))
}

func (s *PostgresJournalSuite) TestTruncateFrom() {
	ctx := context.Background()
	s.appendAll(testutil.NewStream(1700000000).Onboarding(1).Events())

	s.Require().NoError(s.journal.TruncateFrom(ctx, 6))
	s.Equal([]uint64{4, 5}, s.seqs(4))

	head, err := s.journal.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(5), head)

	s.Require().NoError(s.journal.TruncateFrom(ctx, 1))
	head, err = s.journal.Head(ctx)
	s.Require().NoError(err)
	s.Zero(head)
}
