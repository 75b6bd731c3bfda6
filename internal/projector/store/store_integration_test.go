//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"credpass/internal/projector/store"
	"credpass/pkg/testutil/containers"
)

// CheckpointStoreSuite runs against the durable checkpoint stores.
type CheckpointStoreSuite struct {
	suite.Suite
	reset    func()
	newStore func(name string) store.Store
}

func TestPostgresCheckpointSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &CheckpointStoreSuite{
		reset: func() {
			if err := pg.TruncateAll(context.Background()); err != nil {
				t.Fatalf("truncate: %v", err)
			}
		},
		newStore: func(name string) store.Store { return store.NewPostgres(pg.DB, name) },
	})
}

func TestRedisCheckpointSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &CheckpointStoreSuite{
		reset: func() {
			if err := rc.Flush(context.Background()); err != nil {
				t.Fatalf("flush: %v", err)
			}
		},
		newStore: func(name string) store.Store { return store.NewRedis(rc.Client, name) },
	})
}

func (s *CheckpointStoreSuite) SetupTest() {
	s.reset()
}

func (s *CheckpointStoreSuite) TestSaveLoadOverwrite() {
	ctx := context.Background()
	st := s.newStore("ledger")

	_, err := st.Load(ctx)
	s.True(errors.Is(err, store.ErrNotFound))

	s.Require().NoError(st.Save(ctx, store.Checkpoint{Cursor: 5, Snapshot: []byte(`{"cursor":5}`)}))
	s.Require().NoError(st.Save(ctx, store.Checkpoint{Cursor: 9, Snapshot: []byte(`{"cursor":9}`)}))

	cp, err := st.Load(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(9), cp.Cursor)
	s.Equal(`{"cursor":9}`, string(cp.Snapshot))
}

func (s *CheckpointStoreSuite) TestInvalidateHidesCheckpoint() {
	ctx := context.Background()
	st := s.newStore("ledger")
	s.Require().NoError(st.Save(ctx, store.Checkpoint{Cursor: 3, Snapshot: []byte("{}")}))

	s.Require().NoError(st.Invalidate(ctx))
	_, err := st.Load(ctx)
	s.True(errors.Is(err, store.ErrNotFound))

	s.Require().NoError(st.Save(ctx, store.Checkpoint{Cursor: 4, Snapshot: []byte("{}")}))
	cp, err := st.Load(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(4), cp.Cursor)
}

func (s *CheckpointStoreSuite) TestProjectionsAreIsolated() {
	ctx := context.Background()
	s.Require().NoError(s.newStore("a").Save(ctx, store.Checkpoint{Cursor: 1, Snapshot: []byte("{}")}))

	_, err := s.newStore("b").Load(ctx)
	s.True(errors.Is(err, store.ErrNotFound))
}
