//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"credpass/pkg/testutil/containers"
)

func TestPostgresIntentStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &IntentStoreSuite{newStore: func() Store {
		if err := pg.TruncateTables(context.Background(), "issuance_intents"); err != nil {
			t.Fatalf("truncate intents: %v", err)
		}
		return NewPostgres(pg.DB)
	}})
}

func TestPostgresIntentSurvivesReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateTables(ctx, "issuance_intents"))

	first := NewPostgres(pg.DB)
	won, err := first.Claim(ctx, intentFor(5))
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, first.MarkFailed(ctx, 5, "send timed out"))

	reopened := NewPostgres(pg.DB)
	got, err := reopened.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, StateFailed, got.State)

	won, err = reopened.Claim(ctx, intentFor(5))
	require.NoError(t, err)
	require.False(t, won)
}
