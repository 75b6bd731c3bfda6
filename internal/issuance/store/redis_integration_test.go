//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"credpass/pkg/testutil/containers"
)

func TestRedisIntentStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.GetManager().GetRedis(t)
	suite.Run(t, &IntentStoreSuite{newStore: func() Store {
		if err := redis.Flush(context.Background()); err != nil {
			t.Fatalf("flush redis: %v", err)
		}
		return NewRedis(redis.Client)
	}})
}
