package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentStoreRequiresDurableBackend(t *testing.T) {
	intents, err := intentStore(&infra{})
	require.Error(t, err)
	assert.Nil(t, intents)
	assert.Contains(t, err.Error(), "DATABASE_URL or REDIS_URL")
}
