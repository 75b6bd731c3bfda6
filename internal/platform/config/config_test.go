package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CREDPASS_ADDR", "CREDPASS_ENV", "IPFS_GATEWAY_URL", "CREDENTIAL_TTL",
		"ISSUANCE_POLL_INTERVAL", "CHECKPOINT_EVERY", "REDIS_URL", "LEDGER_RPC_URL",
		"IPFS_CACHE_BYTES",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "https://ipfs.io", cfg.IPFS.GatewayURL)
	assert.Equal(t, uint64(64<<20), cfg.IPFS.CacheBytes)
	assert.Equal(t, 8760*time.Hour, cfg.Issuance.CredentialTTL)
	assert.Equal(t, 5*time.Second, cfg.Issuance.PollInterval)
	assert.Equal(t, uint64(100), cfg.Projector.CheckpointEvery)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Empty(t, cfg.Redis.URL)
	assert.False(t, cfg.IssuanceEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CREDPASS_ADDR", ":9090")
	t.Setenv("CREDPASS_ENV", "production")
	t.Setenv("IPFS_GATEWAY_URL", "https://gw.example.org/")
	t.Setenv("CREDENTIAL_TTL", "720h")
	t.Setenv("ISSUANCE_POLL_INTERVAL", "1s")
	t.Setenv("CHECKPOINT_EVERY", "25")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("LEDGER_RPC_URL", "http://localhost:8545")
	t.Setenv("ISSUER_PRIVATE_KEY", "0x01")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://gw.example.org", cfg.IPFS.GatewayURL)
	assert.Equal(t, 720*time.Hour, cfg.Issuance.CredentialTTL)
	assert.Equal(t, time.Second, cfg.Issuance.PollInterval)
	assert.Equal(t, uint64(25), cfg.Projector.CheckpointEvery)
	assert.Equal(t, "localhost:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "credpass-projector", cfg.Kafka.GroupID)
	assert.True(t, cfg.IssuanceEnabled())
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CREDENTIAL_TTL", "forever")
	t.Setenv("ISSUANCE_POLL_INTERVAL", "-1s")
	t.Setenv("CHECKPOINT_EVERY", "-3")

	cfg := FromEnv()

	assert.Equal(t, CredentialTTL, cfg.Issuance.CredentialTTL)
	assert.Equal(t, IssuancePollInterval, cfg.Issuance.PollInterval)
	assert.Equal(t, CheckpointEvery, cfg.Projector.CheckpointEvery)
}
