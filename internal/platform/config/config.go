package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// EventsFile replays a JSON-lines event file instead of consuming Kafka.
	EventsFile string

	Ledger    LedgerConfig
	IPFS      IPFSConfig
	Issuance  IssuanceConfig
	Projector ProjectorConfig

	AdminJWTSigningKey string
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig locates the ledger event stream.
type KafkaConfig struct {
	Brokers string
	GroupID string
	Topic   string
}

// LedgerConfig locates the verification contract.
type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
}

// IPFSConfig locates content-addressed storage.
type IPFSConfig struct {
	GatewayURL string
	APIURL     string
	// CacheBytes bounds the gateway's fetch cache.
	CacheBytes uint64
}

// IssuanceConfig tunes the credential issuance bridge.
type IssuanceConfig struct {
	CredentialTTL time.Duration
	PollInterval  time.Duration
}

// ProjectorConfig tunes the event projector.
type ProjectorConfig struct {
	CheckpointEvery uint64
}

var (
	CredentialTTL        = 365 * 24 * time.Hour
	IssuancePollInterval = 5 * time.Second
	CheckpointEvery      = uint64(100)
)

// DefaultRedisConfig returns the pool settings used when only REDIS_URL is set.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	redisCfg := DefaultRedisConfig()
	redisCfg.URL = os.Getenv("REDIS_URL")

	return Server{
		Addr:        envOr("CREDPASS_ADDR", ":8080"),
		Environment: envOr("CREDPASS_ENV", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis:       redisCfg,
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			GroupID: envOr("KAFKA_GROUP_ID", "credpass-projector"),
			Topic:   envOr("LEDGER_EVENTS_TOPIC", "credpass.ledger.events"),
		},
		EventsFile: os.Getenv("LEDGER_EVENTS_FILE"),
		Ledger: LedgerConfig{
			RPCURL:          os.Getenv("LEDGER_RPC_URL"),
			ContractAddress: os.Getenv("LEDGER_CONTRACT_ADDRESS"),
			PrivateKey:      os.Getenv("ISSUER_PRIVATE_KEY"),
		},
		IPFS: IPFSConfig{
			GatewayURL: strings.TrimRight(envOr("IPFS_GATEWAY_URL", "https://ipfs.io"), "/"),
			APIURL:     os.Getenv("IPFS_API_URL"),
			CacheBytes: uintOr("IPFS_CACHE_BYTES", 64<<20),
		},
		Issuance: IssuanceConfig{
			CredentialTTL: durationOr("CREDENTIAL_TTL", CredentialTTL),
			PollInterval:  durationOr("ISSUANCE_POLL_INTERVAL", IssuancePollInterval),
		},
		Projector: ProjectorConfig{
			CheckpointEvery: uintOr("CHECKPOINT_EVERY", CheckpointEvery),
		},
		AdminJWTSigningKey: os.Getenv("ADMIN_JWT_SIGNING_KEY"),
	}
}

// IsProduction reports whether the process runs with production settings.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// IssuanceEnabled reports whether the bridge has a ledger to mint on.
func (s Server) IssuanceEnabled() bool {
	return s.Ledger.RPCURL != "" && s.Ledger.PrivateKey != ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// durationOr ignores unparsable or non-positive values.
func durationOr(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func uintOr(key string, fallback uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
