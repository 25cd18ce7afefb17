// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the cover engine.
type Server struct {
	Addr          string
	JWTSigningKey string

	// EngineAccount is the collateral-token account that holds escrow.
	EngineAccount string

	// OracleAPIKeyHash is the bcrypt hash guarding POST /oracle/updates.
	// Empty disables the check (local development only).
	OracleAPIKeyHash string

	// PostgresDSN selects the postgres-backed stores when non-empty;
	// otherwise the engine runs on in-memory stores.
	PostgresDSN string

	Redis RedisConfig
	Kafka KafkaConfig
	Feed  FeedConfig

	RateLimitPerMinute int
}

// RedisConfig configures the optional indicator value cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional notification publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FeedConfig configures the optional oracle proof poller.
type FeedConfig struct {
	ProofURL string
	Schedule string

	// MerkleRoots is a comma-separated "round=hash" list of confirmed
	// attestation roots. Empty switches proof checking off, which is only
	// acceptable for local development.
	MerkleRoots string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("INDEXCOVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	engineAccount := os.Getenv("INDEXCOVER_ENGINE_ACCOUNT")
	if engineAccount == "" {
		engineAccount = "engine-escrow"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "indexcover.policy-events"
	}

	schedule := os.Getenv("ORACLE_FEED_SCHEDULE")
	if schedule == "" {
		schedule = "@every 5m"
	}

	return Server{
		Addr:             addr,
		JWTSigningKey:    jwtSigningKey,
		EngineAccount:    engineAccount,
		OracleAPIKeyHash: os.Getenv("ORACLE_API_KEY_HASH"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		Feed: FeedConfig{
			ProofURL:    os.Getenv("ORACLE_FEED_PROOF_URL"),
			Schedule:    schedule,
			MerkleRoots: os.Getenv("ORACLE_MERKLE_ROOTS"),
		},
		RateLimitPerMinute: envInt("INDEXCOVER_RATE_LIMIT_PER_MINUTE", 120),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
