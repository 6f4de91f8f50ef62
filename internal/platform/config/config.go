// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Ledger   Ledger
	Audit    Audit
	Auth     Auth
}

type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Postgres struct {
	// URL is empty when postgres is not configured; stores fall back to the
	// in-memory implementations.
	URL string
}

type Redis struct {
	// URL is empty when redis is not configured; resolution runs uncached.
	URL      string
	PoolSize int
	CacheTTL time.Duration
}

type Ledger struct {
	GatewayURL   string
	FriendbotURL string
	// SubmitTimeout bounds the wait for transfer confirmation. Expiry is
	// surfaced as an indeterminate outcome, never a failure.
	SubmitTimeout time.Duration
	HandleSuffix  string
}

type Audit struct {
	// KafkaBrokers is empty when audit events stay in-process.
	KafkaBrokers string
	KafkaTopic   string
}

type Auth struct {
	JWTSigningKey string
}

// FromEnv reads configuration from the environment. Missing optional values
// get development defaults; a missing signing key is an error because tokens
// signed with a guessable default are worse than no auth at all.
func FromEnv() (Config, error) {
	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY is required")
	}

	cfg := Config{
		Server: Server{
			Addr:            envOr("LUMENPAY_ADDR", ":8080"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Postgres: Postgres{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Redis: Redis{
			URL:      os.Getenv("REDIS_URL"),
			PoolSize: envInt("REDIS_POOL_SIZE", 10),
			CacheTTL: envDuration("RESOLVE_CACHE_TTL", 5*time.Minute),
		},
		Ledger: Ledger{
			GatewayURL:    envOr("LEDGER_GATEWAY_URL", "https://horizon-testnet.stellar.org"),
			FriendbotURL:  envOr("LEDGER_FRIENDBOT_URL", "https://friendbot.stellar.org"),
			SubmitTimeout: envDuration("LEDGER_SUBMIT_TIMEOUT", 30*time.Second),
			HandleSuffix:  envOr("HANDLE_SUFFIX", "@lumen"),
		},
		Audit: Audit{
			KafkaBrokers: os.Getenv("AUDIT_KAFKA_BROKERS"),
			KafkaTopic:   envOr("AUDIT_KAFKA_TOPIC", "lumenpay.audit"),
		},
		Auth: Auth{
			JWTSigningKey: key,
		},
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
