package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "medgate/pkg/platform/strings"
)

// Config captures process-level configuration. Built from environment
// variables so main stays lean; every value has a dev default.
type Config struct {
	Addr string

	// WorkDir holds the per-identifier raw record files.
	WorkDir string

	// AuthorityURL is the external verification authority base URL.
	AuthorityURL string

	// SolveTimeout bounds how long a challenge waits for the operator.
	SolveTimeout time.Duration

	// MismatchGate requires an upstream identity-mismatch flag per record.
	MismatchGate bool

	// OperatorKeyHash is the bcrypt hash of the operator API key; empty
	// disables API authentication (dev only).
	OperatorKeyHash string

	RedisURL string

	// PostgresDSN enables the audit archive when set.
	PostgresDSN string

	// KafkaBrokers enables the audit stream when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("MEDGATE_ADDR", ":8080"),
		WorkDir:         envOr("MEDGATE_WORK_DIR", "work"),
		AuthorityURL:    envOr("MEDGATE_AUTHORITY_URL", "https://es.pfrf.ru"),
		SolveTimeout:    envDurationOr("MEDGATE_SOLVE_TIMEOUT", 2*time.Minute),
		MismatchGate:    envBoolOr("MEDGATE_MISMATCH_GATE", true),
		OperatorKeyHash: os.Getenv("MEDGATE_OPERATOR_KEY_HASH"),
		RedisURL:        os.Getenv("MEDGATE_REDIS_URL"),
		PostgresDSN:     os.Getenv("MEDGATE_POSTGRES_DSN"),
		KafkaTopic:      envOr("MEDGATE_KAFKA_TOPIC", "medgate.audit"),
	}
	if brokers := os.Getenv("MEDGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = platformstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
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
