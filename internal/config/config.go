// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// CooldownDuration is the gap between round creation and its start.
	CooldownDuration time.Duration `koanf:"cooldown_duration"`

	// RoundDuration is the length of the active window.
	RoundDuration time.Duration `koanf:"round_duration"`

	// QueueSize bounds the number of taps waiting in the serializer.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount bounds how many rounds are scored in parallel.
	WorkerCount int `koanf:"worker_count"`

	// JobTimeout caps a single scoring job.
	JobTimeout time.Duration `koanf:"job_timeout"`

	// DedupeSize sets the size of the idempotency-key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// SubscriberBuffer is the per-subscriber backlog before it is dropped.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	JWTSecret  string        `koanf:"jwt_secret"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost"`

	// StoreDriver selects the round/tap store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// NATSURL enables cross-instance broadcasts when set.
	NATSURL           string `koanf:"nats_url"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	PageSizeDefault int `koanf:"page_size_default"`
	PageSizeMin     int `koanf:"page_size_min"`
	PageSizeMax     int `koanf:"page_size_max"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		CooldownDuration:  30 * time.Second,
		RoundDuration:     60 * time.Second,
		QueueSize:         100_000,
		WorkerCount:       runtime.NumCPU() * 4,
		JobTimeout:        5 * time.Second,
		DedupeSize:        50_000,
		SubscriberBuffer:  256,
		JWTSecret:         "fluffy cat",
		TokenTTL:          24 * time.Hour,
		BcryptCost:        10,
		StoreDriver:       DriverMemory,
		NATSSubjectPrefix: "clicker.rounds",
		PageSizeDefault:   10,
		PageSizeMin:       2,
		PageSizeMax:       25,
	}
}
