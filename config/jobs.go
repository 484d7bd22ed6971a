package config

import (
	"strings"
	"time"
)

// RateLimitConfig controls the per-user fixed-window admission limiter.
type RateLimitConfig struct {
	// Requests is the number of submissions admitted per window.
	Requests int `env:"REQUESTS" envDefault:"3"`

	// Window is the fixed window length.
	Window time.Duration `env:"WINDOW" envDefault:"60s"`

	// KeyPrefix namespaces the Redis counters.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"rate_limit:"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (r *RateLimitConfig) Sanitize() {
	if r.Requests < 1 {
		r.Requests = 1
	}
	if r.Window < time.Second {
		r.Window = time.Second
	}
	if strings.TrimSpace(r.KeyPrefix) == "" {
		r.KeyPrefix = "rate_limit:"
	}
}

// JobsConfig controls listing, input validation, dispatch and event keys.
type JobsConfig struct {
	// PageSize is the fixed listing page size.
	PageSize int `env:"PAGE_SIZE" envDefault:"10"`

	// MaxInputLength caps the number of values a job may carry.
	MaxInputLength int `env:"MAX_INPUT_LENGTH" envDefault:"10000"`

	// QueueKey is the Redis list jobs are dispatched through.
	QueueKey string `env:"QUEUE_KEY" envDefault:"jobs:dispatch"`

	// EventsChannelPrefix is the pub/sub channel prefix for per-owner job events.
	EventsChannelPrefix string `env:"EVENTS_CHANNEL_PREFIX" envDefault:"jobs:events:"`
}

// Sanitize applies guardrails to jobs configuration values.
func (j *JobsConfig) Sanitize() {
	if j.PageSize < 1 {
		j.PageSize = 10
	}
	if j.PageSize > 100 {
		j.PageSize = 100
	}
	if j.MaxInputLength < 1 {
		j.MaxInputLength = 1
	}
	if strings.TrimSpace(j.QueueKey) == "" {
		j.QueueKey = "jobs:dispatch"
	}
	if strings.TrimSpace(j.EventsChannelPrefix) == "" {
		j.EventsChannelPrefix = "jobs:events:"
	}
}

// RetentionConfig controls the SUCCESS job soft-delete sweep.
type RetentionConfig struct {
	// Window is how long SUCCESS jobs are retained before cleanup soft-deletes them.
	Window time.Duration `env:"WINDOW" envDefault:"24h"`

	// AutoEnabled makes the reaper run cleanup on every sweep.
	AutoEnabled bool `env:"AUTO_ENABLED" envDefault:"false"`

	// BatchSize caps the rows touched by a single cleanup statement.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	if r.Window < time.Minute {
		r.Window = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
