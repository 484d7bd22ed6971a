package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication and token configuration
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - jobs.go: Admission, listing, dispatch and retention configuration
//   - services.go: Service mode, worker and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Job admission and lifecycle configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Jobs      JobsConfig      `envPrefix:"JOBS_"`
	Retention RetentionConfig `envPrefix:"RETENTION_"`

	// Background service configuration
	Worker WorkerConfig `envPrefix:"WORKER_"`
	Reaper ReaperConfig `envPrefix:"REAPER_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Postgres.Sanitize()
	c.Auth.Sanitize()

	c.RateLimit.Sanitize()
	c.Jobs.Sanitize()
	c.Retention.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the job worker pool is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.isEnabled(ServiceModeWorker)
}

// IsReaperEnabled returns true if the reconciliation reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
