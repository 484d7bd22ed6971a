package config

import "strings"

const defaultObservabilityName = "jobqueue"

// ObservabilityConfig groups configuration that controls metrics and tracing.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Tracing TracingConfig `envPrefix:"TRACING_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Tracing.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"jobqueue"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.Prefix = strings.TrimSpace(c.Prefix)
	if c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool    `env:"ENABLED"       envDefault:"false"`
	ServiceName  string  `env:"SERVICE_NAME"  envDefault:"jobqueue"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT"`
	OTLPInsecure bool    `env:"OTLP_INSECURE" envDefault:"false"`
	SampleRatio  float64 `env:"SAMPLE_RATIO"  envDefault:"0.1"`
}

// Sanitize clamps the sample ratio and fills the service name.
func (c *TracingConfig) Sanitize() {
	if c.SampleRatio < 0 {
		c.SampleRatio = 0
	}
	if c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	c.ServiceName = strings.TrimSpace(c.ServiceName)
	if c.ServiceName == "" {
		c.ServiceName = defaultObservabilityName
	}
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
}
