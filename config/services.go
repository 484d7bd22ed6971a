package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the job executor pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the stale job reconciler and scheduled retention.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains job executor pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// SimulatedCost is an artificial delay applied before each computation.
	SimulatedCost time.Duration `env:"SIMULATED_COST" envDefault:"2s"`

	// PollTimeout bounds each blocking dequeue so shutdown is observed promptly.
	PollTimeout time.Duration `env:"POLL_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Concurrency > 256 {
		w.Concurrency = 256
	}
	if w.SimulatedCost < 0 {
		w.SimulatedCost = 0
	}
	if w.PollTimeout < time.Second {
		w.PollTimeout = time.Second
	}
}

// ReaperConfig contains reconciliation service configuration.
type ReaperConfig struct {
	// Interval is how often the reaper sweeps for stale jobs.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`

	// PendingGrace is how long a job may stay PENDING before it is re-dispatched.
	PendingGrace time.Duration `env:"PENDING_GRACE" envDefault:"5m"`

	// BatchSize caps the number of jobs re-dispatched per sweep.
	BatchSize int `env:"BATCH_SIZE" envDefault:"100"`

	// RedispatchRPS paces re-dispatch so a large backlog does not flood the queue.
	RedispatchRPS float64 `env:"REDISPATCH_RPS" envDefault:"50"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.PendingGrace < 30*time.Second {
		r.PendingGrace = 30 * time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
	if r.RedispatchRPS <= 0 {
		r.RedispatchRPS = 50
	}
}
