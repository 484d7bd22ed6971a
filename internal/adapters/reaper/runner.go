// Package reaper provides adapters for running the job reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/data"
	"github.com/target/jobqueue/internal/observability/statsd"
	"github.com/target/jobqueue/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the reconciliation loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB         *sql.DB
	Dispatcher core.Dispatcher
	Config     config.ReaperConfig
	Retention  config.RetentionConfig
	Logger     *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.JobMaintenanceRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Dispatcher == nil {
		return errors.New("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	var retention *service.RetentionService
	if opts.Retention.AutoEnabled {
		cfg := opts.Retention
		cfg.Sanitize()
		var err error
		retention, err = service.NewRetentionService(service.RetentionServiceOptions{
			Repo:          repo,
			DefaultWindow: cfg.Window,
			BatchSize:     cfg.BatchSize,
			Logger:        opts.Logger,
			Metrics:       opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("wire retention service: %w", err)
		}
	}

	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:       repo,
		Dispatcher: opts.Dispatcher,
		Config:     opts.Config,
		Retention:  retention,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single reconciliation cycle.
func (r *Runner) RunOnce(ctx context.Context) (service.SweepResult, error) {
	return r.reaper.RunOnce(ctx)
}
