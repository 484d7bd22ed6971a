package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/adapters/jobrunner"
	"github.com/target/jobqueue/internal/adapters/reaper"
	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/observability/statsd"
)

// WorkerConfig contains configuration for the job worker pool.
type WorkerConfig struct {
	Queue    core.DispatchConsumer
	Executor jobrunner.Executor
	Config   config.WorkerConfig
	Logger   *slog.Logger
}

// RunWorker starts the worker pool and blocks until ctx is canceled or a worker fails.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Queue:       cfg.Queue,
		Executor:    cfg.Executor,
		Logger:      cfg.Logger,
		Concurrency: cfg.Config.Concurrency,
		PollTimeout: cfg.Config.PollTimeout,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run worker runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Repo       core.JobMaintenanceRepository
	Dispatcher core.Dispatcher
	Logger     *slog.Logger
	Config     config.ReaperConfig
	Retention  config.RetentionConfig
	Metrics    statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Repo:       cfg.Repo,
		Dispatcher: cfg.Dispatcher,
		Config:     cfg.Config,
		Retention:  cfg.Retention,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
