// Package jobrunner runs the worker pool that drains the dispatch queue into the executor.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/domain/model"
)

const (
	defaultPollTimeout = 5 * time.Second
	dequeueBackoff     = time.Second
	ackTimeout         = 5 * time.Second
)

// Executor runs one dispatched job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, msg model.DispatchMessage) error
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Queue    core.DispatchConsumer
	Executor Executor
	Logger   *slog.Logger

	Concurrency int           // number of worker goroutines; defaults to 1
	PollTimeout time.Duration // upper bound on each blocking dequeue; defaults to 5s
}

// Runner pulls dispatch messages and hands them to the executor.
type Runner struct {
	queue       core.DispatchConsumer
	executor    Executor
	logger      *slog.Logger
	workers     int
	pollTimeout time.Duration
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("dispatch queue is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	return &Runner{
		queue:       opts.Queue,
		executor:    opts.Executor,
		logger:      logger.With("component", "job_runner"),
		workers:     workers,
		pollTimeout: poll,
	}, nil
}

// Run re-queues deliveries left unacknowledged by a previous process, then
// starts the worker loops and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "poll_timeout", r.pollTimeout)

	if n, err := r.queue.RecoverInflight(ctx); err != nil {
		r.logger.WarnContext(ctx, "recover in-flight deliveries failed", "error", err)
	} else if n > 0 {
		r.logger.InfoContext(ctx, "recovered in-flight deliveries", "count", n)
	}

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.workerLoop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		d, err := r.queue.Dequeue(ctx, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.ErrorContext(ctx, "dequeue failed", "error", err)
			if !sleep(ctx, dequeueBackoff) {
				return nil
			}
			continue
		}
		if d == nil {
			continue
		}
		r.process(ctx, d)
	}
	return nil
}

// process executes one delivery and acknowledges it. A delivery whose
// execution was cut short by shutdown stays in flight for the next recovery.
func (r *Runner) process(ctx context.Context, d *core.Delivery) {
	err := r.executor.Execute(ctx, d.Message)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.WarnContext(ctx, "execution interrupted; leaving delivery in flight",
				"job_id", d.Message.JobID, "error", err)
			return
		}
		r.logger.ErrorContext(ctx, "job execution failed", "job_id", d.Message.JobID, "error", err)
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if ackErr := r.queue.Ack(ackCtx, d); ackErr != nil {
		r.logger.ErrorContext(ctx, "ack delivery failed", "job_id", d.Message.JobID, "error", ackErr)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
