package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo       core.JobMaintenanceRepository // Required: maintenance queries
	Dispatcher core.Dispatcher               // Required: dispatch queue producer
	Config     config.ReaperConfig           // Required: reaper configuration
	Retention  *RetentionService             // Optional: runs a retention sweep every cycle when set
	Now        func() time.Time              // Optional: clock override for tests
	Logger     *slog.Logger                  // Optional: structured logger
	Metrics    statsd.Sink                   // Optional: metrics sink (StatsD-compatible)
}

// ReaperService reconciles jobs that were admitted but never reached a worker.
//
// Each cycle:
// - Re-dispatches PENDING jobs untouched for longer than the grace period.
// - Optionally soft-deletes expired SUCCESS jobs.
//
// Overlapping cycles across replicas are safe: duplicate deliveries lose the
// executor's compare-and-swap claim.
type ReaperService struct {
	repo       core.JobMaintenanceRepository
	dispatcher core.Dispatcher
	config     config.ReaperConfig
	retention  *RetentionService
	pacer      *rate.Limiter
	now        func() time.Time
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobMaintenanceRepository is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("Dispatcher is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", cfg.Interval,
		"pending_grace", cfg.PendingGrace,
		"batch_size", cfg.BatchSize,
		"retention", opts.Retention != nil,
	)

	burst := max(1, int(cfg.RedispatchRPS))
	return &ReaperService{
		repo:       opts.Repo,
		dispatcher: opts.Dispatcher,
		config:     cfg,
		retention:  opts.Retention,
		pacer:      rate.NewLimiter(rate.Limit(cfg.RedispatchRPS), burst),
		now:        now,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCycleError(err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCycleError(err, "sweep")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// SweepResult reports one reaper cycle.
type SweepResult struct {
	Requeued int64
	Swept    int64
}

// RunOnce performs a single reconciliation cycle. Re-dispatch and the
// retention sweep touch disjoint rows, so they run side by side; a failure in
// one does not cancel the other.
func (s *ReaperService) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		res                     SweepResult
		reconcileErr, retainErr error
		g                       errgroup.Group
	)

	start := time.Now()
	g.Go(func() error {
		res.Requeued, reconcileErr = s.Reconcile(ctx)
		metrics.EmitSweep(s.metrics, metrics.NameReaperRequeued, res.Requeued, time.Since(start), suppressContextCancellation(reconcileErr))
		return nil
	})
	if s.retention != nil && ctx.Err() == nil {
		g.Go(func() error {
			res.Swept, retainErr = s.retention.Sweep(ctx, s.retention.DefaultWindow())
			if retainErr == nil && res.Swept > 0 {
				s.logger.InfoContext(ctx, "soft-deleted expired jobs", "count", res.Swept)
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if reconcileErr != nil {
		errs = append(errs, fmt.Errorf("reconcile pending jobs: %w", reconcileErr))
	}
	if retainErr != nil {
		errs = append(errs, fmt.Errorf("retention sweep: %w", retainErr))
	}

	joined := errors.Join(errs...)
	metrics.EmitSweep(s.metrics, metrics.NameReaperSweep, res.Requeued+res.Swept, time.Since(start), suppressContextCancellation(joined))
	if joined != nil && isContextCancellation(joined) {
		return res, context.Canceled
	}
	return res, joined
}

// Reconcile re-dispatches stale PENDING jobs, paced by the configured rate.
// It returns how many were re-enqueued.
func (s *ReaperService) Reconcile(ctx context.Context) (int64, error) {
	olderThan := s.now().Add(-s.config.PendingGrace)
	stale, err := s.repo.ListStalePending(ctx, olderThan, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale pending jobs: %w", err)
	}

	var requeued int64
	for _, job := range stale {
		if err := s.pacer.Wait(ctx); err != nil {
			return requeued, err
		}
		if err := s.redispatch(ctx, job); err != nil {
			return requeued, err
		}
		requeued++
	}

	if requeued > 0 {
		s.logger.InfoContext(ctx, "re-dispatched stale pending jobs",
			"count", requeued,
			"pending_grace", s.config.PendingGrace,
		)
	}
	return requeued, nil
}

// redispatch enqueues first and then bumps the dispatch bookkeeping, so a
// crash in between only produces a duplicate delivery.
func (s *ReaperService) redispatch(ctx context.Context, job *model.Job) error {
	if err := s.dispatcher.Enqueue(ctx, model.NewDispatchMessage(job)); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	if err := s.repo.MarkDispatched(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %s dispatched: %w", job.ID, err)
	}
	s.logger.DebugContext(ctx, "re-dispatched job",
		"job_id", job.ID,
		"dispatch_count", job.DispatchCount+1,
	)
	return nil
}

func (s *ReaperService) logCycleError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
