package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
)

// Retention defaults.
const (
	DefaultRetentionWindow    = 24 * time.Hour
	DefaultRetentionBatchSize = 1000
	// MaxRetentionHours caps cleanup overrides at ten years so the window
	// always fits in a time.Duration.
	MaxRetentionHours = 10 * 365 * 24
)

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Repo          core.JobMaintenanceRepository // Required: maintenance queries
	DefaultWindow time.Duration                 // Optional: defaults to 24h
	BatchSize     int                           // Optional: rows per UPDATE, defaults to 1000
	Now           func() time.Time              // Optional: clock override for tests
	Logger        *slog.Logger                  // Optional: structured logger
	Metrics       statsd.Sink                   // Optional: metrics sink
}

// RetentionService soft-deletes SUCCESS jobs older than a retention window.
type RetentionService struct {
	repo      core.JobMaintenanceRepository
	window    time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

// CleanupResult reports a cleanup run.
type CleanupResult struct {
	Deleted        int64   `json:"deleted"`
	RetentionHours float64 `json:"retention_hours"`
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) (*RetentionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobMaintenanceRepository is required")
	}
	window := opts.DefaultWindow
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = DefaultRetentionBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{
		repo:      opts.Repo,
		window:    window,
		batchSize: batchSize,
		now:       now,
		logger:    logger.With("component", "retention_service"),
		metrics:   opts.Metrics,
	}, nil
}

// DefaultWindow returns the configured retention window.
func (s *RetentionService) DefaultWindow() time.Duration { return s.window }

// Cleanup runs the sweep on behalf of principal, who must be an admin.
// retentionHours overrides the default window when non-nil and must be positive.
func (s *RetentionService) Cleanup(
	ctx context.Context,
	principal domainauth.Principal,
	retentionHours *float64,
) (CleanupResult, error) {
	if !principal.IsAdmin() {
		return CleanupResult{}, apperrors.Forbidden("cleanup requires the admin role")
	}

	window := s.window
	if retentionHours != nil {
		hours := *retentionHours
		switch {
		case math.IsNaN(hours) || hours <= 0:
			return CleanupResult{}, apperrors.ValidationField("retention_hours", "retention_hours must be positive")
		case hours > MaxRetentionHours:
			return CleanupResult{}, apperrors.ValidationField("retention_hours",
				fmt.Sprintf("retention_hours must not exceed %d", MaxRetentionHours))
		}
		window = time.Duration(*retentionHours * float64(time.Hour))
	}

	deleted, err := s.Sweep(ctx, window)
	if err != nil {
		return CleanupResult{}, err
	}
	s.logger.InfoContext(ctx, "cleanup completed",
		"requested_by", principal.UserID,
		"deleted", deleted,
		"retention", window,
	)
	return CleanupResult{Deleted: deleted, RetentionHours: window.Hours()}, nil
}

// Sweep soft-deletes SUCCESS jobs created before now-window and returns the count.
// It is the unauthenticated entry point used by the reaper and the admin CLI.
func (s *RetentionService) Sweep(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, apperrors.ValidationField("retention", "retention window must be positive")
	}
	start := time.Now()
	cutoff := s.now().Add(-window)

	deleted, err := s.repo.SoftDeleteSucceededBefore(ctx, cutoff, s.batchSize)
	metrics.EmitSweep(s.metrics, metrics.NameRetentionSwept, deleted, time.Since(start), err)
	if err != nil {
		return deleted, fmt.Errorf("soft delete succeeded jobs: %w", apperrors.MapDBError(err))
	}
	return deleted, nil
}
