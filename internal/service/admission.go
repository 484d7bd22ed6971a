package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	domainjob "github.com/target/jobqueue/internal/domain/job"
	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
	"github.com/target/jobqueue/internal/observability/tracing"
)

// AdmissionServiceOptions groups dependencies for AdmissionService.
type AdmissionServiceOptions struct {
	Limiter        core.RateLimiter       // Required: per-principal admission limiter
	Repo           core.JobRepository     // Required: job store
	Dispatcher     core.Dispatcher        // Required: dispatch queue producer
	Registry       *domainjob.Registry    // Optional: defaults to square_sum and cube_sum
	Events         core.JobEventPublisher // Optional: job event fan-out
	MaxInputLength int                    // Optional: zero disables the length cap
	Logger         *slog.Logger           // Optional: structured logger
	Metrics        statsd.Sink            // Optional: metrics sink
	Tracer         trace.Tracer           // Optional: defaults to the global tracer
}

// AdmissionService admits job submissions: rate limit, validate, persist, dispatch.
type AdmissionService struct {
	limiter    core.RateLimiter
	repo       core.JobRepository
	dispatcher core.Dispatcher
	registry   *domainjob.Registry
	events     core.JobEventPublisher
	maxInput   int
	logger     *slog.Logger
	metrics    statsd.Sink
	tracer     trace.Tracer
}

// NewAdmissionService constructs a new AdmissionService.
func NewAdmissionService(opts AdmissionServiceOptions) (*AdmissionService, error) {
	switch {
	case opts.Limiter == nil:
		return nil, errors.New("RateLimiter is required")
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("Dispatcher is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = domainjob.DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer(nil)
	}

	return &AdmissionService{
		limiter:    opts.Limiter,
		repo:       opts.Repo,
		dispatcher: opts.Dispatcher,
		registry:   registry,
		events:     opts.Events,
		maxInput:   opts.MaxInputLength,
		logger:     logger.With("component", "admission_service"),
		metrics:    opts.Metrics,
		tracer:     tracer,
	}, nil
}

// Submit admits a job for principal. The limiter is consulted before any
// validation, so rejected and malformed submissions both consume quota.
// A dispatch failure leaves the job PENDING for the reconciler and is not
// reported to the caller.
func (s *AdmissionService) Submit(
	ctx context.Context,
	principal domainauth.Principal,
	req model.SubmitJobRequest,
) (job *model.Job, err error) {
	ctx, span := s.tracer.Start(ctx, "jobs.admission.submit",
		trace.WithAttributes(
			attribute.String("jobs.owner_id", principal.UserID),
			attribute.String("jobs.operation", string(req.Operation)),
		),
	)
	defer func() { tracing.End(span, err) }()

	if principal.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	if err = s.admit(ctx, principal.UserID); err != nil {
		s.emitAdmission(req.Operation, metrics.ResultRejected, err)
		return nil, err
	}

	if !s.registry.Supports(req.Operation) {
		err = apperrors.InvalidOperationf("unsupported operation %q (supported: %v)", req.Operation, s.registry.Names())
		s.emitAdmission(req.Operation, metrics.ResultRejected, err)
		return nil, err
	}
	if vErr := req.Validate(s.maxInput); vErr != nil {
		err = apperrors.ValidationField("data", vErr.Error())
		s.emitAdmission(req.Operation, metrics.ResultRejected, err)
		return nil, err
	}

	job, err = s.repo.Create(ctx, &model.CreateJobRequest{
		OwnerID:   principal.UserID,
		Operation: req.Operation,
		Input:     req.Data,
	})
	if err != nil {
		err = fmt.Errorf("create job: %w", apperrors.MapDBError(err))
		s.emitAdmission(req.Operation, metrics.ResultError, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("jobs.id", job.ID))

	if dErr := s.dispatcher.Enqueue(ctx, model.NewDispatchMessage(job)); dErr != nil {
		s.logger.WarnContext(ctx, "dispatch failed, job left for reconciliation",
			"job_id", job.ID,
			"error", dErr,
		)
	}

	s.publish(ctx, job)
	s.emitAdmission(req.Operation, metrics.ResultSuccess, nil)
	s.logger.DebugContext(ctx, "job admitted",
		"job_id", job.ID,
		"owner_id", job.OwnerID,
		"operation", job.Operation,
	)
	return job, nil
}

// admit consults the limiter. Limiter errors deny admission.
func (s *AdmissionService) admit(ctx context.Context, principalID string) error {
	allowed, err := s.limiter.Allow(ctx, principalID)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limiter unavailable, denying admission",
			"owner_id", principalID,
			"error", err,
		)
		return apperrors.Wrap(err, apperrors.ErrCodeRateLimited, "rate limit exceeded, try again later")
	}
	if !allowed {
		return apperrors.RateLimited("rate limit exceeded, try again later")
	}
	return nil
}

func (s *AdmissionService) publish(ctx context.Context, job *model.Job) {
	if s.events == nil {
		return
	}
	evt := model.JobEvent{
		Type:      model.JobEventCreated,
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		Status:    job.Status,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.DebugContext(ctx, "publish job event failed", "job_id", job.ID, "error", err)
	}
}

func (s *AdmissionService) emitAdmission(op model.Operation, result string, err error) {
	metrics.EmitCount(s.metrics, metrics.NameAdmission, result, err, map[string]string{
		"operation": operationTag(s.registry, op),
	})
}

// operationTag keeps metric cardinality bounded to registered operations.
func operationTag(registry *domainjob.Registry, op model.Operation) string {
	if registry != nil && registry.Supports(op) {
		return string(op)
	}
	return "unknown"
}
