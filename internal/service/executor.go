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
	domainjob "github.com/target/jobqueue/internal/domain/job"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
	"github.com/target/jobqueue/internal/observability/tracing"
)

// terminalWriteTimeout bounds the detached terminal transition written after cancellation.
const terminalWriteTimeout = 5 * time.Second

// ExecutorServiceOptions groups dependencies for ExecutorService.
type ExecutorServiceOptions struct {
	Repo          core.JobRepository     // Required: job store
	Registry      *domainjob.Registry    // Optional: defaults to square_sum and cube_sum
	Events        core.JobEventPublisher // Optional: job event fan-out
	SimulatedCost time.Duration          // Optional: artificial delay before each computation
	Logger        *slog.Logger           // Optional: structured logger
	Metrics       statsd.Sink            // Optional: metrics sink
	Tracer        trace.Tracer           // Optional: defaults to the global tracer
}

// ExecutorService runs dispatched jobs through the state machine:
// claim (PENDING -> IN_PROGRESS), compute, then SUCCESS or FAILED.
type ExecutorService struct {
	repo     core.JobRepository
	registry *domainjob.Registry
	events   core.JobEventPublisher
	cost     time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
	tracer   trace.Tracer
}

// NewExecutorService constructs a new ExecutorService.
func NewExecutorService(opts ExecutorServiceOptions) (*ExecutorService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.SimulatedCost < 0 {
		return nil, errors.New("SimulatedCost must not be negative")
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

	return &ExecutorService{
		repo:     opts.Repo,
		registry: registry,
		events:   opts.Events,
		cost:     opts.SimulatedCost,
		logger:   logger.With("component", "executor_service"),
		metrics:  opts.Metrics,
		tracer:   tracer,
	}, nil
}

// Execute processes one dispatch message. Duplicate and stale deliveries lose
// the claim and return nil. Computation failures are recorded as FAILED and
// return nil. Only store errors on the claim are returned, in which case the
// job is still PENDING. A claimed job runs to completion even when ctx is
// cancelled; the runner waits for in-flight deliveries on shutdown.
func (s *ExecutorService) Execute(ctx context.Context, msg model.DispatchMessage) (err error) {
	ctx, span := s.tracer.Start(ctx, "jobs.executor.execute",
		trace.WithAttributes(
			attribute.String("jobs.id", msg.JobID),
			attribute.String("jobs.operation", string(msg.Operation)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer func() { tracing.End(span, err) }()

	claimed, err := s.claim(ctx, msg)
	if err != nil || claimed == nil {
		return err
	}

	start := time.Now()
	outcome := s.compute(claimed)
	elapsed := time.Since(start)

	// The claim succeeded, so the job must leave IN_PROGRESS even if the worker is stopping.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	req := model.TransitionRequest{ID: claimed.ID, From: model.JobStatusInProgress}
	result := metrics.ResultSuccess
	if outcome.IsOk() {
		v := outcome.Value()
		req.To, req.Result = model.JobStatusSuccess, &v
		span.SetAttributes(attribute.Float64("jobs.result", v))
	} else {
		req.To = model.JobStatusFailed
		result = metrics.ResultError
		s.logger.WarnContext(ctx, "job execution failed",
			"job_id", claimed.ID,
			"operation", claimed.Operation,
			"failure_reason", outcome.Reason(),
		)
	}

	metrics.EmitCount(s.metrics, metrics.NameExecute, result, outcome.Reason(), map[string]string{
		"operation": operationTag(s.registry, claimed.Operation),
	})
	s.finish(writeCtx, req, claimed.Operation, elapsed)
	return nil
}

// claim moves the job PENDING -> IN_PROGRESS. A nil job with a nil error means
// another delivery already owns it.
func (s *ExecutorService) claim(ctx context.Context, msg model.DispatchMessage) (*model.Job, error) {
	job, err := s.repo.Transition(ctx, model.TransitionRequest{
		ID:   msg.JobID,
		From: model.JobStatusPending,
		To:   model.JobStatusInProgress,
	})
	opTag := operationTag(s.registry, msg.Operation)
	switch {
	case errors.Is(err, model.ErrTransitionConflict):
		s.logger.DebugContext(ctx, "job already claimed, skipping delivery", "job_id", msg.JobID)
		metrics.EmitCount(s.metrics, metrics.NameClaim, metrics.ResultNoop, nil, map[string]string{"operation": opTag})
		return nil, nil
	case err != nil:
		metrics.EmitCount(s.metrics, metrics.NameClaim, metrics.ResultError, err, map[string]string{"operation": opTag})
		return nil, fmt.Errorf("claim job %s: %w", msg.JobID, err)
	}

	metrics.EmitCount(s.metrics, metrics.NameClaim, metrics.ResultSuccess, nil, map[string]string{"operation": opTag})
	s.publish(ctx, job)
	return job, nil
}

// compute waits out the simulated cost and runs the registered operation over
// the stored input, which is authoritative over the message payload. The wait
// is bounded by the cost and is not cut short by shutdown.
func (s *ExecutorService) compute(job *model.Job) domainjob.Outcome {
	if s.cost > 0 {
		time.Sleep(s.cost)
	}
	return s.registry.Execute(job.Operation, job.Input)
}

func (s *ExecutorService) finish(ctx context.Context, req model.TransitionRequest, op model.Operation, elapsed time.Duration) {
	job, err := s.repo.Transition(ctx, req)
	in := metrics.JobMetric{
		Operation:  operationTag(s.registry, op),
		Transition: string(req.From) + "_to_" + string(req.To),
		Result:     metrics.ResultSuccess,
		Duration:   elapsed,
	}
	if err != nil {
		in.Result, in.Err = metrics.ResultError, err
		if errors.Is(err, model.ErrTransitionConflict) {
			in.Result = metrics.ResultNoop
		}
		s.logger.ErrorContext(ctx, "terminal transition lost",
			"job_id", req.ID,
			"to", req.To,
			"error", err,
		)
		metrics.EmitJobLifecycle(s.metrics, in)
		return
	}
	metrics.EmitJobLifecycle(s.metrics, in)
	s.publish(ctx, job)
	s.logger.DebugContext(ctx, "job finished", "job_id", job.ID, "status", job.Status)
}

func (s *ExecutorService) publish(ctx context.Context, job *model.Job) {
	if s.events == nil || job == nil {
		return
	}
	evt := model.JobEvent{
		Type:      model.JobEventStatus,
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		Status:    job.Status,
		Result:    job.Result,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.DebugContext(ctx, "publish job event failed", "job_id", job.ID, "error", err)
	}
}
