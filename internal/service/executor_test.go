package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	domainjob "github.com/target/jobqueue/internal/domain/job"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/mocks"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
	"github.com/target/jobqueue/internal/observability/tracing"
)

func floatPtr(v float64) *float64 { return &v }

type executorFixture struct {
	repo     *mocks.MockJobRepository
	events   *mocks.MockJobEventPublisher
	recorder *statsd.Recorder
	spans    *tracetest.SpanRecorder
	svc      *ExecutorService
}

func newExecutorFixture(t *testing.T, cost time.Duration, registry *domainjob.Registry) *executorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &executorFixture{
		repo:     mocks.NewMockJobRepository(ctrl),
		events:   mocks.NewMockJobEventPublisher(ctrl),
		recorder: &statsd.Recorder{},
		spans:    tracetest.NewSpanRecorder(),
	}
	svc, err := NewExecutorService(ExecutorServiceOptions{
		Repo:          f.repo,
		Registry:      registry,
		Events:        f.events,
		SimulatedCost: cost,
		Metrics:       f.recorder,
		Tracer:        tracing.Tracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func jobIn(status model.JobStatus, op model.Operation, input []float64, result *float64) *model.Job {
	return &model.Job{
		ID:        testJobID,
		OwnerID:   testOwnerID,
		Operation: op,
		Input:     input,
		Status:    status,
		Result:    result,
	}
}

func claimRequest() model.TransitionRequest {
	return model.TransitionRequest{ID: testJobID, From: model.JobStatusPending, To: model.JobStatusInProgress}
}

func TestNewExecutorService_Validation(t *testing.T) {
	_, err := NewExecutorService(ExecutorServiceOptions{})
	require.EqualError(t, err, "JobRepository is required")

	ctrl := gomock.NewController(t)
	_, err = NewExecutorService(ExecutorServiceOptions{Repo: mocks.NewMockJobRepository(ctrl), SimulatedCost: -time.Second})
	require.EqualError(t, err, "SimulatedCost must not be negative")
}

func TestExecutorService_Execute_Success(t *testing.T) {
	tests := []struct {
		name   string
		op     model.Operation
		input  []float64
		result float64
	}{
		{"square_sum", model.OperationSquareSum, []float64{2, 3}, 13},
		{"cube_sum", model.OperationCubeSum, []float64{2, 3}, 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t, 0, nil)
			msg := model.DispatchMessage{JobID: testJobID, OwnerID: testOwnerID, Operation: tt.op, Input: tt.input}

			gomock.InOrder(
				f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).
					Return(jobIn(model.JobStatusInProgress, tt.op, tt.input, nil), nil),
				f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
				f.repo.EXPECT().Transition(gomock.Any(), model.TransitionRequest{
					ID:     testJobID,
					From:   model.JobStatusInProgress,
					To:     model.JobStatusSuccess,
					Result: floatPtr(tt.result),
				}).Return(jobIn(model.JobStatusSuccess, tt.op, tt.input, floatPtr(tt.result)), nil),
				f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, evt model.JobEvent) error {
						assert.Equal(t, model.JobStatusSuccess, evt.Status)
						require.NotNil(t, evt.Result)
						assert.InDelta(t, tt.result, *evt.Result, 1e-9)
						return nil
					}),
			)

			require.NoError(t, f.svc.Execute(context.Background(), msg))

			assert.Len(t, f.recorder.Find(metrics.NameClaim, map[string]string{"result": metrics.ResultSuccess}), 1)
			assert.Len(t, f.recorder.Find(metrics.NameTransition, map[string]string{
				"transition": "IN_PROGRESS_to_SUCCESS",
				"result":     metrics.ResultSuccess,
			}), 1)

			spans := f.spans.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "jobs.executor.execute", spans[0].Name())
		})
	}
}

func TestExecutorService_Execute_UsesStoredInput(t *testing.T) {
	f := newExecutorFixture(t, 0, nil)
	// The message carries stale input; the claimed row is authoritative.
	msg := model.DispatchMessage{JobID: testJobID, Operation: model.OperationSquareSum, Input: []float64{100}}

	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).
		Return(jobIn(model.JobStatusInProgress, model.OperationSquareSum, []float64{1, 2}, nil), nil)
	f.repo.EXPECT().Transition(gomock.Any(), model.TransitionRequest{
		ID: testJobID, From: model.JobStatusInProgress, To: model.JobStatusSuccess, Result: floatPtr(5),
	}).Return(jobIn(model.JobStatusSuccess, model.OperationSquareSum, []float64{1, 2}, floatPtr(5)), nil)
	f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	require.NoError(t, f.svc.Execute(context.Background(), msg))
}

func TestExecutorService_Execute_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newExecutorFixture(t, 0, nil)
	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).Return(nil, model.ErrTransitionConflict)

	err := f.svc.Execute(context.Background(), model.DispatchMessage{JobID: testJobID, Operation: model.OperationSquareSum})
	require.NoError(t, err)
	assert.Len(t, f.recorder.Find(metrics.NameClaim, map[string]string{"result": metrics.ResultNoop}), 1)
	assert.Empty(t, f.recorder.Find(metrics.NameExecute, nil))
}

func TestExecutorService_Execute_ClaimStoreError(t *testing.T) {
	f := newExecutorFixture(t, 0, nil)
	dbErr := errors.New("connection reset by peer")
	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).Return(nil, dbErr)

	err := f.svc.Execute(context.Background(), model.DispatchMessage{JobID: testJobID})
	require.ErrorIs(t, err, dbErr)
	assert.Len(t, f.recorder.Find(metrics.NameClaim, map[string]string{"result": metrics.ResultError}), 1)
}

func TestExecutorService_Execute_FailureWritesFailedWithoutResult(t *testing.T) {
	registry := domainjob.NewRegistry()
	registry.MustRegister("explode", func([]float64) domainjob.Outcome { panic("boom") })
	registry.MustRegister(model.OperationCubeSum, domainjob.PowerSum(3))

	tests := []struct {
		name  string
		op    model.Operation
		input []float64
	}{
		{"panicking operation", "explode", []float64{1}},
		{"non-finite result", model.OperationCubeSum, []float64{math.MaxFloat64}},
		{"operation removed after admission", model.OperationSquareSum, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t, 0, registry)
			f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).
				Return(jobIn(model.JobStatusInProgress, tt.op, tt.input, nil), nil)
			f.repo.EXPECT().Transition(gomock.Any(), model.TransitionRequest{
				ID: testJobID, From: model.JobStatusInProgress, To: model.JobStatusFailed,
			}).Return(jobIn(model.JobStatusFailed, tt.op, tt.input, nil), nil)
			f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

			require.NoError(t, f.svc.Execute(context.Background(), model.DispatchMessage{JobID: testJobID, Operation: tt.op}))
			assert.Len(t, f.recorder.Find(metrics.NameExecute, map[string]string{"result": metrics.ResultError}), 1)
		})
	}
}

func TestExecutorService_Execute_CancelledDuringSimulatedCostStillSucceeds(t *testing.T) {
	const cost = 200 * time.Millisecond
	f := newExecutorFixture(t, cost, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).DoAndReturn(
		func(context.Context, model.TransitionRequest) (*model.Job, error) {
			time.AfterFunc(20*time.Millisecond, cancel)
			return jobIn(model.JobStatusInProgress, model.OperationSquareSum, []float64{2, 3}, nil), nil
		})
	f.repo.EXPECT().Transition(gomock.Any(), model.TransitionRequest{
		ID: testJobID, From: model.JobStatusInProgress, To: model.JobStatusSuccess, Result: floatPtr(13),
	}).DoAndReturn(func(ctx context.Context, _ model.TransitionRequest) (*model.Job, error) {
		// The terminal write must not inherit the worker's cancellation.
		require.NoError(t, ctx.Err())
		return jobIn(model.JobStatusSuccess, model.OperationSquareSum, []float64{2, 3}, floatPtr(13)), nil
	})
	f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	start := time.Now()
	require.NoError(t, f.svc.Execute(ctx, model.DispatchMessage{JobID: testJobID}))
	assert.GreaterOrEqual(t, time.Since(start), cost)
	require.Error(t, ctx.Err())
	assert.Len(t, f.recorder.Find(metrics.NameExecute, map[string]string{"result": metrics.ResultSuccess}), 1)
	assert.Empty(t, f.recorder.Find(metrics.NameExecute, map[string]string{"result": metrics.ResultError}))
}

func TestExecutorService_Execute_TerminalConflictIsLogged(t *testing.T) {
	f := newExecutorFixture(t, 0, nil)
	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).
		Return(jobIn(model.JobStatusInProgress, model.OperationSquareSum, []float64{2}, nil), nil)
	f.repo.EXPECT().Transition(gomock.Any(), gomock.Any()).Return(nil, model.ErrTransitionConflict)
	f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.svc.Execute(context.Background(), model.DispatchMessage{JobID: testJobID}))
	assert.Len(t, f.recorder.Find(metrics.NameTransition, map[string]string{"result": metrics.ResultNoop}), 1)
}

func TestExecutorService_Execute_SimulatedCostDelays(t *testing.T) {
	f := newExecutorFixture(t, 50*time.Millisecond, nil)
	f.repo.EXPECT().Transition(gomock.Any(), claimRequest()).
		Return(jobIn(model.JobStatusInProgress, model.OperationSquareSum, []float64{3}, nil), nil)
	f.repo.EXPECT().Transition(gomock.Any(), gomock.Any()).
		Return(jobIn(model.JobStatusSuccess, model.OperationSquareSum, []float64{3}, floatPtr(9)), nil)
	f.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	start := time.Now()
	require.NoError(t, f.svc.Execute(context.Background(), model.DispatchMessage{JobID: testJobID}))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	timings := f.recorder.Find(metrics.NameExecuteDuration, nil)
	require.Len(t, timings, 1)
}
