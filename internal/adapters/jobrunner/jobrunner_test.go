package jobrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/mocks"
)

type executorFunc func(ctx context.Context, msg model.DispatchMessage) error

func (f executorFunc) Execute(ctx context.Context, msg model.DispatchMessage) error {
	return f(ctx, msg)
}

func testDelivery(id string) *core.Delivery {
	msg := model.DispatchMessage{JobID: id, OwnerID: "owner-1", Operation: model.OperationSquareSum, Input: []float64{2, 3}}
	return &core.Delivery{Message: msg, Raw: `{"job_id":"` + id + `"}`}
}

func runWithTimeout(t *testing.T, r *Runner, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

func TestNewRunner_RequiredDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{Executor: executorFunc(nil)})
	require.EqualError(t, err, "dispatch queue is required")

	_, err = NewRunner(RunnerOptions{Queue: mocks.NewMockDispatchConsumer(ctrl)})
	require.EqualError(t, err, "executor is required")

	r, err := NewRunner(RunnerOptions{Queue: mocks.NewMockDispatchConsumer(ctrl), Executor: executorFunc(nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, defaultPollTimeout, r.pollTimeout)
}

func TestRunner_ExecutesAndAcks(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockDispatchConsumer(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := testDelivery("job-1")
	var executed atomic.Int32
	exec := executorFunc(func(_ context.Context, msg model.DispatchMessage) error {
		executed.Add(1)
		assert.Equal(t, d.Message, msg)
		return nil
	})

	gomock.InOrder(
		queue.EXPECT().RecoverInflight(gomock.Any()).Return(2, nil),
		queue.EXPECT().Dequeue(gomock.Any(), time.Second).Return(d, nil),
		queue.EXPECT().Ack(gomock.Any(), d).DoAndReturn(func(context.Context, *core.Delivery) error {
			cancel()
			return nil
		}),
	)

	r, err := NewRunner(RunnerOptions{Queue: queue, Executor: exec, PollTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, r, ctx))
	assert.Equal(t, int32(1), executed.Load())
}

func TestRunner_AcksFailedExecution(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockDispatchConsumer(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := testDelivery("job-2")
	exec := executorFunc(func(context.Context, model.DispatchMessage) error {
		return errors.New("claim job: connection reset")
	})

	queue.EXPECT().RecoverInflight(gomock.Any()).Return(0, errors.New("redis down"))
	queue.EXPECT().Dequeue(gomock.Any(), gomock.Any()).Return(d, nil)
	queue.EXPECT().Ack(gomock.Any(), d).DoAndReturn(func(context.Context, *core.Delivery) error {
		cancel()
		return errors.New("ack failed")
	})

	r, err := NewRunner(RunnerOptions{Queue: queue, Executor: exec})
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, r, ctx))
}

func TestRunner_LeavesInterruptedDeliveryInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockDispatchConsumer(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := executorFunc(func(context.Context, model.DispatchMessage) error {
		cancel()
		return context.Canceled
	})

	queue.EXPECT().RecoverInflight(gomock.Any()).Return(0, nil)
	queue.EXPECT().Dequeue(gomock.Any(), gomock.Any()).Return(testDelivery("job-3"), nil)
	// No Ack expected.

	r, err := NewRunner(RunnerOptions{Queue: queue, Executor: exec})
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, r, ctx))
}

func TestRunner_SurvivesDequeueErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockDispatchConsumer(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := testDelivery("job-4")
	exec := executorFunc(func(context.Context, model.DispatchMessage) error { return nil })

	queue.EXPECT().RecoverInflight(gomock.Any()).Return(0, nil)
	gomock.InOrder(
		queue.EXPECT().Dequeue(gomock.Any(), gomock.Any()).Return(nil, errors.New("i/o timeout")),
		queue.EXPECT().Dequeue(gomock.Any(), gomock.Any()).Return(nil, nil),
		queue.EXPECT().Dequeue(gomock.Any(), gomock.Any()).Return(d, nil),
		queue.EXPECT().Ack(gomock.Any(), d).DoAndReturn(func(context.Context, *core.Delivery) error {
			cancel()
			return nil
		}),
	)

	r, err := NewRunner(RunnerOptions{Queue: queue, Executor: exec})
	require.NoError(t, err)
	require.NoError(t, runWithTimeout(t, r, ctx))
}
