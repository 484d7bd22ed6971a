package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/domain/model"
	"github.com/target/jobqueue/internal/mocks"
	"github.com/target/jobqueue/internal/observability/metrics"
	"github.com/target/jobqueue/internal/observability/statsd"
)

type reaperFixture struct {
	repo       *mocks.MockJobMaintenanceRepository
	dispatcher *mocks.MockDispatcher
	recorder   *statsd.Recorder
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &reaperFixture{
		repo:       mocks.NewMockJobMaintenanceRepository(ctrl),
		dispatcher: mocks.NewMockDispatcher(ctrl),
		recorder:   &statsd.Recorder{},
	}
}

func (f *reaperFixture) service(t *testing.T, retention *RetentionService) *ReaperService {
	t.Helper()
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:       f.repo,
		Dispatcher: f.dispatcher,
		Config: config.ReaperConfig{
			Interval:      time.Minute,
			PendingGrace:  5 * time.Minute,
			BatchSize:     10,
			RedispatchRPS: 1000,
		},
		Retention: retention,
		Now:       func() time.Time { return fixedNow },
		Metrics:   f.recorder,
	})
	require.NoError(t, err)
	return svc
}

func stalePending(id string, dispatches int) *model.Job {
	return &model.Job{
		ID:            id,
		OwnerID:       testOwnerID,
		Operation:     model.OperationSquareSum,
		Input:         []float64{1, 2},
		Status:        model.JobStatusPending,
		DispatchCount: dispatches,
	}
}

func TestNewReaperService_RequiredDependencies(t *testing.T) {
	f := newReaperFixture(t)
	_, err := NewReaperService(ReaperServiceOptions{Dispatcher: f.dispatcher})
	require.EqualError(t, err, "JobMaintenanceRepository is required")
	_, err = NewReaperService(ReaperServiceOptions{Repo: f.repo})
	require.EqualError(t, err, "Dispatcher is required")
}

func TestReaperService_Reconcile_RedispatchesStalePending(t *testing.T) {
	f := newReaperFixture(t)
	svc := f.service(t, nil)
	jobs := []*model.Job{stalePending("job-a", 1), stalePending("job-b", 2)}

	f.repo.EXPECT().ListStalePending(gomock.Any(), fixedNow.Add(-5*time.Minute), 10).Return(jobs, nil)
	for _, j := range jobs {
		gomock.InOrder(
			f.dispatcher.EXPECT().Enqueue(gomock.Any(), model.NewDispatchMessage(j)).Return(nil),
			f.repo.EXPECT().MarkDispatched(gomock.Any(), j.ID).Return(nil),
		)
	}

	n, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReaperService_Reconcile_StopsOnEnqueueError(t *testing.T) {
	f := newReaperFixture(t)
	svc := f.service(t, nil)
	queueErr := errors.New("redis: connection refused")

	f.repo.EXPECT().ListStalePending(gomock.Any(), gomock.Any(), 10).
		Return([]*model.Job{stalePending("job-a", 1), stalePending("job-b", 1)}, nil)
	f.dispatcher.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(queueErr)

	n, err := svc.Reconcile(context.Background())
	require.ErrorIs(t, err, queueErr)
	assert.Zero(t, n)
}

func TestReaperService_RunOnce_WithRetention(t *testing.T) {
	f := newReaperFixture(t)
	retention, err := NewRetentionService(RetentionServiceOptions{
		Repo:      f.repo,
		BatchSize: 100,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	svc := f.service(t, retention)

	f.repo.EXPECT().ListStalePending(gomock.Any(), gomock.Any(), 10).Return(nil, nil)
	f.repo.EXPECT().SoftDeleteSucceededBefore(gomock.Any(), fixedNow.Add(-24*time.Hour), 100).Return(int64(4), nil)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Requeued: 0, Swept: 4}, res)

	sweeps := f.recorder.Find(metrics.NameReaperSweep+".items", map[string]string{"result": metrics.ResultSuccess})
	require.Len(t, sweeps, 1)
	assert.InDelta(t, 4.0, sweeps[0].Value, 0)
}

func TestReaperService_RunOnce_JoinsErrors(t *testing.T) {
	f := newReaperFixture(t)
	retention, err := NewRetentionService(RetentionServiceOptions{Repo: f.repo})
	require.NoError(t, err)
	svc := f.service(t, retention)

	listErr := errors.New("list failed")
	sweepErr := errors.New("sweep failed")
	f.repo.EXPECT().ListStalePending(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, listErr)
	f.repo.EXPECT().SoftDeleteSucceededBefore(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), sweepErr)

	_, err = svc.RunOnce(context.Background())
	require.ErrorIs(t, err, listErr)
	require.ErrorIs(t, err, sweepErr)
	assert.Len(t, f.recorder.Find(metrics.NameReaperSweep, map[string]string{"result": metrics.ResultError}), 1)
}

func TestReaperService_RunOnce_SweepsWhileReconciling(t *testing.T) {
	f := newReaperFixture(t)
	retention, err := NewRetentionService(RetentionServiceOptions{Repo: f.repo, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	svc := f.service(t, retention)

	sweepStarted := make(chan struct{})
	f.repo.EXPECT().ListStalePending(gomock.Any(), gomock.Any(), 10).
		DoAndReturn(func(context.Context, time.Time, int) ([]*model.Job, error) {
			select {
			case <-sweepStarted:
				return nil, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("retention sweep did not start while listing")
			}
		})
	f.repo.EXPECT().SoftDeleteSucceededBefore(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Time, int) (int64, error) {
			close(sweepStarted)
			return 2, nil
		})

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Swept: 2}, res)
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	f := newReaperFixture(t)
	svc := f.service(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.repo.EXPECT().ListStalePending(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
