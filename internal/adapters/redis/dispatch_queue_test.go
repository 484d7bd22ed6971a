package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobqueue/internal/domain/model"
)

func newTestQueue(t *testing.T) *JobQueue {
	t.Helper()
	q, err := NewJobQueue(JobQueueOptions{Client: setupTestRedis(t), Key: "test:dispatch"})
	require.NoError(t, err)
	return q
}

func dispatchMsg(id string) model.DispatchMessage {
	return model.DispatchMessage{
		JobID:     id,
		OwnerID:   "owner-1",
		Operation: model.OperationSquareSum,
		Input:     []float64{2, 3},
	}
}

func TestJobQueue_FIFOAndAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatchMsg("job-1")))
	require.NoError(t, q.Enqueue(ctx, dispatchMsg("job-2")))

	d1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, "job-1", d1.Message.JobID)
	assert.Equal(t, []float64{2, 3}, d1.Message.Input)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueDepth{Queued: 1, InFlight: 1}, depth)

	require.NoError(t, q.Ack(ctx, d1))

	d2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, "job-2", d2.Message.JobID)
	require.NoError(t, q.Ack(ctx, d2))

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueDepth{}, depth)
}

func TestJobQueue_DequeueTimeout(t *testing.T) {
	q := newTestQueue(t)

	d, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestJobQueue_RecoverInflight(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatchMsg("crashed")))
	require.NoError(t, q.Enqueue(ctx, dispatchMsg("queued")))

	// Simulate a worker dying after taking "crashed" but before acking.
	lost, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "crashed", lost.Message.JobID)

	moved, err := q.RecoverInflight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "crashed", again.Message.JobID, "recovered deliveries run first")

	// The stale handle's ack is harmless.
	require.NoError(t, q.Ack(ctx, lost))
	require.NoError(t, q.Ack(ctx, again))

	moved, err = q.RecoverInflight(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestJobQueue_DropsMalformed(t *testing.T) {
	client := setupTestRedis(t)
	q, err := NewJobQueue(JobQueueOptions{Client: client, Key: "test:dispatch"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, "test:dispatch", "{not json").Err())

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, d)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueDepth{}, depth)
}

func TestJobQueue_EnqueueRequiresJobID(t *testing.T) {
	q := newTestQueue(t)
	require.Error(t, q.Enqueue(context.Background(), model.DispatchMessage{}))
}
