package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/domain/model"
)

// DefaultQueueKey is the Redis list holding dispatched jobs.
const DefaultQueueKey = "jobs:dispatch"

const processingSuffix = ":processing"

// JobQueueOptions configures a JobQueue.
type JobQueueOptions struct {
	Client redis.UniversalClient
	// Key is the main list. In-flight deliveries live in Key + ":processing".
	// On Redis Cluster both keys must hash to one slot, e.g. "{jobs}:dispatch".
	Key    string
	Logger *slog.Logger
}

// JobQueue is a reliable Redis list queue. Producers LPUSH onto the main list, consumers
// BLMOVE the oldest entry into a processing list and LREM it once handled. Entries still
// in the processing list after a crash are pushed back by RecoverInflight, so delivery is
// at-least-once.
type JobQueue struct {
	client        redis.UniversalClient
	key           string
	processingKey string
	logger        *slog.Logger
}

var (
	_ core.Dispatcher       = (*JobQueue)(nil)
	_ core.DispatchConsumer = (*JobQueue)(nil)
)

// NewJobQueue creates a JobQueue.
func NewJobQueue(opts JobQueueOptions) (*JobQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	key := opts.Key
	if key == "" {
		key = DefaultQueueKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		client:        opts.Client,
		key:           key,
		processingKey: key + processingSuffix,
		logger:        logger.With("component", "job_queue"),
	}, nil
}

// Enqueue pushes msg onto the queue.
func (q *JobQueue) Enqueue(ctx context.Context, msg model.DispatchMessage) error {
	if msg.JobID == "" {
		return errors.New("dispatch message requires a job id")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// Dequeue waits up to timeout for the oldest message and moves it to the processing list.
// It returns (nil, nil) when the wait timed out. Undecodable entries are dropped.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*core.Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	var msg model.DispatchMessage
	if decodeErr := json.Unmarshal([]byte(raw), &msg); decodeErr != nil || msg.JobID == "" {
		q.logger.WarnContext(ctx, "dropping malformed dispatch message", "raw", raw, "error", decodeErr)
		if remErr := q.client.LRem(ctx, q.processingKey, 1, raw).Err(); remErr != nil {
			return nil, fmt.Errorf("drop malformed message: %w", remErr)
		}
		return nil, nil
	}
	return &core.Delivery{Message: msg, Raw: raw}, nil
}

// Ack removes a handled delivery from the processing list.
func (q *JobQueue) Ack(ctx context.Context, d *core.Delivery) error {
	if d == nil {
		return nil
	}
	removed, err := q.client.LRem(ctx, q.processingKey, 1, d.Raw).Result()
	if err != nil {
		return fmt.Errorf("ack job %s: %w", d.Message.JobID, err)
	}
	if removed == 0 {
		// Another process recovered it first; the job's CAS absorbs the duplicate.
		q.logger.DebugContext(ctx, "ack found no in-flight entry", "job_id", d.Message.JobID)
	}
	return nil
}

// RecoverInflight moves every entry left in the processing list back to the consuming
// end of the main list, so recovered jobs run before newer ones.
func (q *JobQueue) RecoverInflight(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("recover in-flight deliveries: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.InfoContext(ctx, "recovered in-flight deliveries", "count", moved)
	}
	return moved, nil
}

// QueueDepth reports queued and in-flight message counts.
type QueueDepth struct {
	Queued   int64 `json:"queued"`
	InFlight int64 `json:"in_flight"`
}

// Depth returns the current queue depth.
func (q *JobQueue) Depth(ctx context.Context) (QueueDepth, error) {
	var queued, inflight *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		queued = pipe.LLen(ctx, q.key)
		inflight = pipe.LLen(ctx, q.processingKey)
		return nil
	})
	if err != nil {
		return QueueDepth{}, fmt.Errorf("queue depth: %w", err)
	}
	return QueueDepth{Queued: queued.Val(), InFlight: inflight.Val()}, nil
}
