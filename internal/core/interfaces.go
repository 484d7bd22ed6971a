package core

import (
	"context"
	"time"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
)

// This file contains repository and infrastructure interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not concrete implementations.

// JobRepository is the durable job store. Every status change goes through Transition.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// GetByID returns model.ErrJobNotFound for missing or soft-deleted jobs.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Transition is a compare-and-swap on (id, req.From). It returns
	// model.ErrTransitionConflict when the stored status differs.
	Transition(ctx context.Context, req model.TransitionRequest) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	CountByStatus(ctx context.Context, ownerID string) (model.JobStatusCounts, error)
}

// JobMaintenanceRepository covers the sweeps run by cleanup and reconciliation.
type JobMaintenanceRepository interface {
	// SoftDeleteSucceededBefore flags SUCCESS jobs created before cutoff as deleted and returns the count.
	SoftDeleteSucceededBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	// ListStalePending returns PENDING jobs last touched before olderThan, oldest first.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
	// MarkDispatched records a dispatch attempt for a job still PENDING.
	MarkDispatched(ctx context.Context, id string) error
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertFederated(ctx context.Context, req model.UpsertFederatedUserRequest) (*model.User, error)
	SetRole(ctx context.Context, email string, role domainauth.Role) (*model.User, error)
}

// RateLimiter gates admission per principal. Implementations fail closed:
// when the backing store errors, Allow returns false together with the error.
type RateLimiter interface {
	Allow(ctx context.Context, principalID string) (bool, error)
}

// Dispatcher hands admitted jobs to the execution layer with at-least-once delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg model.DispatchMessage) error
}

// Delivery is one dequeued dispatch message. Ack must be called once processing is finished.
type Delivery struct {
	Message model.DispatchMessage
	Raw     string
}

// DispatchConsumer is the worker side of the dispatch queue.
type DispatchConsumer interface {
	// Dequeue blocks up to timeout. It returns (nil, nil) when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// RecoverInflight returns unacknowledged deliveries to the queue and reports how many moved.
	RecoverInflight(ctx context.Context) (int, error)
}

// JobEventPublisher publishes lifecycle events to interested subscribers (best effort).
type JobEventPublisher interface {
	Publish(ctx context.Context, evt model.JobEvent) error
}

// JobEventSubscription is a live stream of one owner's job events.
type JobEventSubscription interface {
	Events() <-chan model.JobEvent
	Close() error
}

// JobEventSubscriber opens per-owner event streams.
type JobEventSubscriber interface {
	Subscribe(ctx context.Context, ownerID string) (JobEventSubscription, error)
}
