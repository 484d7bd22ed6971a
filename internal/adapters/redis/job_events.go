package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobqueue/internal/core"
	"github.com/target/jobqueue/internal/domain/model"
)

// DefaultEventsChannelPrefix namespaces per-owner event channels.
const DefaultEventsChannelPrefix = "jobs:events:"

const subscriptionBuffer = 32

// JobEventsOptions configures JobEvents.
type JobEventsOptions struct {
	Client redis.UniversalClient
	Prefix string
	Logger *slog.Logger
}

// JobEvents fans job lifecycle events out over Redis pub/sub, one channel per owner.
// Delivery is best effort: subscribers only see events published while connected.
type JobEvents struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var (
	_ core.JobEventPublisher  = (*JobEvents)(nil)
	_ core.JobEventSubscriber = (*JobEvents)(nil)
)

// NewJobEvents creates a JobEvents publisher/subscriber.
func NewJobEvents(opts JobEventsOptions) (*JobEvents, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultEventsChannelPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobEvents{client: opts.Client, prefix: prefix, logger: logger.With("component", "job_events")}, nil
}

func (e *JobEvents) channel(ownerID string) string { return e.prefix + ownerID }

// Publish sends evt to its owner's channel.
func (e *JobEvents) Publish(ctx context.Context, evt model.JobEvent) error {
	if evt.OwnerID == "" {
		return errors.New("job event requires an owner id")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	if err := e.client.Publish(ctx, e.channel(evt.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// Subscribe opens a stream of ownerID's events. The stream ends when ctx is done or Close is called.
func (e *JobEvents) Subscribe(ctx context.Context, ownerID string) (core.JobEventSubscription, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	ps := e.client.Subscribe(ctx, e.channel(ownerID))
	// Wait for the subscription confirmation so no event published after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to job events: %w", err)
	}

	sub := &jobEventSubscription{
		ps:     ps,
		events: make(chan model.JobEvent, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.relay(ctx, ownerID, e.logger)
	return sub, nil
}

type jobEventSubscription struct {
	ps        *redis.PubSub
	events    chan model.JobEvent
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *jobEventSubscription) Events() <-chan model.JobEvent { return s.events }

func (s *jobEventSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.ps.Close()
	})
	return s.closeErr
}

func (s *jobEventSubscription) relay(ctx context.Context, ownerID string, logger *slog.Logger) {
	defer close(s.events)
	defer func() { _ = s.Close() }()

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var evt model.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.WarnContext(ctx, "dropping malformed job event", "channel", msg.Channel, "error", err)
				continue
			}
			evt.OwnerID = ownerID
			select {
			case s.events <- evt:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
