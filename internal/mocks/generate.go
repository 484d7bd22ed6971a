// Package mocks provides mock implementations for testing the jobqueue services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, Transition, List, CountByStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/jobqueue/internal/core JobRepository

// Generate mock for JobMaintenanceRepository interface from internal/core package.
// SoftDeleteSucceededBefore, ListStalePending, MarkDispatched
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_maintenance_repository_mock.go github.com/target/jobqueue/internal/core JobMaintenanceRepository

// Generate mock for UserRepository interface from internal/core package.
// Create, GetByID, GetByEmail, UpsertFederated, SetRole
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/target/jobqueue/internal/core UserRepository

// Generate mocks for the admission and dispatch collaborators.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rate_limiter_mock.go github.com/target/jobqueue/internal/core RateLimiter
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatcher_mock.go github.com/target/jobqueue/internal/core Dispatcher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatch_consumer_mock.go github.com/target/jobqueue/internal/core DispatchConsumer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_event_publisher_mock.go github.com/target/jobqueue/internal/core JobEventPublisher
