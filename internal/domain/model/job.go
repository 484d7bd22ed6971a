// Package model defines the core data types shared by the job admission and lifecycle system.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Operation names a registered computation.
type Operation string

// JobStatus represents the current status of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// OperationSquareSum sums the squares of the input values.
	OperationSquareSum Operation = "square_sum"
	// OperationCubeSum sums the cubes of the input values.
	OperationCubeSum Operation = "cube_sum"

	// JobStatusPending indicates a job is admitted and waiting for a worker.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusInProgress indicates a worker has claimed the job.
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	// JobStatusSuccess indicates the computation finished and a result is stored.
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusFailed indicates the computation failed. No result is stored.
	JobStatusFailed JobStatus = "FAILED"
)

var (
	// ErrJobNotFound is returned when a job does not exist or is soft-deleted.
	ErrJobNotFound = errors.New("job not found")
	// ErrTransitionConflict is returned when a compare-and-swap transition finds a different stored status.
	ErrTransitionConflict = errors.New("job status transition conflict")
	// ErrInvalidTransition is returned when a transition is not an edge of the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrResultRequired is returned when a SUCCESS transition carries no result.
	ErrResultRequired = errors.New("result is required for SUCCESS")
	// ErrResultNotAllowed is returned when a non-SUCCESS transition carries a result.
	ErrResultNotAllowed = errors.New("result is only allowed for SUCCESS")
)

// AllJobStatuses lists every status in lifecycle order.
func AllJobStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusInProgress, JobStatusSuccess, JobStatusFailed}
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusSuccess, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further status change is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// UnmarshalText accepts statuses case-insensitively.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// CanTransition reports whether from -> to is an edge of the job state machine.
//
//	PENDING -> IN_PROGRESS -> SUCCESS | FAILED
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusInProgress
	case JobStatusInProgress:
		return to == JobStatusSuccess || to == JobStatusFailed
	default:
		return false
	}
}

// Job represents a submitted computation and its lifecycle state.
type Job struct {
	ID            string     `json:"job_id"                 db:"id"`
	OwnerID       string     `json:"owner_id"               db:"owner_id"`
	Operation     Operation  `json:"operation"              db:"operation"`
	Input         []float64  `json:"data"                   db:"input"`
	Status        JobStatus  `json:"status"                 db:"status"`
	Result        *float64   `json:"result"                 db:"result"`
	DispatchCount int        `json:"-"                      db:"dispatch_count"`
	CreatedAt     time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"             db:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Deleted       bool       `json:"-"                      db:"deleted"`
	DeletedAt     *time.Time `json:"-"                      db:"deleted_at"`
}

// OwnedBy reports whether userID owns the job.
func (j *Job) OwnedBy(userID string) bool {
	return j != nil && userID != "" && j.OwnerID == userID
}

// SubmitJobRequest is the caller-facing submission payload.
type SubmitJobRequest struct {
	Operation Operation `json:"operation"`
	Data      []float64 `json:"data"`
}

// Validate checks the input values. Operation support is checked against the registry by the caller.
func (r *SubmitJobRequest) Validate(maxInput int) error {
	if len(r.Data) == 0 {
		return errors.New("data must contain at least one number")
	}
	if maxInput > 0 && len(r.Data) > maxInput {
		return fmt.Errorf("data must contain at most %d numbers", maxInput)
	}
	for i, v := range r.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("data[%d] must be a finite number", i)
		}
	}
	return nil
}

// CreateJobRequest is the store-level request to persist a new PENDING job.
type CreateJobRequest struct {
	OwnerID   string
	Operation Operation
	Input     []float64
}

// TransitionRequest is a compare-and-swap status change.
type TransitionRequest struct {
	ID     string
	From   JobStatus
	To     JobStatus
	Result *float64
}

// Validate checks the edge and the result-iff-SUCCESS rule.
func (r TransitionRequest) Validate() error {
	if !CanTransition(r.From, r.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.From, r.To)
	}
	if r.To == JobStatusSuccess && r.Result == nil {
		return ErrResultRequired
	}
	if r.To != JobStatusSuccess && r.Result != nil {
		return ErrResultNotAllowed
	}
	return nil
}

// DispatchMessage is the unit handed to the worker pool.
type DispatchMessage struct {
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"owner_id"`
	Operation Operation `json:"operation"`
	Input     []float64 `json:"input"`
}

// NewDispatchMessage builds a dispatch message for a stored job.
func NewDispatchMessage(j *Job) DispatchMessage {
	return DispatchMessage{
		JobID:     j.ID,
		OwnerID:   j.OwnerID,
		Operation: j.Operation,
		Input:     j.Input,
	}
}

// JobEventType names a job event published to subscribers.
type JobEventType string

const (
	// JobEventCreated is published after admission.
	JobEventCreated JobEventType = "job.created"
	// JobEventStatus is published after each successful transition.
	JobEventStatus JobEventType = "job.status"
)

// JobEvent is the payload streamed to a job owner.
type JobEvent struct {
	Type      JobEventType `json:"type"`
	JobID     string       `json:"job_id"`
	OwnerID   string       `json:"-"`
	Status    JobStatus    `json:"status"`
	Result    *float64     `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
}
