// Package testutil provides testing utilities and helpers for the jobqueue service.
package testutil

import (
	"slices"

	"github.com/target/jobqueue/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest(ownerID string) *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			OwnerID:   ownerID,
			Operation: model.OperationSquareSum,
			Input:     []float64{1, 2, 3},
		},
	}
}

// WithOperation sets the operation.
func (b *JobRequestBuilder) WithOperation(op model.Operation) *JobRequestBuilder {
	b.req.Operation = op
	return b
}

// WithInput sets the input values.
func (b *JobRequestBuilder) WithInput(values ...float64) *JobRequestBuilder {
	b.req.Input = slices.Clone(values)
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// SquareSumJobRequest creates a square_sum request over [1, 2, 3].
func SquareSumJobRequest(ownerID string) *model.CreateJobRequest {
	return NewJobRequest(ownerID).Build()
}

// CubeSumJobRequest creates a cube_sum request over [1, 2].
func CubeSumJobRequest(ownerID string) *model.CreateJobRequest {
	return NewJobRequest(ownerID).
		WithOperation(model.OperationCubeSum).
		WithInput(1, 2).
		Build()
}
