package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/target/jobqueue/internal/errors"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error code", fmt.Errorf("wrap: %w", apperrors.NotFound("job not found")), "not_found"},
		{"deadline", fmt.Errorf("op: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"plain", errors.New("boom"), "errors_errorstring"},
		{"pointer type", fmt.Errorf("x: %w", &customErr{}), "errors_customerr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
