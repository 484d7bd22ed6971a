package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to create job",
				Cause:   errors.New("connection reset"),
			},
			want: "failed to create job: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NotFound("x"), IsNotFound},
		{"forbidden", Forbidden("x"), IsForbidden},
		{"unauthorized", Unauthorized("x"), IsUnauthorized},
		{"conflict", Conflictf("job %s", "1"), IsConflict},
		{"validation", ValidationField("data", "x"), IsValidation},
		{"invalid operation", InvalidOperationf("unsupported %q", "median"), IsInvalidOperation},
		{"rate limited", RateLimited("x"), IsRateLimited},
		{"wrapped", fmt.Errorf("outer: %w", Forbidden("x")), IsForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate failed for %v (code %q)", tt.err, GetCode(tt.err))
			}
		})
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("redis down")
	err := Wrap(cause, ErrCodeRateLimited, "rate limiter unavailable")

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if GetCode(err) != ErrCodeRateLimited {
		t.Fatalf("unexpected code %q", GetCode(err))
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Fatalf("wrapping nil should return nil")
	}
}

func TestGetField(t *testing.T) {
	if got := GetField(InvalidOperationf("bad")); got != "operation" {
		t.Errorf("GetField() = %q, want operation", got)
	}
	if got := GetField(errors.New("plain")); got != "" {
		t.Errorf("GetField() on plain error = %q", got)
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(Wrap(errors.New("secret dsn"), ErrCodeInternal, "failed to load job")); got != "failed to load job" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(errors.New("secret dsn")); got != "internal server error" {
		t.Errorf("PublicMessage() on plain error = %q", got)
	}
}
