package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"sql no rows", sql.ErrNoRows, ErrCodeNotFound},
		{"pgx no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("MapDBError() lost the cause")
			}
		})
	}
}

func TestMapDBError_UniqueEmail(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		TableName:      "users",
		ConstraintName: "users_email_lower_idx",
		Detail:         "Key (lower(email))=(ada@example.com) already exists.",
	}

	err := MapDBError(pgErr)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if GetField(err) != "email" {
		t.Errorf("field = %q, want email", GetField(err))
	}
	if PublicMessage(err) != "email already registered" {
		t.Errorf("message = %q", PublicMessage(err))
	}
}

func TestMapDBError_ConstraintViolations(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode ErrorCode
	}{
		{"foreign key", pgerrcode.ForeignKeyViolation, ErrCodeValidation},
		{"check", pgerrcode.CheckViolation, ErrCodeValidation},
		{"not null", pgerrcode.NotNullViolation, ErrCodeValidation},
		{"bad uuid", pgerrcode.InvalidTextRepresentation, ErrCodeNotFound},
		{"too many connections", pgerrcode.TooManyConnections, ErrCodeUnavailable},
		{"other", pgerrcode.DivisionByZero, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(&pgconn.PgError{Code: tt.code, TableName: "jobs"})
			if GetCode(err) != tt.wantCode {
				t.Errorf("code = %q, want %q", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("boom")
	if got := MapDBError(plain); got != plain {
		t.Errorf("expected unrecognised errors to pass through, got %v", got)
	}
}

func TestUniqueViolationField(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		column string
		want   string
	}{
		{"plain column", "Key (email)=(ada@example.com) already exists.", "", "email"},
		{"expression index", "Key (lower(email))=(ada@example.com) already exists.", "", "email"},
		{"value with parentheses", "Key (lower(email))=(a(b)@example.com) already exists.", "", "email"},
		{"column name wins", "Key (lower(email))=(x) already exists.", "id", "id"},
		{"no detail", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: tt.detail, ColumnName: tt.column}
			if got := uniqueViolationField(pgErr); got != tt.want {
				t.Errorf("uniqueViolationField() = %q, want %q", got, tt.want)
			}
		})
	}
}
