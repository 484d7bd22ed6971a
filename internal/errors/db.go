package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the key from unique violation detail: "Key (field)=(value) already exists."
// or, for expression indexes, "Key (lower(field))=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \((.+?)\)=\(`)

// MapDBError maps database errors to AppError instances:
//   - sql.ErrNoRows / pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - foreign key, check and NOT NULL violations → Validation
//   - connection failures → Unavailable
//   - context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "request was canceled")
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "resource not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Wrap(err, ErrCodeUnavailable, "database is unavailable")
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := uniqueViolationField(pgErr)
		return &AppError{
			Code:    ErrCodeConflict,
			Message: conflictMessage(pgErr.TableName, field),
			Field:   field,
			Cause:   pgErr,
		}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "referenced " + domainName(referencedTable(pgErr)) + " does not exist",
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "invalid data, please check your input",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	case pgerrcode.InvalidTextRepresentation:
		// malformed uuid literals reach here; treat them as missing rows
		return Wrap(pgErr, ErrCodeNotFound, "resource not found")
	case pgerrcode.AdminShutdown, pgerrcode.CannotConnectNow, pgerrcode.TooManyConnections:
		return Wrap(pgErr, ErrCodeUnavailable, "database is unavailable")
	default:
		return Wrap(pgErr, ErrCodeInternal, "a database error occurred")
	}
}

func uniqueViolationField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		// expression indexes report "lower(email)"
		field := m[1]
		if i := strings.Index(field, "("); i >= 0 {
			field = strings.TrimSuffix(field[i+1:], ")")
		}
		return field
	}
	return ""
}

func conflictMessage(table, field string) string {
	if strings.EqualFold(table, "users") && field == "email" {
		return "email already registered"
	}
	if field != "" {
		return field + " already exists"
	}
	return "this value already exists"
}

func referencedTable(pgErr *pgconn.PgError) string {
	name := strings.ToLower(pgErr.ConstraintName)
	if strings.Contains(name, "owner") || strings.Contains(name, "user") {
		return "users"
	}
	return pgErr.TableName
}

func domainName(table string) string {
	switch strings.ToLower(strings.TrimSpace(table)) {
	case "users":
		return "user"
	case "jobs":
		return "job"
	case "":
		return "record"
	default:
		return strings.ReplaceAll(table, "_", " ")
	}
}
