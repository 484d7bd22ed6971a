package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/jobqueue/internal/errors"
)

// statusByCode is the single mapping from application error codes to HTTP statuses.
//
//nolint:gochecknoglobals // static read-only lookup
var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:       http.StatusBadRequest,
	apperrors.ErrCodeInvalidOperation: http.StatusBadRequest,
	apperrors.ErrCodeUnauthorized:     http.StatusUnauthorized,
	apperrors.ErrCodeForbidden:        http.StatusForbidden,
	apperrors.ErrCodeNotFound:         http.StatusNotFound,
	apperrors.ErrCodeConflict:         http.StatusConflict,
	apperrors.ErrCodeRateLimited:      http.StatusTooManyRequests,
	apperrors.ErrCodeUnavailable:      http.StatusServiceUnavailable,
	apperrors.ErrCodeTimeout:          http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:         499,
	apperrors.ErrCodeInternal:         http.StatusInternalServerError,
}

// ErrorStatus returns the HTTP status for err. Errors outside the taxonomy are 500.
func ErrorStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByCode[apperrors.GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RenderError writes err as a JSON error response. Server-side failures are
// logged with their cause; the response only carries the public message.
func RenderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := ErrorStatus(err)
	code := apperrors.GetCode(err)
	switch {
	case code != "":
	case status == http.StatusGatewayTimeout:
		code = apperrors.ErrCodeTimeout
	default:
		code = apperrors.ErrCodeInternal
	}

	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	if code == apperrors.ErrCodeRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "60")
	}
	WriteJSON(w, status, ErrorBody{
		Error:   string(code),
		Message: apperrors.PublicMessage(err),
		Field:   apperrors.GetField(err),
	})
}
