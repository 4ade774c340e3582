package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/correlation"
	"github.com/auditflow/auditflow/pkg/jobs"
	"github.com/auditflow/auditflow/pkg/models"
)

// ErrorResponse is the failure envelope shared by every endpoint.
type ErrorResponse struct {
	Error         bool             `json:"error"`
	ErrorKind     models.ErrorKind `json:"errorKind"`
	Message       string           `json:"message"`
	CorrelationID string           `json:"correlationId"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindBadRequest:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindNotReady:
		return http.StatusAccepted
	case models.ErrKindBusy:
		return http.StatusTooManyRequests
	case models.ErrKindRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindCancelled:
		return http.StatusConflict
	case models.ErrKindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders the failure envelope with the request's correlation ID.
func writeError(c *echo.Context, kind models.ErrorKind, message string) error {
	return c.JSON(statusFor(kind), &ErrorResponse{
		Error:         true,
		ErrorKind:     kind,
		Message:       message,
		CorrelationID: correlation.FromContext(c.Request().Context()),
	})
}

// mapDomainError renders domain-layer errors. Raw internals never reach the
// client; unknown errors become INTERNAL with a generic message.
func mapDomainError(c *echo.Context, err error) error {
	var validErr *models.ValidationError
	if errors.As(err, &validErr) {
		return writeError(c, models.ErrKindBadRequest, validErr.Error())
	}
	var termErr *jobs.TerminalError
	if errors.As(err, &termErr) {
		return writeError(c, termErr.Kind, termErr.Message)
	}
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return writeError(c, models.ErrKindNotFound, "job not found")
	case errors.Is(err, jobs.ErrNotReady):
		return writeError(c, models.ErrKindNotReady, "job results not ready")
	case errors.Is(err, jobs.ErrBacklogFull):
		return writeError(c, models.ErrKindBusy, "job queue is full, retry later")
	case errors.Is(err, jobs.ErrConflict):
		return writeError(c, models.ErrKindCancelled, "job is already in a terminal state")
	}

	slog.ErrorContext(c.Request().Context(), "Unexpected domain error", "error", err)
	return writeError(c, models.ErrKindInternal, "internal server error")
}
