// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/qps-ai/client/internal/document"
	"github.com/qps-ai/client/internal/session"
	"github.com/qps-ai/client/internal/solver"
	"github.com/rs/zerolog/log"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ExposeErrorDetails includes internal error text in UNKNOWN_ERROR responses.
var ExposeErrorDetails = false

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewPayloadTooLargeError creates a 413 error
func NewPayloadTooLargeError(message string) *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "PAYLOAD_TOO_LARGE",
		Message: message,
	}
}

// NewUnsupportedTypeError creates a 415 error
func NewUnsupportedTypeError(name string) *APIError {
	return &APIError{
		Status:  http.StatusUnsupportedMediaType,
		Code:    "UNSUPPORTED_TYPE",
		Message: fmt.Sprintf("unsupported document type: %s", name),
	}
}

// NewUnprocessableError creates a 422 error
func NewUnprocessableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "UNPROCESSABLE",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceError creates a 502 error for a failed collaborator call.
// Message is the text a user should see.
func NewServiceError(err error) *APIError {
	var se *solver.Error
	fallback := solver.SolveFailedMessage
	if errors.As(err, &se) && se.Op == solver.ErrUpload {
		fallback = solver.UploadFailedMessage
	}
	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    "SERVICE_ERROR",
		Message: solver.UserMessage(err, fallback),
		Details: err.Error(),
	}
}

// fromWorkflowError maps session and collaborator errors to API errors.
func fromWorkflowError(err error) *APIError {
	var se *solver.Error
	switch {
	case errors.As(err, &se):
		return NewServiceError(err)
	case errors.Is(err, session.ErrIndexOutOfRange):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, session.ErrUploadInProgress),
		errors.Is(err, session.ErrSolveInProgress),
		errors.Is(err, session.ErrAlreadySolved):
		return NewConflictError(err.Error())
	case errors.Is(err, session.ErrStaleGeneration):
		return NewConflictError("session was reset while the request was in flight")
	case errors.Is(err, session.ErrEmptyQuestion):
		return NewUnprocessableError(err.Error())
	case errors.Is(err, document.ErrTooLarge):
		return NewPayloadTooLargeError(err.Error())
	default:
		return NewInternalError("request failed", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ExposeErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Int("status", apiErr.Status).
			Msg("request failed")
	}

	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		log.Debug().Err(err).Msg("failed to write error response")
	}
}
