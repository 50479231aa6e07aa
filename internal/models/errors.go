// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// Admission rejection reason codes.
const (
	ReasonCapExceeded     = "CAP_EXCEEDED"
	ReasonDuplicateActive = "DUPLICATE_ACTIVE_REQUEST"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Reason  string // machine-readable sub-reason, e.g. admission reason codes
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Err:     err,
	}
}

// NewAdmissionRejectedError reports that a new request was refused by
// admission control. reason is one of the admission reason codes.
func NewAdmissionRejectedError(reason, message string) *AppError {
	return &AppError{
		Code:    "ADMISSION_REJECTED",
		Message: message,
		Reason:  reason,
	}
}

// NewInvalidTransitionError reports an illegal status change attempt.
func NewInvalidTransitionError(from, to RequestStatus) *AppError {
	return &AppError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("request cannot move from %s to %s", from, to),
	}
}

// NewConflictError reports that a compare-and-set lost a race: the stored
// status changed between read and update. Callers should re-fetch.
func NewConflictError(id uint) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: fmt.Sprintf("request %d changed state concurrently, refresh and retry", id),
	}
}

// NewStoreError wraps a storage-layer failure. The request state is
// unchanged and the whole call is safe to retry.
func NewStoreError(err error) *AppError {
	return &AppError{
		Code:    "STORE_ERROR",
		Message: "storage operation failed",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	if appErr, ok := err.(*AppError); ok {
		response = ErrorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Reason: appErr.Reason,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// StatusForError maps an application error code to an HTTP status.
func StatusForError(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case "VALIDATION_ERROR":
		return fiber.StatusBadRequest
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "UNAUTHORIZED":
		return fiber.StatusForbidden
	case "ADMISSION_REJECTED":
		return fiber.StatusTooManyRequests
	case "INVALID_TRANSITION", "CONFLICT":
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
