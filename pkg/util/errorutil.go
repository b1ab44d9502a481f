package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass determines how a failure propagates through the workflow.
type ErrorClass string

const (
	// ClassTerminal marks ticket-data failures recorded on the ticket and
	// never retried (empty description, missing category).
	ClassTerminal ErrorClass = "TERMINAL"
	// ClassRetryable marks environment/dependency failures returned to the
	// event transport so the delivery is attempted again.
	ClassRetryable ErrorClass = "RETRYABLE"
	// ClassAbsorbed marks external-call failures written onto the ticket as
	// a *_failed status instead of looping on redelivery.
	ClassAbsorbed ErrorClass = "ABSORBED"
)

// WorkflowError standardizes application errors.
type WorkflowError struct {
	Class      ErrorClass
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError constructs a WorkflowError.
func NewWorkflowError(class ErrorClass, code, message string, status int, details map[string]any) *WorkflowError {
	return &WorkflowError{Class: class, Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewWorkflowError(ClassTerminal, "VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &WorkflowError{
		Class:      ClassRetryable,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewWorkflowError(ClassTerminal, "CONFLICT", message, http.StatusConflict, details)
}

// NewRetryable wraps a dependency failure that the event transport should
// redeliver.
func NewRetryable(message string, err error) error {
	return &WorkflowError{
		Class:      ClassRetryable,
		Code:       "DEPENDENCY_FAILURE",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &WorkflowError{
		Class:      ClassRetryable,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsRetryable reports whether err should be handed back to the transport for
// redelivery rather than absorbed into ticket state.
func IsRetryable(err error) bool {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Class == ClassRetryable
	}
	return false
}

// ToWorkflowError converts generic errors to WorkflowError.
func ToWorkflowError(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}
	return &WorkflowError{
		Class:      ClassRetryable,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToWorkflowError(err)
}
