package core

import "fmt"

// Error codes returned by the store and surfaced through the API.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternalError  = "internal_error"
)

// FarmError is the typed error shared by the store, poller and API layers.
// Code selects the HTTP status, Retryable tells clients whether the same
// request may succeed later.
type FarmError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *FarmError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewInvalidRequestError reports malformed or unacceptable input.
func NewInvalidRequestError(message string, details map[string]any) *FarmError {
	return &FarmError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resourceType, id string) *FarmError {
	return &FarmError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found.", resourceType, id),
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   id,
		},
	}
}

// NewConflictError reports an operation that collides with existing state,
// e.g. enqueueing a job name that is already pending or done.
func NewConflictError(message string, details map[string]any) *FarmError {
	return &FarmError{
		Code:    ErrCodeConflict,
		Message: message,
		Details: details,
	}
}

// NewInternalError reports an unexpected failure. Internal errors are
// retryable from the client's point of view.
func NewInternalError(message string) *FarmError {
	return &FarmError{
		Code:      ErrCodeInternalError,
		Message:   message,
		Retryable: true,
	}
}
