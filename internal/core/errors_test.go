package core

import "testing"

func TestFarmError_Error(t *testing.T) {
	err := &FarmError{Code: "not_found", Message: "Job 'nightly' not found."}
	got := err.Error()
	want := "[not_found] Job 'nightly' not found."
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad input", map[string]any{"field": "name"})
	if err.Code != ErrCodeInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInvalidRequest)
	}
	if err.Retryable {
		t.Error("expected Retryable = false")
	}
	if err.Details["field"] != "name" {
		t.Errorf("Details[field] = %v, want %q", err.Details["field"], "name")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Job", "pr-99")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNotFound)
	}
	if err.Details["resource_type"] != "Job" {
		t.Errorf("Details[resource_type] = %v, want %q", err.Details["resource_type"], "Job")
	}
	if err.Details["resource_id"] != "pr-99" {
		t.Errorf("Details[resource_id] = %v, want %q", err.Details["resource_id"], "pr-99")
	}
}

func TestNewConflictError(t *testing.T) {
	err := NewConflictError("Job 'x' already exists.", nil)
	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeConflict)
	}
	if err.Retryable {
		t.Error("expected Retryable = false")
	}
}

func TestNewInternalError(t *testing.T) {
	err := NewInternalError("store unavailable")
	if err.Code != ErrCodeInternalError {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInternalError)
	}
	if !err.Retryable {
		t.Error("internal errors should be retryable")
	}
}
