package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/benchfarm/benchfarm/internal/core"
)

// ErrorResponse is the envelope for all error payloads.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the typed error plus the request id so clients can
// quote it when reporting problems.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", core.MediaType)
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError writes err as a structured error response. The request id is
// taken from the response headers, where the headers middleware put it.
func WriteError(w http.ResponseWriter, status int, err *core.FarmError) {
	body := ErrorBody{
		Code:      err.Code,
		Message:   err.Message,
		Retryable: err.Retryable,
		RequestID: w.Header().Get(core.RequestIDHeader),
		Details:   err.Details,
	}
	WriteJSON(w, status, ErrorResponse{Error: body})
}

// statusFor maps a farm error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case core.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeStoreError surfaces an error from the store or another internal
// layer. Typed errors keep their code and status; anything else becomes an
// opaque internal error so store paths never leak into responses.
func writeStoreError(w http.ResponseWriter, err error) {
	var fe *core.FarmError
	if errors.As(err, &fe) {
		WriteError(w, statusFor(fe.Code), fe)
		return
	}
	slog.Error("internal error", "error", err)
	WriteError(w, http.StatusInternalServerError, core.NewInternalError("Internal server error."))
}
