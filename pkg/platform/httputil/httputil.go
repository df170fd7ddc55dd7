package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// MaxBodyBytes bounds request bodies decoded by Decode.
const MaxBodyBytes = 1 << 20

// Error codes carried in the JSON error envelope.
const (
	CodeBadRequest      = "bad_request"
	CodeValidation      = "validation_error"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeTooManyRequests = "rate_limited"
	CodeUnavailable     = "service_unavailable"
	CodeInternal        = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope. Internal errors never carry a
// description so driver messages do not leak to callers.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		description = ""
	}
	WriteJSON(w, status, ErrorResponse{Error: code, Description: description})
}

// Decode reads a single JSON value into T, rejecting unknown fields and
// trailing data. On failure it writes a 400 and returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON value")
	}
	if err != nil {
		if logger != nil {
			logger.DebugContext(r.Context(), "rejecting request body", "path", r.URL.Path, "error", err)
		}
		WriteError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return v, false
	}
	return v, true
}
