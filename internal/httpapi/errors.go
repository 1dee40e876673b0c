package httpapi

import (
	"encoding/json"
	"net/http"

	"tensord/internal/compute"
	"tensord/internal/manager"
	"tensord/internal/registry"
	"tensord/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known runtime errors to HTTP status codes. The
// second value names the rejection reason for 5xx answers caused by load.
func statusForError(err error) (int, string) {
	switch {
	case manager.IsModelNotFound(err):
		return http.StatusNotFound, ""
	case registry.IsInvalidRequest(err):
		return http.StatusBadRequest, ""
	case registry.IsCapacityExhausted(err):
		return http.StatusInsufficientStorage, "capacity"
	case manager.IsDependencyUnavailable(err), compute.IsUnavailable(err):
		return http.StatusServiceUnavailable, "dependency"
	case manager.IsClosed(err):
		return http.StatusServiceUnavailable, "closed"
	case registry.IsCancelled(err):
		return http.StatusGatewayTimeout, "timeout"
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode(), ""
	}
	return http.StatusInternalServerError, ""
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
