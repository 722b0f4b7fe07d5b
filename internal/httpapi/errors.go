package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"streamd/internal/engine"
	"streamd/internal/provider"
	"streamd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeEngineError maps coordinator errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case engine.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, engine.ErrNotOwner):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case provider.IsGenerationError(err):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		var he HTTPError
		if errors.As(err, &he) {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		logRequest(r).Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
