// Package httpapi exposes the stock adjustment session over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/stock-adjustment-service/internal/session"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// writeSessionError maps controller errors onto status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrClosed):
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
	case errors.Is(err, session.ErrBusy):
		WriteJSONError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, session.ErrAlreadyReverted), errors.Is(err, session.ErrOutOfOrder):
		WriteJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, session.ErrEntryNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrUndoDeclined):
		WriteJSONError(w, http.StatusPreconditionRequired, "undo_declined", err.Error())
	case errors.Is(err, session.ErrGateway):
		WriteJSONError(w, http.StatusBadGateway, "gateway_error", err.Error())
	case session.IsValidation(err):
		WriteJSONError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
