package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// fail maps an error kind to its HTTP status. Storage and unclassified failures hide the cause
// from the caller and are logged instead.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.Kind(err)
	if kind == nil || errors.Is(kind, apperr.ErrStorageUnavailable) {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	switch {
	case errors.Is(kind, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(kind, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(kind, apperr.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(kind, apperr.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", err.Error())
	case errors.Is(kind, apperr.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage is temporarily unavailable, nothing was committed")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("could not parse JSON body: %v", err)
	}
	return nil
}
