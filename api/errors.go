package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/casevault/casevault/casekeys"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, casekeys.ErrAllocationExhausted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, casekeys.ErrDecryption):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, casekeys.ErrInvalidPassphrase):
		// Deployment misconfiguration, not a client problem.
		writeError(w, http.StatusInternalServerError, "system key unavailable")
	case errors.Is(err, casekeys.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, casekeys.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
