package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dspears/tabular"
	"github.com/dspears/tabular/internal/logging"
)

// Stable client-facing messages for request-shape problems.
const (
	errUnknownTable = "unknown table"
	errBadBody      = "invalid request body"
	errBadLimit     = "limit must be a non-negative integer"
	errBadOrder     = "order must be a known column, optionally followed by asc or desc"
)

// respondError maps a tabular error to an HTTP status, logging the full
// error server-side.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tabular.ErrMissingKey), errors.Is(err, tabular.ErrInvalidFilter),
		errors.Is(err, tabular.ErrInvalidChangeType):
		status = http.StatusBadRequest
	case errors.Is(err, tabular.ErrMultipleRows), errors.Is(err, tabular.ErrRowVanished):
		status = http.StatusConflict
	}
	writeError(w, r, status, err.Error())
}

// writeError writes a JSON error response and logs it with the request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", message,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing left but to log it.
		slog.Error("json encode error", "error", err)
	}
}
