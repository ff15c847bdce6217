package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response. recoverable tells the
// client whether retrying with corrected or refreshed input can succeed, as
// opposed to a failure on our side.
func writeError(w http.ResponseWriter, status int, msg string, recoverable bool) {
	writeJSON(w, status, map[string]any{"error": msg, "recoverable": recoverable})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// statusForError maps domain sentinel errors to HTTP status codes. The second
// return is false for errors with no mapping, which handlers report as 500s.
func statusForError(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNonceUnknown):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidLiquidity),
		errors.Is(err, domain.ErrTermsMismatch):
		return http.StatusBadRequest, true
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized, true
	case errors.Is(err, domain.ErrSignatureRequired), errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden, true
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientShares):
		return http.StatusPaymentRequired, true
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrPoolNotOpen),
		errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrStaleQuote),
		errors.Is(err, domain.ErrNonceUsed),
		errors.Is(err, domain.ErrOrderTerminal):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrNonceExpired):
		return http.StatusGone, true
	}
	return 0, false
}

// respondError translates a service error into an HTTP response, logging only
// the unexpected ones.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	if status, ok := statusForError(err); ok {
		writeError(w, status, err.Error(), domain.Recoverable(err))
		return
	}
	logger.ErrorContext(r.Context(), fallback,
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, fallback, false)
}
