package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/complexity"
)

const (
	msgUnauthenticated = "Missing or invalid access token"
	msgAuthUnavailable = "Authentication service unavailable"
	msgNotFound        = "No record found for that offender"
	msgValidation      = "Validation error"
	msgInternal        = "Internal server error"
	msgTooLarge        = "Request body too large"
	msgBadJSON         = "Request body must be valid JSON"
)

type messageBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageBody{Message: msg})
}

// mapError converts a domain or auth error to a status and body. The second
// result reports whether the error was expected; unexpected ones are logged.
func mapError(err error) (int, messageBody, bool) {
	var (
		verr     *complexity.ValidationError
		tokenErr *auth.TokenError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, messageBody{Message: msgValidation, Errors: verr.Fields}, true
	case errors.Is(err, complexity.ErrNotFound):
		return http.StatusNotFound, messageBody{Message: msgNotFound}, true
	case errors.As(err, &tokenErr):
		return http.StatusUnauthorized, messageBody{Message: msgUnauthenticated}, true
	case errors.Is(err, auth.ErrKeySourceUnavailable):
		return http.StatusServiceUnavailable, messageBody{Message: msgAuthUnavailable}, true
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, messageBody{Message: msgTooLarge}, true
	default:
		return http.StatusInternalServerError, messageBody{Message: msgInternal}, false
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body, expected := mapError(err)
	if !expected {
		a.log.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", audit.RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, code, body)
}
