package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	authcore "github.com/agilepm-dev/authcore"
)

// errorEnvelope is the structured error body every endpoint returns.
type errorEnvelope struct {
	Status    int               `json:"status"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Path      string            `json:"path"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorEnvelope{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, verr *authcore.ValidationError) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Status:    http.StatusBadRequest,
		Message:   "validation failed",
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		Fields:    verr.Fields,
	})
}

// writeEngineError maps the engine taxonomy onto HTTP statuses. Unexpected
// errors are captured in sentry and flattened to a generic 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *authcore.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, r, verr)
		return
	}

	switch {
	case errors.Is(err, authcore.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authcore.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "insufficient permission")
	case errors.Is(err, authcore.ErrDeviceBlocked):
		writeError(w, r, http.StatusForbidden, "device blocked")
	case errors.Is(err, authcore.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, authcore.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, authcore.ErrBusinessConflict):
		writeError(w, r, http.StatusConflict, "resource conflict")
	case errors.Is(err, authcore.ErrMFANotConfigured):
		writeError(w, r, http.StatusBadRequest, "mfa not configured")
	case errors.Is(err, authcore.ErrMFAChallengeInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid mfa challenge")
	case errors.Is(err, authcore.ErrMFAChallengeExpired):
		writeError(w, r, http.StatusUnauthorized, "mfa challenge expired")
	case errors.Is(err, authcore.ErrMFAAttemptsExceeded):
		writeError(w, r, http.StatusTooManyRequests, "mfa attempts exceeded")
	case errors.Is(err, authcore.ErrStoreUnavailable):
		sentry.CaptureException(err)
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		sentry.CaptureException(err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
