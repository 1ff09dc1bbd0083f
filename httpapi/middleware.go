package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	authcore "github.com/agilepm-dev/authcore"
	"github.com/agilepm-dev/authcore/permission"
)

type identityContextKey struct{}

func identityFromContext(ctx context.Context) (authcore.AuthResult, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(authcore.AuthResult)
	return identity, ok
}

// clientInfoMiddleware attaches request metadata to the context so the
// engine can fingerprint devices and stamp audit entries with a source IP.
func clientInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientInfo(r.Context(), extractClientInfo(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware verifies the bearer token and records the caller as the
// audit actor for everything downstream.
func authMiddleware(engine *authcore.Engine, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, r, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, r, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		identity, err := engine.ValidateAccess(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		ctx = authcore.WithActor(ctx, identity.PrincipalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCapability guards an authenticated route behind one capability from
// the static role table. Unknown roles and capabilities deny.
func requireCapability(table *permission.Table, capability string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing authorization token")
			return
		}
		if !table.Allowed(string(identity.Role), capability) {
			writeEngineError(w, r, authcore.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.statusCode = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLoggingMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logger.Info("http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      recorder.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          clientIP(r),
		})
	})
}

func recoverMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureMessage("panic in request")
				})

				logger.Error("panic_recovered", map[string]any{
					"path":   r.URL.Path,
					"method": r.Method,
					"panic":  rec,
				})

				writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
