package httpapi

import (
	"net/http"
	"time"

	authcore "github.com/agilepm-dev/authcore"
	"github.com/agilepm-dev/authcore/permission"
)

// Router assembles the full route table with logging, panic recovery,
// client metadata extraction, bearer authentication, and capability guards
// applied in that order.
func Router(engine *authcore.Engine, table *permission.Table, logger *Logger) http.Handler {
	h := NewHandler(engine, logger)
	mux := http.NewServeMux()

	authed := func(next http.HandlerFunc) http.Handler {
		return authMiddleware(engine, next)
	}
	guarded := func(capability string, next http.HandlerFunc) http.Handler {
		return authMiddleware(engine, requireCapability(table, capability, next))
	}

	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/login/mfa", h.CompleteMFALogin)
	mux.HandleFunc("POST /api/auth/refresh-token", h.Refresh)
	mux.HandleFunc("POST /api/auth/password/forgot", h.ForgotPassword)
	mux.HandleFunc("POST /api/auth/password/reset", h.ResetPassword)
	mux.HandleFunc("GET /health", h.Health)

	mux.Handle("POST /api/auth/logout", authed(h.Logout))
	mux.Handle("GET /api/auth/me", authed(h.Me))
	mux.Handle("DELETE /api/auth/account", authed(h.DeleteAccount))

	mux.Handle("POST /api/auth/mfa/setup", authed(h.SetupMFA))
	mux.Handle("POST /api/auth/mfa/enable", authed(h.EnableMFA))
	mux.Handle("POST /api/auth/mfa/disable", authed(h.DisableMFA))
	mux.Handle("POST /api/auth/mfa/validate", authed(h.ValidateMFACode))
	mux.Handle("POST /api/auth/mfa/backup/regenerate", authed(h.RegenerateBackupCodes))

	mux.Handle("GET /api/auth/devices", authed(h.ListDevices))
	mux.Handle("POST /api/auth/devices/{id}/trust", guarded(permission.UserWrite, h.TrustDevice))
	mux.Handle("POST /api/auth/devices/{id}/block", guarded(permission.UserWrite, h.BlockDevice))

	mux.Handle("GET /api/audit", guarded(permission.UserRead, h.AuditQuery))

	return recoverMiddleware(logger, requestLoggingMiddleware(logger, clientInfoMiddleware(mux)))
}

// Health reports liveness. Store reachability surfaces through the flows
// themselves; this endpoint stays dependency-free so orchestrators can probe
// it cheaply.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
