package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	authcore "github.com/agilepm-dev/authcore"
)

const maxJSONBodyBytes = 1 << 20

// Handler holds the route implementations. All state lives in the engine.
type Handler struct {
	engine *authcore.Engine
	logger *Logger
}

func NewHandler(engine *authcore.Engine, logger *Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

type signupRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	created, err := h.engine.Signup(r.Context(), authcore.SignupRequest{
		Name:      strings.TrimSpace(body.Name),
		Email:     strings.TrimSpace(body.Email),
		Password:  body.Password,
		Role:      authcore.Role(strings.ToUpper(strings.TrimSpace(body.Role))),
		CompanyID: strings.TrimSpace(body.CompanyID),
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    created.ID,
		"name":  created.Name,
		"email": created.Email,
		"role":  created.Role,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	MFARequired  bool   `json:"mfa_required,omitempty"`
	MFAChallenge string `json:"mfa_challenge,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.engine.Login(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if errors.Is(err, authcore.ErrMFARequired) {
		writeJSON(w, http.StatusOK, loginResponse{
			MFARequired:  true,
			MFAChallenge: result.MFAChallenge,
		})
		return
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type mfaLoginRequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

func (h *Handler) CompleteMFALogin(w http.ResponseWriter, r *http.Request) {
	var body mfaLoginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.engine.CompleteMFALogin(r.Context(), strings.TrimSpace(body.Challenge), strings.TrimSpace(body.Code))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "missing refresh token")
		return
	}

	result, err := h.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.engine.Logout(r.Context(), identity.PrincipalID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    identity.PrincipalID,
		"email": identity.Email,
		"role":  identity.Role,
	})
}

func (h *Handler) SetupMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	setup, err := h.engine.SetupMFA(r.Context(), identity.PrincipalID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"backup_codes":     setup.BackupCodes,
	})
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) EnableMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body mfaCodeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.EnableMFA(r.Context(), identity.PrincipalID, strings.TrimSpace(body.Code)); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mfa enabled"})
}

func (h *Handler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.engine.DisableMFA(r.Context(), identity.PrincipalID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mfa disabled"})
}

// ValidateMFACode accepts either factor: the code is tried as TOTP first and
// as a single-use backup code second, mirroring the MFA login completion.
func (h *Handler) ValidateMFACode(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body mfaCodeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	code := strings.TrimSpace(body.Code)

	valid, err := h.engine.ValidateTOTP(r.Context(), identity.PrincipalID, code)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if !valid {
		valid, err = h.engine.ValidateBackupCode(r.Context(), identity.PrincipalID, code)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	codes, err := h.engine.RegenerateBackupCodes(r.Context(), identity.PrincipalID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	devices, err := h.engine.Devices(r.Context(), identity.PrincipalID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Handler) TrustDevice(w http.ResponseWriter, r *http.Request) {
	record, err := h.engine.TrustDevice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) BlockDevice(w http.ResponseWriter, r *http.Request) {
	record, err := h.engine.BlockDevice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers uniformly whether or not the email exists, so the
// endpoint cannot be used for account enumeration.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.engine.InitiatePasswordReset(r.Context(), strings.TrimSpace(body.Email))
	if err != nil && !errors.Is(err, authcore.ErrNotFound) {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset email sent if the account exists"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.CompletePasswordReset(r.Context(), strings.TrimSpace(body.Token), body.Password); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.engine.DeleteAccount(r.Context(), identity.PrincipalID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "account deleted"})
}

// AuditQuery serves the trail, filtered by actor, entity type, or a time
// range. Filters combine narrowest-first: actor wins over entity type wins
// over range; without any filter the last 24 hours are returned.
func (h *Handler) AuditQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var (
		entries []authcore.AuditEntry
		err     error
	)
	switch {
	case query.Get("actor") != "":
		entries, err = h.engine.AuditByActor(ctx, query.Get("actor"))
	case query.Get("entity_type") != "":
		entries, err = h.engine.AuditByEntityType(ctx, query.Get("entity_type"))
	case query.Get("from") != "" || query.Get("to") != "":
		from, to, perr := parseAuditRange(query.Get("from"), query.Get("to"))
		if perr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid time range")
			return
		}
		entries, err = h.engine.AuditBetween(ctx, from, to)
	default:
		now := time.Now().UTC()
		entries, err = h.engine.AuditBetween(ctx, now.Add(-24*time.Hour), now)
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	if entries == nil {
		entries = []authcore.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseAuditRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()

	var err error
	if fromRaw != "" {
		from, err = time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toRaw != "" {
		to, err = time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
