package authcore

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"

	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// Signup creates a principal with a hashed credential. The email must be
// unique within the directory; duplicates fail with ErrBusinessConflict.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (Principal, error) {
	if e == nil || e.directory == nil {
		return Principal{}, ErrEngineNotReady
	}

	if err := validateSignup(req); err != nil {
		return Principal{}, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		verr := NewValidationError()
		verr.Add("password", err.Error())
		return Principal{}, verr
	}

	created, err := e.directory.Create(ctx, Principal{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		CompanyID:    req.CompanyID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrBusinessConflict) {
			e.metricInc(internalmetrics.MetricSignupConflict)
		}
		return Principal{}, err
	}

	e.metricInc(internalmetrics.MetricSignupSuccess)
	e.emitAudit(ctx, "USER_SIGNUP", "USER", created.ID, created.Email, OutcomeSuccess)
	return created, nil
}

func validateSignup(req SignupRequest) error {
	verr := NewValidationError()
	if req.Name == "" {
		verr.Add("name", "must not be empty")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		verr.Add("email", "must be a valid email address")
	}
	if len(req.Password) < 8 {
		verr.Add("password", "must be at least 8 characters")
	}
	if !req.Role.Valid() {
		verr.Add("role", "unknown role")
	}
	return verr.ErrOrNil()
}

// Login checks the credential and runs the device-trust flow. A blocked
// device fails before the password is even examined. When the principal has
// MFA enabled the returned result carries a pending challenge id and the
// error is ErrMFARequired; the login completes through CompleteMFALogin.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (LoginResult, error) {
	if e == nil || e.directory == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	info := clientInfoFromContext(ctx)
	fingerprint := deviceFingerprint(info)

	p, err := e.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(internalmetrics.MetricLoginFailure)
			e.emitAudit(ctx, "LOGIN", "USER", email, "unknown principal", OutcomeFailure)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if device, derr := e.devices.Get(ctx, p.ID, fingerprint); derr == nil && device.Status == DeviceBlocked {
		e.metricInc(internalmetrics.MetricLoginBlockedDevice)
		e.emitAudit(ctx, "LOGIN", "DEVICE", device.ID, "blocked device", OutcomeWarning)
		return LoginResult{}, ErrDeviceBlocked
	} else if derr != nil && !errors.Is(derr, stores.ErrNotFound) {
		return LoginResult{}, mapStoreErr(derr)
	}

	match, err := e.hasher.Verify(plainPassword, p.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !match {
		if err := e.recordFailedAttempt(ctx, p.ID, fingerprint, info); err != nil {
			return LoginResult{}, err
		}
		e.metricInc(internalmetrics.MetricLoginFailure)
		e.emitAudit(ctx, "LOGIN", "USER", p.ID, "wrong password", OutcomeFailure)
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := e.registerOrRefreshDevice(ctx, p.ID, fingerprint, info); err != nil {
		return LoginResult{}, err
	}

	if p.MFAEnabled {
		challengeID := uuid.NewString()
		record := stores.ChallengeRecord{
			PrincipalID: p.ID,
			Fingerprint: fingerprint,
			ExpiresAt:   time.Now().Add(e.config.MFALogin.ChallengeTTL),
		}
		if err := e.challenges.Create(ctx, challengeID, record, e.config.MFALogin.ChallengeTTL); err != nil {
			return LoginResult{}, mapStoreErr(err)
		}

		e.metricInc(internalmetrics.MetricMFALoginRequired)
		e.emitAudit(ctx, "MFA_LOGIN_CHALLENGE", "USER", p.ID, "", OutcomeSuccess)
		return LoginResult{
			PrincipalID:  p.ID,
			Email:        p.Email,
			Role:         p.Role,
			MFARequired:  true,
			MFAChallenge: challengeID,
		}, ErrMFARequired
	}

	result, err := e.issueTokens(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(internalmetrics.MetricLoginSuccess)
	e.emitAudit(ctx, "LOGIN", "USER", p.ID, "", OutcomeSuccess)
	return result, nil
}

// registerOrRefreshDevice finds or creates the device record for a
// successful login: the failure counter resets, last-seen time and IP are
// updated. The trust status is left alone; only administrative actions move
// a device out of SUSPICIOUS or BLOCKED.
func (e *Engine) registerOrRefreshDevice(ctx context.Context, principalID, fingerprint string, info ClientInfo) error {
	now := time.Now().UTC()

	_, err := e.devices.Update(ctx, principalID, fingerprint,
		func() DeviceRecord {
			return DeviceRecord{
				ID:          uuid.NewString(),
				DeviceType:  info.DeviceType,
				Browser:     info.Browser,
				OS:          info.OS,
				Status:      DeviceActive,
				LastLoginAt: now,
			}
		},
		func(record *DeviceRecord) error {
			if record.Status == DeviceBlocked {
				return ErrDeviceBlocked
			}
			record.LoginAttempts = 0
			record.LastLoginAt = now
			record.IPAddress = info.IP
			return nil
		})
	if errors.Is(err, ErrDeviceBlocked) {
		return ErrDeviceBlocked
	}
	return mapStoreErr(err)
}

// recordFailedAttempt increments the device failure counter and runs the
// risk evaluation. A device crossing into SUSPICIOUS produces exactly one
// WARNING audit entry for that transition.
func (e *Engine) recordFailedAttempt(ctx context.Context, principalID, fingerprint string, info ClientInfo) error {
	now := time.Now().UTC()
	var flagged bool
	var deviceID string

	_, err := e.devices.Update(ctx, principalID, fingerprint,
		func() DeviceRecord {
			return DeviceRecord{
				ID:          uuid.NewString(),
				DeviceType:  info.DeviceType,
				Browser:     info.Browser,
				OS:          info.OS,
				Status:      DeviceActive,
				LastLoginAt: now,
			}
		},
		func(record *DeviceRecord) error {
			record.LoginAttempts++
			record.IPAddress = info.IP

			before := record.Status
			evaluateDeviceRisk(record, e.config.Security, now)
			flagged = before != DeviceSuspicious && record.Status == DeviceSuspicious
			deviceID = record.ID
			return nil
		})
	if err != nil {
		return mapStoreErr(err)
	}

	if flagged {
		e.metricInc(internalmetrics.MetricDeviceFlaggedSuspicious)
		e.emitAudit(ctx, "SUSPICIOUS_LOGIN", "DEVICE", deviceID, "risk threshold crossed", OutcomeWarning)
	}
	return nil
}

// issueTokens mints the access token and rotates the refresh token. Issuing
// destroys the principal's previous refresh token.
func (e *Engine) issueTokens(ctx context.Context, p Principal) (LoginResult, error) {
	access, err := e.tokens.CreateAccess(p.ID, p.Email, string(p.Role))
	if err != nil {
		return LoginResult{}, err
	}

	refresh := RefreshToken{
		Token:       uuid.NewString(),
		PrincipalID: p.ID,
		ExpiresAt:   time.Now().Add(e.config.JWT.RefreshTTL),
	}
	if err := e.refresh.Issue(ctx, refresh, e.config.JWT.RefreshTTL); err != nil {
		return LoginResult{}, mapStoreErr(err)
	}

	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		PrincipalID:  p.ID,
		Email:        p.Email,
		Role:         p.Role,
	}, nil
}
