package authcore

import (
	"context"
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh token itself is returned unchanged and stays live until its own
// expiry or until a later login replaces it. An expired token is deleted on
// sight and fails with ErrTokenExpired; presenting the same value again fails
// with ErrNotFound.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if e == nil || e.directory == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	record, err := e.refresh.Lookup(ctx, refreshToken)
	if errors.Is(err, stores.ErrNotFound) {
		e.metricInc(internalmetrics.MetricRefreshFailure)
		return LoginResult{}, ErrNotFound
	}
	if err != nil {
		return LoginResult{}, mapStoreErr(err)
	}

	if record.Expired(time.Now()) {
		if err := e.refresh.Delete(ctx, refreshToken); err != nil {
			return LoginResult{}, mapStoreErr(err)
		}
		e.metricInc(internalmetrics.MetricRefreshExpired)
		e.emitAudit(ctx, "TOKEN_REFRESH", "USER", record.PrincipalID, "expired refresh token", OutcomeFailure)
		return LoginResult{}, ErrTokenExpired
	}

	p, err := e.directory.GetByID(ctx, record.PrincipalID)
	if err != nil {
		e.metricInc(internalmetrics.MetricRefreshFailure)
		return LoginResult{}, err
	}

	access, err := e.tokens.CreateAccess(p.ID, p.Email, string(p.Role))
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(internalmetrics.MetricRefreshSuccess)
	e.emitAudit(ctx, "TOKEN_REFRESH", "USER", p.ID, "", OutcomeSuccess)
	return LoginResult{
		AccessToken:  access,
		RefreshToken: record.Token,
		PrincipalID:  p.ID,
		Email:        p.Email,
		Role:         p.Role,
	}, nil
}

// Logout revokes the principal's live refresh token. Outstanding access
// tokens are stateless and stay valid until their own expiry.
func (e *Engine) Logout(ctx context.Context, principalID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.refresh.DeleteForPrincipal(ctx, principalID); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricLogout)
	e.emitAudit(ctx, "LOGOUT", "USER", principalID, "", OutcomeSuccess)
	return nil
}

// ValidateAccess verifies a bearer access token and returns the identity it
// carries. Expired tokens map to ErrTokenExpired; every other verification
// failure maps to ErrTokenInvalid.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (AuthResult, error) {
	if e == nil {
		return AuthResult{}, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return AuthResult{}, ErrTokenExpired
		}
		return AuthResult{}, ErrTokenInvalid
	}

	return AuthResult{
		PrincipalID: claims.UID,
		Email:       claims.Email,
		Role:        Role(claims.Role),
	}, nil
}
