package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// InitiatePasswordReset issues a single-use reset token and mails it to the
// principal. An unknown email fails with ErrNotFound here; boundaries that
// want to avoid account enumeration flatten that into a uniform success.
func (e *Engine) InitiatePasswordReset(ctx context.Context, email string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if e.mailer == nil {
		return ErrEngineNotReady
	}

	p, err := e.directory.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token := uuid.NewString()
	record := stores.ResetRecord{
		PrincipalID: p.ID,
		ExpiresAt:   time.Now().Add(e.config.PasswordReset.TokenTTL),
	}
	if err := e.resets.Save(ctx, token, record, e.config.PasswordReset.TokenTTL); err != nil {
		return mapStoreErr(err)
	}

	if err := e.mailer.SendPasswordReset(ctx, p.Email, token); err != nil {
		return err
	}

	e.metricInc(internalmetrics.MetricPasswordResetRequest)
	e.emitAudit(ctx, "PASSWORD_RESET_REQUESTED", "USER", p.ID, "", OutcomeSuccess)
	return nil
}

// CompletePasswordReset consumes the reset token and applies the new
// credential. Consuming revokes the principal's live refresh token so stolen
// sessions do not outlive a reset. Unknown or already-consumed tokens fail
// with ErrTokenInvalid, expired ones with ErrTokenExpired.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if len(newPassword) < 8 {
		verr := NewValidationError()
		verr.Add("password", "must be at least 8 characters")
		return verr
	}

	record, err := e.resets.Consume(ctx, token, time.Now())
	switch {
	case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrResetUsed):
		e.metricInc(internalmetrics.MetricPasswordResetFailure)
		e.emitAudit(ctx, "PASSWORD_RESET", "TOKEN", "", "invalid reset token", OutcomeFailure)
		return ErrTokenInvalid
	case errors.Is(err, stores.ErrResetExpired):
		e.metricInc(internalmetrics.MetricPasswordResetFailure)
		e.emitAudit(ctx, "PASSWORD_RESET", "USER", "", "expired reset token", OutcomeFailure)
		return ErrTokenExpired
	case err != nil:
		return mapStoreErr(err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.directory.UpdatePasswordHash(ctx, record.PrincipalID, hash); err != nil {
		return err
	}
	if err := e.refresh.DeleteForPrincipal(ctx, record.PrincipalID); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricPasswordResetSuccess)
	e.emitAudit(ctx, "PASSWORD_RESET", "USER", record.PrincipalID, "", OutcomeSuccess)
	return nil
}
