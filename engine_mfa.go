package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// SetupMFA provisions a fresh TOTP secret and a new backup-code set for the
// principal. The plaintext backup codes are returned exactly once; MFA stays
// disabled until EnableMFA confirms one successful code.
func (e *Engine) SetupMFA(ctx context.Context, principalID string) (MFASetup, error) {
	if e == nil || e.directory == nil {
		return MFASetup{}, ErrEngineNotReady
	}

	p, err := e.directory.GetByID(ctx, principalID)
	if err != nil {
		return MFASetup{}, err
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return MFASetup{}, err
	}
	uri, err := e.totp.ProvisionURI(p.Email, secret)
	if err != nil {
		return MFASetup{}, err
	}

	if err := e.directory.SetMFASecret(ctx, p.ID, secret); err != nil {
		return MFASetup{}, err
	}

	codes, plain, err := e.generateBackupCodes()
	if err != nil {
		return MFASetup{}, err
	}
	if err := e.backupCodes.Replace(ctx, p.ID, codes, e.config.BackupCodes.Validity); err != nil {
		return MFASetup{}, mapStoreErr(err)
	}

	e.emitAudit(ctx, "MFA_SETUP", "USER", p.ID, "", OutcomeSuccess)
	return MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     plain,
	}, nil
}

// ValidateTOTP verifies a TOTP code against the principal's stored secret.
// Every call is audited, success and failure alike.
func (e *Engine) ValidateTOTP(ctx context.Context, principalID, code string) (bool, error) {
	if e == nil || e.directory == nil {
		return false, ErrEngineNotReady
	}

	p, err := e.directory.GetByID(ctx, principalID)
	if err != nil {
		return false, err
	}
	if p.MFASecret == "" {
		return false, ErrMFANotConfigured
	}

	ok, err := e.totp.Verify(p.MFASecret, code, time.Now())
	if err != nil {
		return false, err
	}

	if ok {
		e.metricInc(internalmetrics.MetricTOTPSuccess)
		e.emitAudit(ctx, "MFA_VALIDATION", "USER", p.ID, "totp", OutcomeSuccess)
	} else {
		e.metricInc(internalmetrics.MetricTOTPFailure)
		e.emitAudit(ctx, "MFA_VALIDATION", "USER", p.ID, "totp", OutcomeFailure)
	}
	return ok, nil
}

// ValidateBackupCode consumes a single-use backup code. A consumed or
// expired code never validates again.
func (e *Engine) ValidateBackupCode(ctx context.Context, principalID, code string) (bool, error) {
	if e == nil || e.directory == nil {
		return false, ErrEngineNotReady
	}

	p, err := e.directory.GetByID(ctx, principalID)
	if err != nil {
		return false, err
	}
	if p.MFASecret == "" {
		return false, ErrMFANotConfigured
	}

	err = e.backupCodes.Consume(ctx, p.ID, code, time.Now())
	if errors.Is(err, stores.ErrCodeInvalid) {
		e.metricInc(internalmetrics.MetricBackupCodeFailed)
		e.emitAudit(ctx, "MFA_BACKUP_CODE_FAILED", "USER", p.ID, "", OutcomeFailure)
		return false, nil
	}
	if err != nil {
		return false, mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricBackupCodeUsed)
	e.emitAudit(ctx, "MFA_BACKUP_CODE_USED", "USER", p.ID, "", OutcomeSuccess)
	return true, nil
}

// EnableMFA turns the MFA flag on, gated on one successful TOTP validation
// with the freshly provisioned secret. A wrong code leaves the flag off.
func (e *Engine) EnableMFA(ctx context.Context, principalID, code string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	ok, err := e.ValidateTOTP(ctx, principalID, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := e.directory.SetMFAEnabled(ctx, principalID, true); err != nil {
		return err
	}

	e.metricInc(internalmetrics.MetricMFAEnabled)
	e.emitAudit(ctx, "MFA_ENABLED", "USER", principalID, "", OutcomeSuccess)
	return nil
}

// DisableMFA clears the secret and the enabled flag and destroys the backup
// codes.
func (e *Engine) DisableMFA(ctx context.Context, principalID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if err := e.directory.ClearMFA(ctx, principalID); err != nil {
		return err
	}
	if err := e.backupCodes.DeleteForPrincipal(ctx, principalID); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricMFADisabled)
	e.emitAudit(ctx, "MFA_DISABLED", "USER", principalID, "", OutcomeSuccess)
	return nil
}

// RegenerateBackupCodes replaces the principal's backup-code set with a
// fresh one, invalidating any unused codes from the previous set. The new
// plaintext codes are returned exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principalID string) ([]string, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	p, err := e.directory.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.MFASecret == "" {
		return nil, ErrMFANotConfigured
	}

	codes, plain, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := e.backupCodes.Replace(ctx, p.ID, codes, e.config.BackupCodes.Validity); err != nil {
		return nil, mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricBackupCodesRegenerated)
	e.emitAudit(ctx, "MFA_BACKUP_CODES_REGENERATED", "USER", p.ID, "", OutcomeSuccess)
	return plain, nil
}

// CompleteMFALogin finishes a pending MFA login challenge. The code is tried
// as TOTP first and as a backup code second. Wrong codes consume one attempt
// from the challenge budget; exhausting the budget destroys the challenge.
func (e *Engine) CompleteMFALogin(ctx context.Context, challengeID, code string) (LoginResult, error) {
	if e == nil || e.directory == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	challenge, err := e.challenges.Get(ctx, challengeID)
	if errors.Is(err, stores.ErrNotFound) {
		return LoginResult{}, ErrMFAChallengeInvalid
	}
	if err != nil {
		return LoginResult{}, mapStoreErr(err)
	}

	if time.Now().After(challenge.ExpiresAt) {
		_ = e.challenges.Delete(ctx, challengeID)
		return LoginResult{}, ErrMFAChallengeExpired
	}

	ok, err := e.ValidateTOTP(ctx, challenge.PrincipalID, code)
	if err != nil && !errors.Is(err, ErrMFANotConfigured) {
		return LoginResult{}, err
	}
	if !ok {
		ok, err = e.ValidateBackupCode(ctx, challenge.PrincipalID, code)
		if err != nil && !errors.Is(err, ErrMFANotConfigured) {
			return LoginResult{}, err
		}
	}

	if !ok {
		e.metricInc(internalmetrics.MetricMFALoginFailure)
		ferr := e.challenges.RecordFailure(ctx, challengeID, e.config.MFALogin.MaxAttempts)
		switch {
		case errors.Is(ferr, stores.ErrChallengeAttempts):
			e.emitAudit(ctx, "MFA_LOGIN", "USER", challenge.PrincipalID, "attempt budget exhausted", OutcomeWarning)
			return LoginResult{}, ErrMFAAttemptsExceeded
		case errors.Is(ferr, stores.ErrNotFound):
			return LoginResult{}, ErrMFAChallengeInvalid
		case ferr != nil:
			return LoginResult{}, mapStoreErr(ferr)
		}
		e.emitAudit(ctx, "MFA_LOGIN", "USER", challenge.PrincipalID, "", OutcomeFailure)
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := e.challenges.Delete(ctx, challengeID); err != nil {
		return LoginResult{}, mapStoreErr(err)
	}

	p, err := e.directory.GetByID(ctx, challenge.PrincipalID)
	if err != nil {
		return LoginResult{}, err
	}

	result, err := e.issueTokens(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(internalmetrics.MetricMFALoginSuccess)
	e.emitAudit(ctx, "MFA_LOGIN", "USER", p.ID, "", OutcomeSuccess)
	return result, nil
}

func (e *Engine) generateBackupCodes() ([]stores.BackupCode, []string, error) {
	now := time.Now().UTC()
	expires := now.Add(e.config.BackupCodes.Validity)

	max := big.NewInt(1)
	for i := 0; i < e.config.BackupCodes.Digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	codes := make([]stores.BackupCode, 0, e.config.BackupCodes.Count)
	plain := make([]string, 0, e.config.BackupCodes.Count)
	for len(codes) < e.config.BackupCodes.Count {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, nil, err
		}
		code := fmt.Sprintf("%0*d", e.config.BackupCodes.Digits, n)

		duplicate := false
		for _, existing := range plain {
			if existing == code {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		codes = append(codes, stores.BackupCode{
			Code:      code,
			CreatedAt: now,
			ExpiresAt: expires,
		})
		plain = append(plain, code)
	}
	return codes, plain, nil
}
