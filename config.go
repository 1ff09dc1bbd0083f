package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config carries every recognized engine option. Instances are configured
// before [Builder.Build] and treated as immutable afterwards.
type Config struct {
	Security      SecurityConfig
	TOTP          TOTPConfig
	BackupCodes   BackupCodeConfig
	JWT           JWTConfig
	MFALogin      MFALoginConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// SecurityConfig holds the adaptive-risk thresholds.
type SecurityConfig struct {
	// MaxLoginAttempts is the consecutive-failure ceiling; a device whose
	// counter exceeds it is flagged suspicious.
	MaxLoginAttempts int
	// SuspiciousWindow is the staleness window; a device whose last login is
	// older than now minus the window is flagged suspicious.
	SuspiciousWindow time.Duration
}

// TOTPConfig drives provisioning URIs and code verification.
type TOTPConfig struct {
	Issuer    string
	Algorithm string // "SHA1" (default), "SHA256", or "SHA512"
	Digits    int
	Period    int // seconds per time step
	Skew      int // adjacent steps tolerated on verify
}

// BackupCodeConfig controls single-use fallback codes.
type BackupCodeConfig struct {
	// Count is the size of a freshly generated set.
	Count int
	// Digits is the code length; codes are numeric.
	Digits int
	// Validity is how long a generated code stays usable.
	Validity time.Duration
}

// JWTConfig configures stateless access tokens and the refresh-token
// lifetime.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// MFALoginConfig bounds the pending challenge created when a login hits an
// MFA-enabled principal.
type MFALoginConfig struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
}

// PasswordResetConfig controls the single-use reset token class.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// AuditConfig controls the async sink dispatcher. The redis-backed trail is
// always written synchronously and is not affected by these knobs.
type AuditConfig struct {
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the original deployment shipped
// with. Callers override fields before handing it to [Builder.WithConfig].
func DefaultConfig() Config {
	return Config{
		Security: SecurityConfig{
			MaxLoginAttempts: 3,
			SuspiciousWindow: 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:    "AgilePM",
			Algorithm: "SHA1",
			Digits:    6,
			Period:    30,
			Skew:      1,
		},
		BackupCodes: BackupCodeConfig{
			Count:    5,
			Digits:   6,
			Validity: 30 * 24 * time.Hour,
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "agilepm",
			Leeway:        30 * time.Second,
		},
		MFALogin: MFALoginConfig{
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Security.MaxLoginAttempts <= 0 {
		return errors.New("config: MaxLoginAttempts must be positive")
	}
	if cfg.Security.SuspiciousWindow <= 0 {
		return errors.New("config: SuspiciousWindow must be positive")
	}
	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 8 {
		return errors.New("config: TOTP digits must be 6..8")
	}
	if cfg.TOTP.Period <= 0 {
		return errors.New("config: TOTP period must be positive")
	}
	if cfg.TOTP.Skew < 0 || cfg.TOTP.Skew > 2 {
		return errors.New("config: TOTP skew must be 0..2")
	}
	switch strings.ToUpper(cfg.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("config: unsupported TOTP algorithm")
	}
	if cfg.BackupCodes.Count <= 0 || cfg.BackupCodes.Count > 20 {
		return errors.New("config: backup code count must be 1..20")
	}
	if cfg.BackupCodes.Digits < 6 || cfg.BackupCodes.Digits > 10 {
		return errors.New("config: backup code digits must be 6..10")
	}
	if cfg.BackupCodes.Validity <= 0 {
		return errors.New("config: backup code validity must be positive")
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("config: JWT TTLs must be positive")
	}
	if cfg.JWT.RefreshTTL <= cfg.JWT.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if cfg.MFALogin.ChallengeTTL <= 0 {
		return errors.New("config: MFA challenge TTL must be positive")
	}
	if cfg.MFALogin.MaxAttempts <= 0 {
		return errors.New("config: MFA challenge attempts must be positive")
	}
	if cfg.PasswordReset.TokenTTL <= 0 {
		return errors.New("config: reset token TTL must be positive")
	}
	return nil
}
