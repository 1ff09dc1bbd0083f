package authcore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a principal, device, token, or company
	// referenced by an operation does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when the caller lacks the permission an
	// operation requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned on a failed credential check. It is
	// deliberately indistinguishable between "unknown principal" and "wrong
	// password".
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired is returned when a refresh or reset token exists but is
	// past its expiry. Distinct from ErrNotFound so callers can prompt a
	// re-authentication instead of a generic error.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed, unknown, or already-consumed
	// tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrBusinessConflict is returned on duplicate resources or invalid state
	// transitions.
	ErrBusinessConflict = errors.New("business conflict")
	// ErrDeviceBlocked is returned when authentication is attempted from a
	// blocked device, regardless of credential correctness.
	ErrDeviceBlocked = errors.New("device blocked")

	// ErrMFARequired is returned by Login when the principal has MFA enabled;
	// the login must be completed through CompleteMFALogin.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFANotConfigured is returned by TOTP and backup-code verification
	// when the principal has no MFA secret.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAChallengeInvalid is returned when an MFA login challenge is
	// unknown or already consumed.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrMFAChallengeExpired is returned when an MFA login challenge is past
	// its TTL.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAAttemptsExceeded is returned when an MFA login challenge has
	// consumed its attempt budget.
	ErrMFAAttemptsExceeded = errors.New("mfa challenge attempts exceeded")

	// ErrStoreUnavailable wraps redis failures in engine-owned stores.
	ErrStoreUnavailable = errors.New("security store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrValidationFailed is the sentinel matched by errors.Is for any
// *ValidationError.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError aggregates constraint violations field by field instead of
// failing on the first one. It matches ErrValidationFailed under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty, appendable ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records one violated constraint for the named field. Later messages for
// the same field overwrite earlier ones.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = message
}

// Empty reports whether no violations were recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// ErrOrNil returns v when at least one violation was recorded, nil otherwise.
func (v *ValidationError) ErrOrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	if v.Empty() {
		return "validation failed"
	}

	fields := make([]string, 0, len(v.Fields))
	for field := range v.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, field := range fields {
		fmt.Fprintf(&b, " %s: %s;", field, v.Fields[field])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Is lets errors.Is(err, ErrValidationFailed) match any ValidationError.
func (v *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
