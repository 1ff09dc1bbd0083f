package stores

import "errors"

var (
	// ErrUnavailable wraps transport-level redis failures.
	ErrUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a CAS loop exhausts its retries.
	ErrConflict = errors.New("concurrent modification")

	// ErrResetUsed is returned when a reset token was already consumed.
	ErrResetUsed = errors.New("reset token already used")
	// ErrResetExpired is returned when a reset token is past its expiry.
	ErrResetExpired = errors.New("reset token expired")

	// ErrCodeInvalid is returned when no live backup code matches.
	ErrCodeInvalid = errors.New("backup code invalid")

	// ErrChallengeAttempts is returned when an MFA challenge exhausts its
	// attempt budget and is destroyed.
	ErrChallengeAttempts = errors.New("challenge attempts exceeded")
)

const casRetries = 4
