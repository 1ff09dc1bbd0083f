package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/agilepm-dev/authcore/internal/audit"
	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// Role is one of the fixed principal roles. The permission subpackage maps
// each role to the capability set it grants.
type Role string

const (
	// RoleAdmin holds every capability.
	RoleAdmin Role = "ADMIN"
	// RoleProjectManager manages projects, tasks, sprints, and comments.
	RoleProjectManager Role = "PROJECT_MANAGER"
	// RoleDeveloper reads projects and sprints and writes tasks and comments.
	RoleDeveloper Role = "DEVELOPER"
	// RoleQA mirrors RoleDeveloper for verification work.
	RoleQA Role = "QA"
	// RoleStakeholder has read-only visibility.
	RoleStakeholder Role = "STAKEHOLDER"
)

// Valid reports whether r is a member of the fixed role enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleDeveloper, RoleQA, RoleStakeholder:
		return true
	}
	return false
}

// Principal is the account record owned by the embedding application and
// reached through [UserDirectory]. Credential and MFA fields are mutated only
// through the dedicated Engine flows.
type Principal struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CompanyID    string
	MFASecret    string
	MFAEnabled   bool
	CreatedAt    time.Time
}

// DeviceStatus is the trust state of a device record.
type DeviceStatus = stores.DeviceStatus

const (
	// DeviceActive is the normal state.
	DeviceActive = stores.DeviceActive
	// DeviceSuspicious is entered when the risk evaluator flags the device.
	DeviceSuspicious = stores.DeviceSuspicious
	// DeviceBlocked makes the device ineligible to authenticate until an
	// administrative trust action resets it.
	DeviceBlocked = stores.DeviceBlocked
)

// DeviceRecord tracks one (principal, fingerprint) pair. The fingerprint is
// derived from client IP plus declared browser/OS strings and is advisory
// only: a risk signal, never an authorization boundary.
type DeviceRecord = stores.DeviceRecord

// BackupCode is a single-use MFA fallback credential. Consumed codes keep
// their record with Used set; they are never reported as valid again.
type BackupCode = stores.BackupCode

// RefreshToken is the engine-owned long-lived credential. At most one live
// refresh token exists per principal.
type RefreshToken = stores.RefreshToken

// ClientInfo is the request metadata the boundary attaches to the context.
// Browser and OS are declared by the client and therefore untrusted.
type ClientInfo struct {
	IP         string
	DeviceType string
	Browser    string
	OS         string
}

// Outcome classifies an audit entry.
type Outcome = internalaudit.Outcome

const (
	// OutcomeSuccess marks a completed security-relevant action.
	OutcomeSuccess = internalaudit.OutcomeSuccess
	// OutcomeFailure marks a rejected or failed action.
	OutcomeFailure = internalaudit.OutcomeFailure
	// OutcomeWarning marks an anomaly worth operator attention.
	OutcomeWarning = internalaudit.OutcomeWarning
)

// AuditEntry is one immutable record in the audit trail.
type AuditEntry = internalaudit.Entry

// AuditSink receives audit entries from the engine's async dispatcher in
// addition to the redis-backed trail.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all entries.
type NoOpSink = internalaudit.NoOpSink

// JSONWriterSink writes one JSON-encoded audit entry per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

// Metric constants re-export the engine counter identifiers.
const (
	MetricLoginSuccess            = internalmetrics.MetricLoginSuccess
	MetricLoginFailure            = internalmetrics.MetricLoginFailure
	MetricLoginBlockedDevice      = internalmetrics.MetricLoginBlockedDevice
	MetricDeviceFlaggedSuspicious = internalmetrics.MetricDeviceFlaggedSuspicious
	MetricDeviceTrusted           = internalmetrics.MetricDeviceTrusted
	MetricDeviceBlocked           = internalmetrics.MetricDeviceBlocked
	MetricMFALoginRequired        = internalmetrics.MetricMFALoginRequired
	MetricMFALoginSuccess         = internalmetrics.MetricMFALoginSuccess
	MetricMFALoginFailure         = internalmetrics.MetricMFALoginFailure
	MetricTOTPSuccess             = internalmetrics.MetricTOTPSuccess
	MetricTOTPFailure             = internalmetrics.MetricTOTPFailure
	MetricBackupCodeUsed          = internalmetrics.MetricBackupCodeUsed
	MetricBackupCodeFailed        = internalmetrics.MetricBackupCodeFailed
	MetricBackupCodesRegenerated  = internalmetrics.MetricBackupCodesRegenerated
	MetricMFAEnabled              = internalmetrics.MetricMFAEnabled
	MetricMFADisabled             = internalmetrics.MetricMFADisabled
	MetricRefreshSuccess          = internalmetrics.MetricRefreshSuccess
	MetricRefreshExpired          = internalmetrics.MetricRefreshExpired
	MetricRefreshFailure          = internalmetrics.MetricRefreshFailure
	MetricLogout                  = internalmetrics.MetricLogout
	MetricSignupSuccess           = internalmetrics.MetricSignupSuccess
	MetricSignupConflict          = internalmetrics.MetricSignupConflict
	MetricPasswordResetRequest    = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess    = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure    = internalmetrics.MetricPasswordResetFailure
	MetricAccountDeleted          = internalmetrics.MetricAccountDeleted
	MetricIDCount                 = internalmetrics.MetricIDCount
)

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// UserDirectory is the interface the embedding application implements to give
// the engine access to principal records. Implementations return ErrNotFound
// for unknown principals and ErrBusinessConflict for duplicate emails.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (Principal, error)
	GetByID(ctx context.Context, id string) (Principal, error)
	Create(ctx context.Context, p Principal) (Principal, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetMFASecret(ctx context.Context, id, secret string) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
	ClearMFA(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Hasher is the opaque one-way credential hasher. The password subpackage
// provides an argon2id implementation.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// Mailer dispatches password-reset notifications. Delivery failures are the
// caller's concern; the engine treats the collaborator as fast-failing.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// SignupRequest is the input for [Engine.Signup].
type SignupRequest struct {
	Name      string
	Email     string
	Password  string
	Role      Role
	CompanyID string
}

// LoginResult is returned by [Engine.Login], [Engine.CompleteMFALogin], and
// [Engine.Refresh]. When MFARequired is set only MFAChallenge is populated.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	PrincipalID  string
	Email        string
	Role         Role

	MFARequired  bool
	MFAChallenge string
}

// MFASetup is returned by [Engine.SetupMFA]. ProvisioningURI is the otpauth
// payload an authenticator encodes into a QR image; BackupCodes are the
// plaintext codes, returned exactly once.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	PrincipalID string
	Email       string
	Role        Role
}
