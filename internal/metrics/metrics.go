package metrics

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginBlockedDevice
	MetricDeviceFlaggedSuspicious
	MetricDeviceTrusted
	MetricDeviceBlocked
	MetricMFALoginRequired
	MetricMFALoginSuccess
	MetricMFALoginFailure
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricMFAEnabled
	MetricMFADisabled
	MetricRefreshSuccess
	MetricRefreshExpired
	MetricRefreshFailure
	MetricLogout
	MetricSignupSuccess
	MetricSignupConflict
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricAccountDeleted

	// MetricIDCount is the number of defined counters; keep last.
	MetricIDCount
)

var names = [MetricIDCount]string{
	MetricLoginSuccess:            "login_success",
	MetricLoginFailure:            "login_failure",
	MetricLoginBlockedDevice:      "login_blocked_device",
	MetricDeviceFlaggedSuspicious: "device_flagged_suspicious",
	MetricDeviceTrusted:           "device_trusted",
	MetricDeviceBlocked:           "device_blocked",
	MetricMFALoginRequired:        "mfa_login_required",
	MetricMFALoginSuccess:         "mfa_login_success",
	MetricMFALoginFailure:         "mfa_login_failure",
	MetricTOTPSuccess:             "totp_success",
	MetricTOTPFailure:             "totp_failure",
	MetricBackupCodeUsed:          "backup_code_used",
	MetricBackupCodeFailed:        "backup_code_failed",
	MetricBackupCodesRegenerated:  "backup_codes_regenerated",
	MetricMFAEnabled:              "mfa_enabled",
	MetricMFADisabled:             "mfa_disabled",
	MetricRefreshSuccess:          "refresh_success",
	MetricRefreshExpired:          "refresh_expired",
	MetricRefreshFailure:          "refresh_failure",
	MetricLogout:                  "logout",
	MetricSignupSuccess:           "signup_success",
	MetricSignupConflict:          "signup_conflict",
	MetricPasswordResetRequest:    "password_reset_request",
	MetricPasswordResetSuccess:    "password_reset_success",
	MetricPasswordResetFailure:    "password_reset_failure",
	MetricAccountDeleted:          "account_deleted",
}

// Name returns the stable exposition name for id, or "" for unknown ids.
func Name(id MetricID) string {
	if id >= MetricIDCount {
		return ""
	}
	return names[id]
}

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls whether counters record anything.
type Config struct {
	Enabled bool
}

// Metrics holds cache-line-padded atomic counters. The write path is
// allocation-free.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// New creates a Metrics instance. When cfg.Enabled is false all operations
// are no-ops.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter identified by id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot is a point-in-time copy of all counters, indexed by MetricID.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
