package internaldefs

import (
	authcore "github.com/agilepm-dev/authcore"
)

// CounterDef ties one engine counter to its stable exposition name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginBlockedDevice, Name: "authcore_login_blocked_device_total", Help: "Login attempts rejected from blocked devices."},
	{ID: authcore.MetricDeviceFlaggedSuspicious, Name: "authcore_device_flagged_suspicious_total", Help: "Devices flagged suspicious by risk evaluation."},
	{ID: authcore.MetricDeviceTrusted, Name: "authcore_device_trusted_total", Help: "Administrative device trust actions."},
	{ID: authcore.MetricDeviceBlocked, Name: "authcore_device_blocked_total", Help: "Administrative device block actions."},
	{ID: authcore.MetricMFALoginRequired, Name: "authcore_mfa_login_required_total", Help: "Login flows requiring MFA step-up."},
	{ID: authcore.MetricMFALoginSuccess, Name: "authcore_mfa_login_success_total", Help: "Successful MFA login completions."},
	{ID: authcore.MetricMFALoginFailure, Name: "authcore_mfa_login_failure_total", Help: "Failed MFA login completions."},
	{ID: authcore.MetricTOTPSuccess, Name: "authcore_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Failed backup-code authentications."},
	{ID: authcore.MetricBackupCodesRegenerated, Name: "authcore_backup_codes_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: authcore.MetricMFAEnabled, Name: "authcore_mfa_enabled_total", Help: "MFA enable operations."},
	{ID: authcore.MetricMFADisabled, Name: "authcore_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh-token exchanges."},
	{ID: authcore.MetricRefreshExpired, Name: "authcore_refresh_expired_total", Help: "Refresh attempts with expired tokens."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh-token exchanges."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Successful signups."},
	{ID: authcore.MetricSignupConflict, Name: "authcore_signup_conflict_total", Help: "Signups rejected as duplicate."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Rejected password reset completions."},
	{ID: authcore.MetricAccountDeleted, Name: "authcore_account_deleted_total", Help: "Account delete cascades."},
}
