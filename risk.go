package authcore

import "time"

// evaluateDeviceRisk classifies a device record against the configured
// thresholds: the consecutive-failure ceiling and the staleness window.
//
// When the record classifies as suspicious its Status is set to
// DeviceSuspicious as a side effect; the caller persists afterwards. A
// BLOCKED device is never reclassified here; the transition out of BLOCKED
// is an administrative trust action only.
func evaluateDeviceRisk(device *DeviceRecord, cfg SecurityConfig, now time.Time) bool {
	if device.Status == DeviceBlocked {
		return true
	}

	if device.LoginAttempts > cfg.MaxLoginAttempts {
		device.Status = DeviceSuspicious
		return true
	}

	if device.LastLoginAt.Before(now.Add(-cfg.SuspiciousWindow)) {
		device.Status = DeviceSuspicious
		return true
	}

	return false
}
