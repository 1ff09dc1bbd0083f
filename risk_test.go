package authcore

import (
	"testing"
	"time"
)

func TestEvaluateDeviceRisk(t *testing.T) {
	cfg := SecurityConfig{
		MaxLoginAttempts: 3,
		SuspiciousWindow: 24 * time.Hour,
	}
	now := time.Now()

	t.Run("healthy device stays active", func(t *testing.T) {
		device := DeviceRecord{
			Status:        DeviceActive,
			LoginAttempts: 3,
			LastLoginAt:   now.Add(-time.Hour),
		}
		if evaluateDeviceRisk(&device, cfg, now) {
			t.Fatalf("expected not suspicious, got %+v", device)
		}
		if device.Status != DeviceActive {
			t.Fatalf("status must not change, got %s", device.Status)
		}
	})

	t.Run("failure ceiling exceeded", func(t *testing.T) {
		device := DeviceRecord{
			Status:        DeviceActive,
			LoginAttempts: 4,
			LastLoginAt:   now.Add(-time.Hour),
		}
		if !evaluateDeviceRisk(&device, cfg, now) {
			t.Fatal("expected suspicious")
		}
		if device.Status != DeviceSuspicious {
			t.Fatalf("expected SUSPICIOUS, got %s", device.Status)
		}
	})

	t.Run("stale last login", func(t *testing.T) {
		device := DeviceRecord{
			Status:        DeviceActive,
			LoginAttempts: 0,
			LastLoginAt:   now.Add(-25 * time.Hour),
		}
		if !evaluateDeviceRisk(&device, cfg, now) {
			t.Fatal("expected suspicious")
		}
		if device.Status != DeviceSuspicious {
			t.Fatalf("expected SUSPICIOUS, got %s", device.Status)
		}
	})

	t.Run("blocked is terminal", func(t *testing.T) {
		device := DeviceRecord{
			Status:        DeviceBlocked,
			LoginAttempts: 0,
			LastLoginAt:   now,
		}
		if !evaluateDeviceRisk(&device, cfg, now) {
			t.Fatal("blocked device must evaluate as risky")
		}
		if device.Status != DeviceBlocked {
			t.Fatalf("blocked must never reclassify, got %s", device.Status)
		}
	})

	t.Run("trusted flag does not bypass thresholds", func(t *testing.T) {
		device := DeviceRecord{
			Status:        DeviceActive,
			Trusted:       true,
			LoginAttempts: 4,
			LastLoginAt:   now,
		}
		if !evaluateDeviceRisk(&device, cfg, now) {
			t.Fatal("trusted device over the ceiling is still suspicious")
		}
	})
}
