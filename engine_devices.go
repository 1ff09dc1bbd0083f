package authcore

import (
	"context"

	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
)

// Devices lists every device record seen for the principal.
func (e *Engine) Devices(ctx context.Context, principalID string) ([]DeviceRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.devices.List(ctx, principalID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return records, nil
}

// TrustDevice marks a device trusted and returns it to ACTIVE, clearing the
// failure counter. This is the only path out of BLOCKED.
func (e *Engine) TrustDevice(ctx context.Context, deviceID string) (DeviceRecord, error) {
	if e == nil {
		return DeviceRecord{}, ErrEngineNotReady
	}

	record, err := e.devices.UpdateByID(ctx, deviceID, func(record *DeviceRecord) error {
		record.Trusted = true
		record.Status = DeviceActive
		record.LoginAttempts = 0
		return nil
	})
	if err != nil {
		return DeviceRecord{}, mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricDeviceTrusted)
	e.emitAudit(ctx, "DEVICE_TRUSTED", "DEVICE", record.ID, record.Fingerprint, OutcomeSuccess)
	return record, nil
}

// BlockDevice moves a device to BLOCKED. The device becomes ineligible to
// authenticate immediately, regardless of credential correctness, until an
// administrator trusts it again.
func (e *Engine) BlockDevice(ctx context.Context, deviceID string) (DeviceRecord, error) {
	if e == nil {
		return DeviceRecord{}, ErrEngineNotReady
	}

	record, err := e.devices.UpdateByID(ctx, deviceID, func(record *DeviceRecord) error {
		record.Trusted = false
		record.Status = DeviceBlocked
		return nil
	})
	if err != nil {
		return DeviceRecord{}, mapStoreErr(err)
	}

	e.metricInc(internalmetrics.MetricDeviceBlocked)
	e.emitAudit(ctx, "DEVICE_BLOCKED", "DEVICE", record.ID, record.Fingerprint, OutcomeWarning)
	return record, nil
}
