package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeviceStatus is the trust state of a device record.
type DeviceStatus string

const (
	DeviceActive     DeviceStatus = "ACTIVE"
	DeviceSuspicious DeviceStatus = "SUSPICIOUS"
	DeviceBlocked    DeviceStatus = "BLOCKED"
)

// DeviceRecord tracks one (principal, fingerprint) pair.
type DeviceRecord struct {
	ID            string       `json:"id"`
	PrincipalID   string       `json:"principal_id"`
	Fingerprint   string       `json:"fingerprint"`
	DeviceType    string       `json:"device_type"`
	Browser       string       `json:"browser"`
	OS            string       `json:"os"`
	IPAddress     string       `json:"ip_address"`
	LastLoginAt   time.Time    `json:"last_login_at"`
	LoginAttempts int          `json:"login_attempts"`
	Trusted       bool         `json:"trusted"`
	Status        DeviceStatus `json:"status"`
}

type deviceRef struct {
	PrincipalID string `json:"principal_id"`
	Fingerprint string `json:"fingerprint"`
}

// DeviceStore persists device records. Records are keyed by
// (principal, fingerprint); a secondary id index serves administrative
// trust/block actions, and a per-principal set serves listing.
type DeviceStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewDeviceStore(client redis.UniversalClient, prefix string) *DeviceStore {
	if prefix == "" {
		prefix = "adt"
	}
	return &DeviceStore{redis: client, prefix: prefix}
}

func (s *DeviceStore) key(principalID, fingerprint string) string {
	return s.prefix + ":d:" + principalID + ":" + fingerprint
}

func (s *DeviceStore) idKey(deviceID string) string {
	return s.prefix + ":id:" + deviceID
}

func (s *DeviceStore) indexKey(principalID string) string {
	return s.prefix + ":idx:" + principalID
}

// Update runs the find-or-create-then-mutate sequence for one
// (principal, fingerprint) pair under a WATCH transaction. create is called
// only when no record exists; mutate is applied to the current record. The
// final state is returned.
func (s *DeviceStore) Update(
	ctx context.Context,
	principalID, fingerprint string,
	create func() DeviceRecord,
	mutate func(*DeviceRecord) error,
) (DeviceRecord, error) {
	key := s.key(principalID, fingerprint)

	for i := 0; i < casRetries; i++ {
		var result DeviceRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			record, created, err := s.load(ctx, tx, principalID, fingerprint, create)
			if err != nil {
				return err
			}

			if mutate != nil {
				if err := mutate(&record); err != nil {
					return err
				}
			}

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				if created {
					ref, refErr := json.Marshal(deviceRef{PrincipalID: principalID, Fingerprint: fingerprint})
					if refErr != nil {
						return refErr
					}
					pipe.Set(ctx, s.idKey(record.ID), ref, 0)
					pipe.SAdd(ctx, s.indexKey(principalID), fingerprint)
				}
				return nil
			})
			if err != nil {
				return err
			}

			result = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return DeviceRecord{}, wrapUnavailable(err)
		}
		return result, nil
	}

	return DeviceRecord{}, ErrConflict
}

func (s *DeviceStore) load(
	ctx context.Context,
	tx *redis.Tx,
	principalID, fingerprint string,
	create func() DeviceRecord,
) (DeviceRecord, bool, error) {
	data, err := tx.Get(ctx, s.key(principalID, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		if create == nil {
			return DeviceRecord{}, false, ErrNotFound
		}
		record := create()
		record.PrincipalID = principalID
		record.Fingerprint = fingerprint
		return record, true, nil
	}
	if err != nil {
		return DeviceRecord{}, false, err
	}

	var record DeviceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return DeviceRecord{}, false, err
	}
	return record, false, nil
}

// UpdateByID resolves a device through the id index and applies mutate under
// the same WATCH discipline as Update.
func (s *DeviceStore) UpdateByID(
	ctx context.Context,
	deviceID string,
	mutate func(*DeviceRecord) error,
) (DeviceRecord, error) {
	ref, err := s.resolve(ctx, deviceID)
	if err != nil {
		return DeviceRecord{}, err
	}
	return s.Update(ctx, ref.PrincipalID, ref.Fingerprint, nil, mutate)
}

// GetByID returns the device record for an administrative id.
func (s *DeviceStore) GetByID(ctx context.Context, deviceID string) (DeviceRecord, error) {
	ref, err := s.resolve(ctx, deviceID)
	if err != nil {
		return DeviceRecord{}, err
	}
	return s.Get(ctx, ref.PrincipalID, ref.Fingerprint)
}

// Get returns the record for one (principal, fingerprint) pair.
func (s *DeviceStore) Get(ctx context.Context, principalID, fingerprint string) (DeviceRecord, error) {
	data, err := s.redis.Get(ctx, s.key(principalID, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DeviceRecord{}, ErrNotFound
	}
	if err != nil {
		return DeviceRecord{}, wrapUnavailable(err)
	}

	var record DeviceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return DeviceRecord{}, err
	}
	return record, nil
}

// List returns every device record owned by the principal.
func (s *DeviceStore) List(ctx context.Context, principalID string) ([]DeviceRecord, error) {
	fingerprints, err := s.redis.SMembers(ctx, s.indexKey(principalID)).Result()
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	records := make([]DeviceRecord, 0, len(fingerprints))
	for _, fp := range fingerprints {
		record, err := s.Get(ctx, principalID, fp)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteForPrincipal removes every device record owned by the principal.
// Used only by the aggregate delete cascade; normal flows never hard-delete
// devices.
func (s *DeviceStore) DeleteForPrincipal(ctx context.Context, principalID string) error {
	records, err := s.List(ctx, principalID)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, record := range records {
			pipe.Del(ctx, s.key(principalID, record.Fingerprint))
			pipe.Del(ctx, s.idKey(record.ID))
		}
		pipe.Del(ctx, s.indexKey(principalID))
		return nil
	})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *DeviceStore) resolve(ctx context.Context, deviceID string) (deviceRef, error) {
	data, err := s.redis.Get(ctx, s.idKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return deviceRef{}, ErrNotFound
	}
	if err != nil {
		return deviceRef{}, wrapUnavailable(err)
	}

	var ref deviceRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return deviceRef{}, err
	}
	return ref, nil
}

// wrapUnavailable keeps the original chain intact so sentinel errors raised
// inside a transaction callback still match through errors.Is.
func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
