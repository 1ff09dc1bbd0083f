package stores

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// BackupCode is a single-use MFA fallback credential. Consumed codes keep
// their record with Used set.
type BackupCode struct {
	Code      string    `json:"code"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its validity window at now.
func (c BackupCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// BackupCodeStore keeps a principal's whole backup-code set under one key so
// that Replace is a single write and a concurrent verify can never observe a
// half-written set.
type BackupCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewBackupCodeStore(client redis.UniversalClient, prefix string) *BackupCodeStore {
	if prefix == "" {
		prefix = "abc"
	}
	return &BackupCodeStore{redis: client, prefix: prefix}
}

func (s *BackupCodeStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

// Replace atomically swaps the principal's backup-code set. The redis TTL is
// twice the validity window; per-code expiry is enforced in Consume.
func (s *BackupCodeStore) Replace(ctx context.Context, principalID string, codes []BackupCode, validity time.Duration) error {
	encoded, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(principalID), encoded, 2*validity).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// List returns the principal's current set, consumed codes included.
func (s *BackupCodeStore) List(ctx context.Context, principalID string) ([]BackupCode, error) {
	data, err := s.redis.Get(ctx, s.key(principalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	var codes []BackupCode
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Consume marks the first live code matching the supplied value as used,
// under a WATCH transaction so two concurrent submissions of the same code
// cannot both succeed. Used and expired codes never match again.
func (s *BackupCodeStore) Consume(ctx context.Context, principalID, code string, now time.Time) error {
	key := s.key(principalID)

	for i := 0; i < casRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrCodeInvalid
			}
			if err != nil {
				return err
			}

			var codes []BackupCode
			if err := json.Unmarshal(data, &codes); err != nil {
				return err
			}

			matched := -1
			for idx := range codes {
				if codes[idx].Used || codes[idx].Expired(now) {
					continue
				}
				if subtle.ConstantTimeCompare([]byte(codes[idx].Code), []byte(code)) == 1 {
					matched = idx
					break
				}
			}
			if matched < 0 {
				return ErrCodeInvalid
			}

			codes[matched].Used = true
			encoded, err := json.Marshal(codes)
			if err != nil {
				return err
			}

			ttl, err := tx.TTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Hour
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrCodeInvalid) {
				return err
			}
			return wrapUnavailable(err)
		}
		return nil
	}

	return ErrConflict
}

// DeleteForPrincipal removes the principal's whole set (MFA disable,
// cascade).
func (s *BackupCodeStore) DeleteForPrincipal(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
