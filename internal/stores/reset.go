package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetRecord is one single-use password-reset token. A consumed record is
// kept with Used set until its janitor TTL reaps it, so replays are rejected
// as invalid rather than silently unknown.
type ResetRecord struct {
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Used        bool      `json:"used"`
}

// ResetStore persists password-reset tokens by value.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetStore(client redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &ResetStore{redis: client, prefix: prefix}
}

func (s *ResetStore) key(token string) string {
	return s.prefix + ":" + token
}

// Save writes a fresh reset record. The redis TTL is twice the logical
// lifetime; expiry is enforced in Consume.
func (s *ResetStore) Save(ctx context.Context, token string, record ResetRecord, lifetime time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), encoded, 2*lifetime).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// Get returns the record without consuming it.
func (s *ResetStore) Get(ctx context.Context, token string) (ResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ResetRecord{}, ErrNotFound
	}
	if err != nil {
		return ResetRecord{}, wrapUnavailable(err)
	}

	var record ResetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ResetRecord{}, err
	}
	return record, nil
}

// Consume marks the token used under a WATCH transaction. A concurrent
// Consume of the same token observes the Used flag and fails; an expired
// token fails with ErrResetExpired without being mutated.
func (s *ResetStore) Consume(ctx context.Context, token string, now time.Time) (ResetRecord, error) {
	key := s.key(token)

	for i := 0; i < casRetries; i++ {
		var result ResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			var record ResetRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			if record.Used {
				return ErrResetUsed
			}
			if now.After(record.ExpiresAt) {
				return ErrResetExpired
			}

			record.Used = true
			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			remaining := time.Until(record.ExpiresAt) + time.Hour
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, remaining)
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
			switch {
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrResetUsed), errors.Is(err, ErrResetExpired):
				return ResetRecord{}, err
			default:
				return ResetRecord{}, wrapUnavailable(err)
			}
		}
		return result, nil
	}

	return ResetRecord{}, ErrConflict
}

// DeleteForPrincipal removes any reset token owned by the principal. Reset
// tokens are keyed by value, so the cascade scans the prefix.
func (s *ResetStore) DeleteForPrincipal(ctx context.Context, principalID string) error {
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return wrapUnavailable(err)
		}

		var record ResetRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if record.PrincipalID != principalID {
			continue
		}
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return wrapUnavailable(err)
		}
	}
	if err := iter.Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
