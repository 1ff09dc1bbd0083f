package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeRecord is one pending MFA login. It exists between a successful
// credential check against an MFA-enabled principal and the second-factor
// verification that completes the login.
type ChallengeRecord struct {
	PrincipalID string    `json:"principal_id"`
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}

// ChallengeStore persists pending MFA login challenges keyed by an opaque
// challenge id. Challenges are destroyed on success, on attempt exhaustion,
// and by TTL.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(client redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "amc"
	}
	return &ChallengeStore{redis: client, prefix: prefix}
}

func (s *ChallengeStore) key(id string) string {
	return s.prefix + ":" + id
}

// Create writes a fresh challenge.
func (s *ChallengeStore) Create(ctx context.Context, id string, record ChallengeRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// Get returns the challenge without consuming it.
func (s *ChallengeStore) Get(ctx context.Context, id string) (ChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ChallengeRecord{}, ErrNotFound
	}
	if err != nil {
		return ChallengeRecord{}, wrapUnavailable(err)
	}

	var record ChallengeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ChallengeRecord{}, err
	}
	return record, nil
}

// RecordFailure increments the attempt counter under a WATCH transaction.
// When the counter reaches maxAttempts the challenge is destroyed and
// ErrChallengeAttempts is returned.
func (s *ChallengeStore) RecordFailure(ctx context.Context, id string, maxAttempts int) error {
	key := s.key(id)

	for i := 0; i < casRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			var record ChallengeRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			record.Attempts++
			if record.Attempts >= maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeAttempts
			}

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			ttl, err := tx.TTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Minute
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
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrChallengeAttempts) {
				return err
			}
			return wrapUnavailable(err)
		}
		return nil
	}

	return ErrConflict
}

// Delete destroys the challenge (successful completion).
func (s *ChallengeStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
