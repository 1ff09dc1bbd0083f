package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshToken is the engine-owned long-lived credential. At most one live
// token exists per principal; issuing a new one destroys the previous.
type RefreshToken struct {
	Token       string    `json:"token"`
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshStore persists refresh tokens under two keys: token value → record
// for lookup-by-value, and principal → token value to enforce the
// single-live-token invariant.
//
// Keys carry a TTL of twice the token lifetime so that an expired token is
// still observable as "expired" (not "not found") until the janitor TTL
// reaps it.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(client redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "art"
	}
	return &RefreshStore{redis: client, prefix: prefix}
}

func (s *RefreshStore) tokenKey(token string) string {
	return s.prefix + ":t:" + token
}

func (s *RefreshStore) principalKey(principalID string) string {
	return s.prefix + ":u:" + principalID
}

// Issue atomically replaces the principal's refresh token: the previous
// token, if any, is deleted in the same transaction that writes the new one.
// Two concurrent issuances for the same principal serialize on the WATCH;
// the last writer wins.
func (s *RefreshStore) Issue(ctx context.Context, record RefreshToken, lifetime time.Duration) error {
	ukey := s.principalKey(record.PrincipalID)
	ttl := 2 * lifetime

	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := tx.Get(ctx, ukey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if previous != "" {
					pipe.Del(ctx, s.tokenKey(previous))
				}
				pipe.Set(ctx, ukey, record.Token, ttl)
				pipe.Set(ctx, s.tokenKey(record.Token), encoded, ttl)
				return nil
			})
			return err
		}, ukey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return wrapUnavailable(err)
		}
		return nil
	}

	return ErrConflict
}

// Lookup resolves a token by value.
func (s *RefreshStore) Lookup(ctx context.Context, token string) (RefreshToken, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, wrapUnavailable(err)
	}

	var record RefreshToken
	if err := json.Unmarshal(data, &record); err != nil {
		return RefreshToken{}, err
	}
	return record, nil
}

// Delete removes one token by value, clearing the principal pointer only
// when it still references this token.
func (s *RefreshStore) Delete(ctx context.Context, token string) error {
	record, err := s.Lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ukey := s.principalKey(record.PrincipalID)

	for i := 0; i < casRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, ukey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, s.tokenKey(token))
				if current == token {
					pipe.Del(ctx, ukey)
				}
				return nil
			})
			return err
		}, ukey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return wrapUnavailable(err)
		}
		return nil
	}

	return ErrConflict
}

// DeleteForPrincipal revokes the principal's live token (logout, cascade).
func (s *RefreshStore) DeleteForPrincipal(ctx context.Context, principalID string) error {
	ukey := s.principalKey(principalID)

	for i := 0; i < casRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			token, err := tx.Get(ctx, ukey).Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, s.tokenKey(token))
				pipe.Del(ctx, ukey)
				return nil
			})
			return err
		}, ukey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return wrapUnavailable(err)
		}
		return nil
	}

	return ErrConflict
}
