package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agilepm-dev/authcore/internal/audit"
)

// AuditStore is the append-only trail. Entries are pushed onto a redis list
// and never mutated or removed; the public contract has no update or delete.
type AuditStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewAuditStore(client redis.UniversalClient, prefix string) *AuditStore {
	if prefix == "" {
		prefix = "aud"
	}
	return &AuditStore{redis: client, prefix: prefix}
}

func (s *AuditStore) key() string {
	return s.prefix + ":log"
}

// Append writes one entry to the tail of the trail. RPUSH is atomic, so
// concurrent writers need no further coordination.
func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.redis.RPush(ctx, s.key(), encoded).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// ByActor returns entries recorded for the given actor, oldest first.
func (s *AuditStore) ByActor(ctx context.Context, actor string) ([]audit.Entry, error) {
	return s.filter(ctx, func(e audit.Entry) bool {
		return e.Actor == actor
	})
}

// ByEntityType returns entries touching the given entity type, oldest first.
func (s *AuditStore) ByEntityType(ctx context.Context, entityType string) ([]audit.Entry, error) {
	return s.filter(ctx, func(e audit.Entry) bool {
		return e.EntityType == entityType
	})
}

// Between returns entries with start <= timestamp < end, oldest first.
func (s *AuditStore) Between(ctx context.Context, start, end time.Time) ([]audit.Entry, error) {
	return s.filter(ctx, func(e audit.Entry) bool {
		return !e.Timestamp.Before(start) && e.Timestamp.Before(end)
	})
}

func (s *AuditStore) filter(ctx context.Context, keep func(audit.Entry) bool) ([]audit.Entry, error) {
	raw, err := s.redis.LRange(ctx, s.key(), 0, -1).Result()
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	var entries []audit.Entry
	for _, item := range raw {
		var entry audit.Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		if keep(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
