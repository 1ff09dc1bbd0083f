package redisdir

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	authcore "github.com/agilepm-dev/authcore"
)

const casRetries = 4

// Directory stores principals as JSON records keyed by id, with an email
// index for credential lookups. Email uniqueness is enforced with SETNX on
// the index key.
type Directory struct {
	redis  redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Directory {
	if prefix == "" {
		prefix = "usr"
	}
	return &Directory{redis: client, prefix: prefix}
}

func (d *Directory) idKey(id string) string {
	return d.prefix + ":id:" + id
}

func (d *Directory) emailKey(email string) string {
	return d.prefix + ":email:" + strings.ToLower(email)
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (authcore.Principal, error) {
	id, err := d.redis.Get(ctx, d.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return authcore.Principal{}, authcore.ErrNotFound
	}
	if err != nil {
		return authcore.Principal{}, err
	}
	return d.GetByID(ctx, id)
}

func (d *Directory) GetByID(ctx context.Context, id string) (authcore.Principal, error) {
	data, err := d.redis.Get(ctx, d.idKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authcore.Principal{}, authcore.ErrNotFound
	}
	if err != nil {
		return authcore.Principal{}, err
	}

	var p authcore.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return authcore.Principal{}, err
	}
	return p, nil
}

func (d *Directory) Create(ctx context.Context, p authcore.Principal) (authcore.Principal, error) {
	claimed, err := d.redis.SetNX(ctx, d.emailKey(p.Email), p.ID, 0).Result()
	if err != nil {
		return authcore.Principal{}, err
	}
	if !claimed {
		return authcore.Principal{}, authcore.ErrBusinessConflict
	}

	if err := d.save(ctx, p); err != nil {
		// Roll the index claim back so the email is not orphaned.
		_ = d.redis.Del(ctx, d.emailKey(p.Email)).Err()
		return authcore.Principal{}, err
	}
	return p, nil
}

func (d *Directory) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return d.mutate(ctx, id, func(p *authcore.Principal) {
		p.PasswordHash = hash
	})
}

func (d *Directory) SetMFASecret(ctx context.Context, id, secret string) error {
	return d.mutate(ctx, id, func(p *authcore.Principal) {
		p.MFASecret = secret
	})
}

func (d *Directory) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	return d.mutate(ctx, id, func(p *authcore.Principal) {
		p.MFAEnabled = enabled
	})
}

func (d *Directory) ClearMFA(ctx context.Context, id string) error {
	return d.mutate(ctx, id, func(p *authcore.Principal) {
		p.MFASecret = ""
		p.MFAEnabled = false
	})
}

func (d *Directory) Delete(ctx context.Context, id string) error {
	p, err := d.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = d.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, d.idKey(id))
		pipe.Del(ctx, d.emailKey(p.Email))
		return nil
	})
	return err
}

// mutate rewrites one principal record under a WATCH transaction so
// concurrent field updates on the same principal cannot lose each other.
func (d *Directory) mutate(ctx context.Context, id string, apply func(*authcore.Principal)) error {
	key := d.idKey(id)

	for i := 0; i < casRetries; i++ {
		err := d.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return authcore.ErrNotFound
			}
			if err != nil {
				return err
			}

			var p authcore.Principal
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			apply(&p)

			encoded, err := json.Marshal(p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return authcore.ErrStoreUnavailable
}

func (d *Directory) save(ctx context.Context, p authcore.Principal) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return d.redis.Set(ctx, d.idKey(p.ID), encoded, 0).Err()
}
