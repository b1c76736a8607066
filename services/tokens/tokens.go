// Package tokensvc keeps the ids of revoked JWTs until the tokens expire.
package tokensvc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/schoolsite/core"
)

type Denylist interface {
	// Revoke denies jti until exp.
	Revoke(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// New returns a redis denylist when a redis URL is configured, an in-process one otherwise.
// The returned close func releases the redis client.
func New(ctx context.Context, conf *core.Config) (Denylist, func() error, error) {
	if conf.Redis.URL == "" {
		return NewMemoryDenylist(), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "connecting to redis")
	}
	return NewRedisDenylist(client, ""), client.Close, nil
}

type RedisDenylist struct {
	client redis.UniversalClient
	prefix string
}

var _ Denylist = (*RedisDenylist)(nil)

// NewRedisDenylist stores the ids under prefix, "revoked-token:" when empty.
func NewRedisDenylist(client redis.UniversalClient, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "revoked-token:"
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if jti == "" {
		return errors.New("token has no id")
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil // expired anyway
	}
	return errors.Wrap(d.client.Set(ctx, d.prefix+jti, 1, ttl).Err(), "revoking token")
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	err := d.client.Get(ctx, d.prefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, errors.Wrap(err, "checking revoked token")
	}
}

type MemoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

var _ Denylist = (*MemoryDenylist)(nil)

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{revoked: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, exp time.Time) error {
	if jti == "" {
		return errors.New("token has no id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, until := range d.revoked {
		if !until.After(now) {
			delete(d.revoked, id)
		}
	}
	if exp.After(now) {
		d.revoked[jti] = exp
	}
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.revoked[jti]
	return ok && until.After(d.now()), nil
}
