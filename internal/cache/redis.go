// Package cache implements the product listing cache on Redis.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
)

var _ product.Cache = (*Redis)(nil)

// Redis stores cached values as plain keys and tracks every key written under
// a tag in a Redis set named after the tag, so a whole tag can be dropped at
// once.
type Redis struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Dial parses a redis:// URL and returns a connected cache.
func Dial(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{client: client}, nil
}

// Get returns the cached value for key. A miss is reported as ok=false with a
// nil error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "get %q", key)
	}
	return b, true, nil
}

// SetTagged stores value under key for ttl and records key under tag.
func (r *Redis) SetTagged(ctx context.Context, tag, key string, value []byte, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, ttl)
		p.SAdd(ctx, tag, key)
		// The tag set only needs to live as long as its newest member.
		p.Expire(ctx, tag, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

// InvalidateTag deletes every key recorded under tag along with the tag set.
func (r *Redis) InvalidateTag(ctx context.Context, tag string) error {
	keys, err := r.client.SMembers(ctx, tag).Result()
	if err != nil {
		return errors.Wrapf(err, "members of %q", tag)
	}
	keys = append(keys, tag)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrapf(err, "invalidate %q", tag)
	}
	return nil
}

// Ping checks connectivity. It matches health.CheckFunc.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
