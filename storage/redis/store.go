// Package redis provides a Store backed by a shared Redis instance, for
// deployments running more than one broker process. TTL, get-and-delete
// and increment all map to native Redis commands, so the race semantics
// are enforced by the server.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/emberlink/go-identity-broker/storage"
)

// Store implements the storage contract using Redis
type Store struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// New creates a new [Store] instance
func New(client *redis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (r *Store) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

func (r *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		return errors.Wrap(err, "[redis.Put] SET")
	}
	return nil
}

func (r *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[redis.Get] GET")
	}
	return value, nil
}

func (r *Store) Take(ctx context.Context, key string) ([]byte, error) {
	// GETDEL is atomic server-side; concurrent callers race for one value.
	value, err := r.client.GetDel(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[redis.Take] GETDEL")
	}
	return value, nil
}

func (r *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	rkey := r.redisKey(key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	// NX: only set the expiry when the key is fresh, so the window is
	// anchored at the first increment.
	pipe.ExpireNX(ctx, rkey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "[redis.Increment] INCR")
	}
	return incr.Val(), nil
}

// Close closes the underlying client.
func (r *Store) Close() error {
	return r.client.Close()
}
