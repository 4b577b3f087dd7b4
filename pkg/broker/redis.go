package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface assertion.
var _ Broker = (*Redis)(nil)

// Redis is the production [Broker] backed by a Redis server. One instance
// is shared per process; the underlying go-redis client pools connections
// and is safe for concurrent use, including overlapping blocking pops.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis server at the given redis-style URL
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}

	// Blocking pops hold a pooled connection for their full timeout, so the
	// pool must cover the worker's dequeue plus concurrent gateway traffic.
	opts.PoolSize = 32
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ContextTimeoutEnabled = true

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("broker: connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests that point the
// broker at an in-process Redis.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Push appends value at the head of the list; BRPOP consumes from the tail,
// so head-push/tail-pop yields FIFO order.
func (r *Redis) Push(ctx context.Context, listKey, value string) error {
	if err := r.client.LPush(ctx, listKey, value).Err(); err != nil {
		return fmt.Errorf("broker: lpush %s: %w", listKey, err)
	}
	return nil
}

// BlockingPop removes and returns the oldest element, blocking up to timeout.
func (r *Redis) BlockingPop(ctx context.Context, listKey string, timeout time.Duration) (string, error) {
	res, err := r.client.BRPop(ctx, timeout, listKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("broker: brpop %s: %w", listKey, err)
	}
	// BRPOP returns [key, value].
	return res[1], nil
}

// Set writes a string key with an optional TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("broker: set %s: %w", key, err)
	}
	return nil
}

// Get reads a string key.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("broker: get %s: %w", key, err)
	}
	return val, nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("broker: del %s: %w", key, err)
	}
	return nil
}

// ListLen returns the length of a list.
func (r *Redis) ListLen(ctx context.Context, listKey string) (int64, error) {
	n, err := r.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: llen %s: %w", listKey, err)
	}
	return n, nil
}

// ListRange returns list elements between start and stop inclusive.
func (r *Redis) ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, listKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: lrange %s: %w", listKey, err)
	}
	return vals, nil
}

// HashIncrBy atomically adds delta to an integer hash field.
func (r *Redis) HashIncrBy(ctx context.Context, key, field string, delta int64) error {
	if err := r.client.HIncrBy(ctx, key, field, delta).Err(); err != nil {
		return fmt.Errorf("broker: hincrby %s.%s: %w", key, field, err)
	}
	return nil
}

// HashIncrByFloat atomically adds delta to a float hash field.
func (r *Redis) HashIncrByFloat(ctx context.Context, key, field string, delta float64) error {
	if err := r.client.HIncrByFloat(ctx, key, field, delta).Err(); err != nil {
		return fmt.Errorf("broker: hincrbyfloat %s.%s: %w", key, field, err)
	}
	return nil
}

// HashGetAll returns all fields of a hash.
func (r *Redis) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: hgetall %s: %w", key, err)
	}
	return m, nil
}

// ScanPrefix returns all keys starting with prefix using a cursor scan, so
// the server is never blocked by a full keyspace walk.
func (r *Redis) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("broker: scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker: ping: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
