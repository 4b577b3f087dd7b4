// Package broker abstracts the shared key-value/list/hash store carrying
// all dispatch state: job queues, status and result keys, worker liveness,
// credentials, and metrics counters. The rest of the system depends only on
// the [Broker] interface; [Redis] is the production implementation.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist and by
// BlockingPop when the wait times out with no element available.
var ErrNotFound = errors.New("broker: not found")

// Broker is the store contract the dispatch layer is written against.
// Implementations must be safe for concurrent use by multiple goroutines
// sharing one instance per process.
type Broker interface {
	// Push appends value at the head of the named FIFO list.
	Push(ctx context.Context, listKey, value string) error

	// BlockingPop atomically removes and returns the oldest element of the
	// named list, blocking up to timeout. Returns ErrNotFound when the
	// timeout elapses with the list still empty.
	BlockingPop(ctx context.Context, listKey string, timeout time.Duration) (string, error)

	// Set writes a string key. A non-zero ttl bounds its lifetime and is
	// reset on every rewrite.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get reads a string key. Returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListLen returns the number of elements in the named list.
	ListLen(ctx context.Context, listKey string) (int64, error)

	// ListRange returns the elements of the named list between start and
	// stop inclusive, using the store's native index order (head first;
	// negative indexes count from the tail).
	ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error)

	// HashIncrBy atomically adds delta to an integer hash field.
	HashIncrBy(ctx context.Context, key, field string, delta int64) error

	// HashIncrByFloat atomically adds delta to a float hash field.
	HashIncrByFloat(ctx context.Context, key, field string, delta float64) error

	// HashGetAll returns all fields of a hash; an empty map for a missing key.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// ScanPrefix returns all keys starting with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
