// Package cache provides the replay cache that fronts the durable
// idempotency store. A hit serves the stored response without touching
// the database; the database record stays the source of truth.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ReplayCache caches stored command responses keyed by the idempotency
// scope (key, user, route).
type ReplayCache interface {
	// Get returns the cached response body and whether it was present.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Put stores a response body under the key with a TTL.
	Put(ctx context.Context, key string, body json.RawMessage, ttl time.Duration) error

	// Close releases any resources held by the cache.
	Close() error
}

// ReplayKey derives the cache key for an idempotency scope. Hashing keeps
// caller-supplied keys out of cache key space and bounds key length.
func ReplayKey(idempotencyKey, userID, route string) string {
	sum := sha256.Sum256([]byte(idempotencyKey + "\x00" + userID + "\x00" + route))
	return hex.EncodeToString(sum[:])
}
