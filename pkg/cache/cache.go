// Package cache provides the keyed byte store with TTL used for source
// results, synonyms, embeddings and RAG answers. Two backends exist: Redis
// for shared state and an in-process LRU for per-process freshness caches.
// A missing or failing cache never breaks functionality, it only degrades
// latency; callers treat every error here as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the contract shared by all cache backends.
type Cache interface {
	// Get retrieves the raw bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan lists keys with the given prefix, for administrative purge.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// GetJSON reads key and unmarshals it into out.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cache: corrupt JSON under %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal for %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
