package cache

import (
	"context"
	"time"
)

// Layer is a key/value store backing the balance cache.
// Values are opaque strings; the balance cache stores decimal text and generation tokens.
type Layer interface {
	// Get retrieves a value by key; returns ErrKeyNotFound on a miss
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; a zero ttl keeps it until deleted
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics
	Name() string

	// Close releases any resources held by the layer
	Close() error
}
