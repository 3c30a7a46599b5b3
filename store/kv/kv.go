// Package kv defines the session-state store contract. The engine uses it
// for session metadata and rate-limit counter rollover only, never on the
// per-input hot path. Any reasonable key/value implementation satisfies the
// contract; when the store is unavailable the engine degrades to
// best-effort in-memory operation.
package kv

import (
	"context"
	"time"
)

// Store is the key/value collaborator interface.
type Store interface {
	// Get returns the value for a key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
