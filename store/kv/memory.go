package kv

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemStore is the in-memory Store used when no external store is
// configured. Expired items are purged in the background.
type MemStore struct {
	c *cache.Cache
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an in-memory store purging expired keys every
// minute.
func NewMemStore() *MemStore {
	return &MemStore{c: cache.New(cache.NoExpiration, time.Minute)}
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set implements Store.
func (m *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
