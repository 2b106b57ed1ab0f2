// Package sessioncache memoizes expensive per-credential remote session
// handles. One cache instance serves one remote service; the handle type is
// the type parameter.
package sessioncache

import (
	"context"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/wikicampus/wikicampus/internal/obs"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
)

// Factory constructs a handle for a credential. It may block on remote
// authentication; the cache calls it at most once per key at a time.
type Factory[T any] func(ctx context.Context, cred permissions.Credential) (T, error)

// Cache maps a derived credential key to a lazily constructed handle.
// Entries live until Remove; there is no TTL or eviction.
type Cache[T any] struct {
	service string
	factory Factory[T]

	mu      sync.RWMutex
	entries map[string]T
	flight  singleflight.Group
}

// New builds a cache for one remote service. The service name only labels
// metrics.
func New[T any](service string, factory Factory[T]) *Cache[T] {
	return &Cache[T]{
		service: service,
		factory: factory,
		entries: map[string]T{},
	}
}

// Get returns the cached handle for the credential, constructing it through
// the factory on first access. Concurrent calls for the same credential
// share a single construction. A factory failure stores nothing and
// propagates unchanged.
func (c *Cache[T]) Get(ctx context.Context, cred permissions.Credential) (T, error) {
	key := deriveKey(cred)

	c.mu.RLock()
	handle, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		obs.SessionCacheHit(c.service)
		return handle, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A racing caller may have stored the handle while this one
		// waited on the flight group.
		c.mu.RLock()
		handle, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			obs.SessionCacheHit(c.service)
			return handle, nil
		}

		obs.SessionCacheMiss(c.service)
		built, err := c.factory(ctx, cred)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Remove deletes the entry for the credential, reporting whether one
// existed. The handle itself is simply dropped.
func (c *Cache[T]) Remove(cred permissions.Credential) bool {
	key := deriveKey(cred)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Len returns the number of cached handles.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// deriveKey hashes the credential pair so plaintext passwords never sit in
// the map. The zero byte separates the fields to keep the mapping injective.
func deriveKey(cred permissions.Credential) string {
	sum := blake2b.Sum256([]byte(cred.Username + "\x00" + cred.Password))
	return string(sum[:])
}
