// Package cache provides a generic, thread-safe TTL cache used to avoid
// redundant remote calls.
//
// Entries expire lazily: expiration is evaluated on Get by comparing the
// stored timestamp against the pool's TTL, and a background sweeper
// reclaims memory from entries nobody asks for again. There is no size
// bound; this is a process-lifetime cache, not an eviction policy.
//
// Statistics are always collected. Prometheus export is optional via
// WithMetrics().
package cache

import (
	"github.com/c360/sparqlgate/errors"
)

// Cache represents a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found
	// and not expired, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry
	// was created, false if an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries, expired or not.
	Size() int

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and releases background resources.
	Close() error
}

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidKey, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
