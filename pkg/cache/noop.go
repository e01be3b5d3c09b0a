package cache

// noopCache is a disabled cache: every Get misses, every Set is dropped.
// Returned when caching is disabled in configuration so callers never
// need a nil check.
type noopCache[V any] struct {
	stats *Statistics
}

// NewNoop creates a cache that stores nothing.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{stats: NewStatistics()}
}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	c.stats.Miss()
	return zero, false
}

func (c *noopCache[V]) Set(key string, _ V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return false, nil
}

func (c *noopCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return false, nil
}

func (c *noopCache[V]) Clear() error { return nil }

func (c *noopCache[V]) Size() int { return 0 }

func (c *noopCache[V]) Stats() *Statistics { return c.stats }

func (c *noopCache[V]) Close() error { return nil }
