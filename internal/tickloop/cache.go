package tickloop

import "sync"

// cache implements the `{fetch(force bool) -> T}` getter pattern from
// DESIGN NOTES §9: returns the cached value unless force is set or nothing
// has been fetched yet.
type cache[T any] struct {
	mu    sync.Mutex
	value T
	has   bool
}

func (c *cache[T]) get(force bool, fetch func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.has {
		return c.value, nil
	}

	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	c.value = v
	c.has = true
	return c.value, nil
}
