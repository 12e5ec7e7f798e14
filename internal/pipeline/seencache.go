package pipeline

import "sync"

// seenCache is a bounded membership set of content hashes with FIFO
// eviction. It only exists to skip repeat database lookups within a day,
// so losing an entry early is harmless.
type seenCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]struct{}
	order   []string
}

func newSeenCache(max int) *seenCache {
	if max <= 0 {
		max = 1000
	}
	return &seenCache{
		max:     max,
		entries: make(map[string]struct{}, max),
	}
}

func (c *seenCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func (c *seenCache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		return
	}
	c.entries[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
