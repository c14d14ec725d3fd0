// Package counter is the run-wide event store: occurrence counts keyed by
// (category, subcategory, location).
package counter

import (
	"iter"
	"sort"
	"sync"
)

// Key identifies one counted event stream.
type Key struct {
	Category    string
	Subcategory string
	Location    string
}

// Counter is safe for concurrent use. The zero value is not usable; call New.
type Counter struct {
	mu     sync.Mutex
	counts map[Key]int
}

func New() *Counter {
	return &Counter{counts: make(map[Key]int)}
}

// Increment adds one occurrence for the key, creating it with count 1.
func (c *Counter) Increment(category, subcategory, location string) {
	k := Key{Category: category, Subcategory: subcategory, Location: location}
	c.mu.Lock()
	c.counts[k]++
	c.mu.Unlock()
}

// Count returns the current count for k (0 when absent).
func (c *Counter) Count(k Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[k]
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

// EntriesFor yields every key under (category, subcategory) with its count.
// Each range over the returned sequence takes a fresh snapshot, so the
// sequence can be iterated any number of times. Order is unspecified.
func (c *Counter) EntriesFor(category, subcategory string) iter.Seq2[Key, int] {
	return func(yield func(Key, int) bool) {
		for _, e := range c.snapshot(category, subcategory) {
			if !yield(e.key, e.n) {
				return
			}
		}
	}
}

// Categories lists the distinct (category, subcategory) pairs, sorted.
func (c *Counter) Categories() [][2]string {
	c.mu.Lock()
	seen := make(map[[2]string]struct{})
	for k := range c.counts {
		seen[[2]string{k.Category, k.Subcategory}] = struct{}{}
	}
	c.mu.Unlock()

	out := make([][2]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] == out[j][0] {
			return out[i][1] < out[j][1]
		}
		return out[i][0] < out[j][0]
	})
	return out
}

type entry struct {
	key Key
	n   int
}

func (c *Counter) snapshot(category, subcategory string) []entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entry
	for k, n := range c.counts {
		if k.Category == category && k.Subcategory == subcategory {
			out = append(out, entry{key: k, n: n})
		}
	}
	return out
}
