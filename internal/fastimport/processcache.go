package fastimport

import (
	"github.com/emirpasic/gods/sets/linkedhashset"
)

// closer is implemented by *FastImportRepository; factored out so the
// cache can be unit tested against a fake.
type closer interface {
	closeFastImport()
}

// ProcessCache is the process-wide LRU bounding how many fast-import
// children may be alive at once. It is not ambient static state: the
// driver owns one instance and passes it into every repository it
// constructs, which keeps eviction order deterministic in tests.
//
// A linkedhashset gives the touch/evict/append sequence for free: Remove
// followed by Add always reinserts at the tail, and the least-recently
// touched entry is always the first value in iteration order.
type ProcessCache struct {
	live    *linkedhashset.Set
	ceiling int
}

// NewProcessCache builds a cache that allows at most ceiling live children.
func NewProcessCache(ceiling int) *ProcessCache {
	if ceiling <= 0 {
		ceiling = 100
	}
	return &ProcessCache{live: linkedhashset.New(), ceiling: ceiling}
}

// touch marks repo as most-recently used, evicting the oldest entry first
// if the cache is already at its ceiling.
func (c *ProcessCache) touch(repo closer) {
	c.live.Remove(repo)
	for c.live.Size() >= c.ceiling {
		victim := c.live.Values()[0]
		c.live.Remove(victim)
		victim.(closer).closeFastImport()
	}
	c.live.Add(repo)
}

// remove drops repo from the cache unconditionally, without closing it;
// used when a repository closes itself (e.g. at shutdown).
func (c *ProcessCache) remove(repo closer) {
	c.live.Remove(repo)
}
