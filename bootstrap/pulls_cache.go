package bootstrap

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/nanod-io/nanod/ledger"
)

// pullsCacheKey is the (account, original_head) composite key spec.md
// §3 "Cached pull" is keyed on.
type pullsCacheKey struct {
	account      ledger.Account
	originalHead ledger.Hash
}

type cachedPull struct {
	time    time.Time
	newHead ledger.Hash
}

// PullsCache is a bounded memoization of prior pull progress (component
// D, spec.md §4.D). Backed by golang-lru: every Add marks the key
// most-recently-used, so the cache's own least-recently-used eviction
// on overflow matches the "LRU over time" invariant spec.md §3
// describes for Cached pull without needing separate timestamp
// bookkeeping for eviction order. Update looks entries up with Peek so
// lookups leave that order alone.
type PullsCache struct {
	minProcessed uint64
	now          func() time.Time

	mu    sync.Mutex
	cache *lru.Cache
}

// NewPullsCache builds a PullsCache with the given capacity and the
// "processed > N" insertion threshold (spec.md §4.D).
func NewPullsCache(capacity int, minProcessed uint64) *PullsCache {
	if capacity < 1 {
		capacity = 1
	}
	cache, err := lru.New(capacity)
	if err != nil {
		panic(err) // only errors on non-positive size, guarded above
	}
	return &PullsCache{minProcessed: minProcessed, now: time.Now, cache: cache}
}

// Add inserts or refreshes a cached pull if pull.Processed clears the
// minProcessed threshold (spec.md §4.D "Insert: on a pull that
// processed > 500, evict the oldest if capacity would be exceeded,
// then insert or update new_head"). pull.Head is the pull's current
// frontier at the time of caching, recorded as new_head.
func (c *PullsCache) Add(pull PullInfo) {
	if pull.Processed <= c.minProcessed {
		return
	}
	key := pullsCacheKey{account: pull.Account, originalHead: pull.HeadOriginal}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, &cachedPull{time: c.now(), newHead: pull.Head})
}

// Update rewrites pull.Head to the cached new_head if a matching entry
// exists, reporting whether it did (spec.md §4.D "Lookup:
// update_pull(pull) rewrites pull.head to the cached new_head if the
// key exists").
func (c *PullsCache) Update(pull *PullInfo) bool {
	key := pullsCacheKey{account: pull.Account, originalHead: pull.HeadOriginal}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Peek(key)
	if !ok {
		return false
	}
	pull.Head = v.(*cachedPull).newHead
	return true
}

// Len reports the number of cached pulls, for diagnostics/tests.
func (c *PullsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
