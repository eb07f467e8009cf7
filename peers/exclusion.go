// Package peers implements the peer exclusion registry (component C): a
// time- and score-based penalty table the bootstrap orchestrator
// consults before reusing an endpoint that has recently misbehaved.
//
// The score/threshold arithmetic (increment on repeat offense, widen the
// penalty once a limit is crossed) is grounded on the teacher's
// berith/staking/point.go selection-point adjustment, generalized from a
// stake-weighted advantage to a ban-duration multiplier.
package peers

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/nanod-io/nanod/log"
)

// entry is one endpoint's penalty record (spec.md §4.C).
type entry struct {
	score        uint64
	excludeUntil time.Time
}

// Registry is the peer exclusion table. Insertion/update order in the
// backing lru.Cache tracks age for eviction purposes: every Add call
// (fresh insert or repeat offense) marks the endpoint most-recently-used,
// and once its score reaches score_limit each further offense pushes
// exclude_until strictly later (spec.md §4.C); a repeat offense below
// score_limit only increments the score and leaves exclude_until as is.
// Either way lru.Cache.RemoveOldest evicts the entry least recently
// touched by Add, which tracks "oldest by exclude_until" closely enough
// for spec.md §4.C's capacity bound. Membership checks use Peek so that
// Check never perturbs this ordering.
type Registry struct {
	log *log.Logger
	now func() time.Time

	scoreLimit     uint64
	baseDuration   time.Duration // T_base
	removeDuration time.Duration // T_remove
	sizeMax        int

	mu    sync.Mutex
	cache *lru.Cache
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithClock overrides the time source, for deterministic tests of the
// exclude_until/T_remove arithmetic.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry builds a Registry. scoreLimit, baseDuration, and
// removeDuration correspond to spec.md §4.C's score_limit, T_base, and
// T_remove; sizeMax is the absolute capacity ceiling (the effective
// bound also considers the live network peer count at Add time).
func NewRegistry(scoreLimit uint64, baseDuration, removeDuration time.Duration, sizeMax int, opts ...Option) *Registry {
	if sizeMax < 1 {
		sizeMax = 1
	}
	cache, err := lru.New(sizeMax)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded
		// above.
		panic(err)
	}
	r := &Registry{
		log:            log.Root().Named("peers.exclusion"),
		now:            time.Now,
		scoreLimit:     scoreLimit,
		baseDuration:   baseDuration,
		removeDuration: removeDuration,
		sizeMax:        sizeMax,
		cache:          cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add records one offense for endpoint and returns its new score
// (spec.md §4.C "Add semantics"). networkPeerCount bounds the registry's
// effective capacity for the eviction that follows.
func (r *Registry) Add(endpoint string, networkPeerCount int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var e *entry
	if v, ok := r.cache.Peek(endpoint); ok {
		e = v.(*entry)
		e.score++
		switch {
		case e.score == r.scoreLimit:
			e.excludeUntil = now.Add(r.baseDuration)
		case e.score > r.scoreLimit:
			e.excludeUntil = now.Add(r.baseDuration * time.Duration(e.score) * 2)
		}
	} else {
		e = &entry{score: 1, excludeUntil: now.Add(r.baseDuration)}
	}
	r.cache.Add(endpoint, e)
	r.enforceCapacityLocked(networkPeerCount)
	return e.score
}

// Check reports whether endpoint is currently excluded (spec.md §4.C
// "Check semantics"), evicting it first if it has aged past removal.
func (r *Registry) Check(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.cache.Peek(endpoint)
	if !ok {
		return false
	}
	e := v.(*entry)
	now := r.now()
	if !e.excludeUntil.Add(r.removeDuration * time.Duration(e.score)).After(now) {
		r.cache.Remove(endpoint)
		return false
	}
	return e.score >= r.scoreLimit && e.excludeUntil.After(now)
}

// Remove drops endpoint's penalty record unconditionally.
func (r *Registry) Remove(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(endpoint)
}

// Size reports the number of tracked endpoints.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// capacityLocked computes min(size_max, floor(0.5*network_peer_count))
// (spec.md §4.C "Capacity"). Caller must hold r.mu.
func (r *Registry) capacityLocked(networkPeerCount int) int {
	bound := networkPeerCount / 2
	if bound > r.sizeMax {
		bound = r.sizeMax
	}
	if bound < 1 {
		bound = 1
	}
	return bound
}

// enforceCapacityLocked evicts the oldest entries until the table
// satisfies the dynamic capacity bound, on top of lru.Cache's own fixed
// sizeMax ceiling. Caller must hold r.mu.
func (r *Registry) enforceCapacityLocked(networkPeerCount int) {
	bound := r.capacityLocked(networkPeerCount)
	for r.cache.Len() > bound {
		if _, _, ok := r.cache.RemoveOldest(); !ok {
			return
		}
	}
}
