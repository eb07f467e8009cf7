package bootstrap

import (
	"context"

	mapset "github.com/deckarep/golang-set"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/peers"
)

// LazyAttempt drives the lazy pull-by-hash bootstrap strategy (spec.md
// §4.E "Lazy attempt drives a pull-by-hash expansion"): rather than
// walking account frontiers, it pulls an initial set of block hashes
// and expands the frontier by following unchecked dependencies
// discovered in pulled blocks (SPEC_FULL.md supplemented feature #3,
// "not_a_block / gap_source bootstrap outcomes").
//
// LazyAttempt shares the base Attempt contract (pulling, requeue,
// add-pull, process-block) but owns disjoint strategy state from
// LegacyAttempt; it simply has no confirm-frontiers/bulk-push methods,
// which is the Go-idiomatic replacement for the original's runtime
// mode assertion guarding legacy-only operations on a shared type.
type LazyAttempt struct {
	*Attempt

	pool       ConnectionPool
	bulkPull   BulkPullClient
	exclusions *peers.Registry

	// dependencies extracts further hashes to pull from a received
	// block (e.g. its link, if the source is not yet known locally).
	// The block-processor pipeline itself is out of scope (spec.md
	// §1); this hook is the external-collaborator contract for it.
	dependencies func(blk *ledger.Block) []ledger.Hash

	// seen dedupes AddKey against hashes already pulled or queued this
	// attempt, grounded on miner/worker.go's mapset.Set usage
	// (github.com/deckarep/golang-set), generalized from "ancestor/family
	// block-hash sets for uncle validation" to "hashes already seen by
	// this lazy attempt". mapset's default Set is concurrency-safe, so
	// AddKey needs no separate mutex.
	seen mapset.Set
}

// NewLazyAttempt constructs a lazy-mode attempt.
func NewLazyAttempt(cfg Config, pullsCache *PullsCache, pool ConnectionPool, bulkPull BulkPullClient, exclusions *peers.Registry, dependencies func(blk *ledger.Block) []ledger.Hash) *LazyAttempt {
	return &LazyAttempt{
		Attempt:      newAttempt(ModeLazy, cfg, pullsCache),
		pool:         pool,
		bulkPull:     bulkPull,
		exclusions:   exclusions,
		dependencies: dependencies,
		seen:         mapset.NewSet(),
	}
}

// AddKey seeds a hash to pull from, reporting whether it was newly
// added; a hash already seen by this attempt is ignored (spec.md §4.E
// "lazy attempt drives a pull-by-hash expansion").
func (a *LazyAttempt) AddKey(hash ledger.Hash) bool {
	if !a.seen.Add(hash) {
		return false
	}
	a.AddPull(PullInfo{AccountOrHead: hash, Head: hash, HeadOriginal: hash, Unchecked: true})
	return true
}

// Run drives the attempt until no more keys are outstanding or it is
// stopped (spec.md §4.E pulling condition applies identically to lazy
// mode: "not stopped and pulling > 0").
func (a *LazyAttempt) Run(ctx context.Context) error {
	for {
		if a.Stopped() {
			return ErrStopped
		}
		a.pullOneRound(ctx)
		a.waitPulling()
		if a.Stopped() {
			return ErrStopped
		}
		if !a.stillPulling() {
			return nil
		}
	}
}

func (a *LazyAttempt) pullOneRound(ctx context.Context) {
	pull, ok := a.popPull()
	if !ok {
		return
	}
	conn, ok := a.pool.Acquire(ctx)
	if !ok {
		a.RequeuePull(pull)
		return
	}
	defer a.pool.Release(conn)

	var deps []ledger.Hash
	ok = a.bulkPull.PullAccount(ctx, conn, pull, func(blk *ledger.Block) bool {
		pull.Processed++
		pull.Head = blk.Hash
		if a.dependencies != nil {
			deps = append(deps, a.dependencies(blk)...)
		}
		return true
	})
	if !ok {
		if a.exclusions != nil {
			a.exclusions.Add(conn.Endpoint(), 0)
		}
		a.RequeuePull(pull)
		return
	}
	a.completePull(pull)
	for _, h := range deps {
		a.AddKey(h)
	}
}
