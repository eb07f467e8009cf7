package work

import (
	"sync"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/log"
)

// PeerWorkServer is a remote solver the distributed layer may fan a
// request out to (spec.md §1 "a distributed front-end that coordinates
// many outstanding requests and external solvers"; SPEC_FULL.md
// "Work-generate RPC-shaped distributed client" supplements this to a
// list of configured servers rather than a single one, grounded on
// original_source/nano/lib/work.cpp's list of work peers).
type PeerWorkServer interface {
	// Generate asks the remote solver for a nonce. It must respect
	// cancellation of ctx-like semantics via the returned cancel func:
	// calling cancel should make a best effort to stop the remote
	// search and must not block.
	Generate(root ledger.Root, difficulty uint64, done func(nonce uint64, ok bool)) (cancel func())
}

// attempt tracks one outstanding solver (local pool, accelerator, or a
// single peer) contributing to a distributed record.
type attempt struct {
	cancel func()
	isPool bool
}

// record is a single outstanding logical work request, spec.md §3
// "Distributed work record". Multiple records may share a root.
type record struct {
	root       ledger.Root
	difficulty uint64
	callback   Callback
	cancelled  bool
	completed  bool
	attempts   []*attempt
}

// Distributed coordinates a single logical work request across the
// local pool, an optional accelerator, and remote peer solvers
// (component B). The fan-out/aggregation shape (first success wins,
// siblings cancelled, an observer event cancels every outstanding
// attempt for a root) is grounded on the job/share aggregation loop in
// other_examples' tos-network-tos-pool master coordinator, generalized
// from "one job, many miners" to "one root, many solvers".
type Distributed struct {
	log  *log.Logger
	pool *Pool
	peers []PeerWorkServer

	mu      sync.Mutex
	byRoot  map[ledger.Root][]*record
}

// NewDistributed builds a Distributed front-end over pool, optionally
// fanning out to peers.
func NewDistributed(pool *Pool, peers ...PeerWorkServer) *Distributed {
	return &Distributed{
		log:    log.Root().Named("work.distributed"),
		pool:   pool,
		peers:  peers,
		byRoot: make(map[ledger.Root][]*record),
	}
}

// Make inserts a new record for root and starts its solvers: the local
// pool and every configured peer (spec.md §4.B "make(root, callback,
// difficulty)"). The first solver to report a nonce wins: it cancels
// every sibling attempt for that record and invokes callback exactly
// once.
func (d *Distributed) Make(root ledger.Root, difficulty uint64, callback Callback) {
	rec := &record{root: root, difficulty: difficulty, callback: callback}

	d.mu.Lock()
	d.byRoot[root] = append(d.byRoot[root], rec)
	d.mu.Unlock()

	poolCancelSlot := &attempt{isPool: true}
	rec.attempts = append(rec.attempts, poolCancelSlot)
	poolCancelSlot.cancel = func() { d.pool.Cancel(root) }

	d.pool.Generate(root, difficulty, func(nonce uint64, ok bool) {
		d.finish(rec, nonce, ok, poolCancelSlot)
	})

	for _, peer := range d.peers {
		slot := &attempt{}
		rec.attempts = append(rec.attempts, slot)
		slot.cancel = peer.Generate(root, difficulty, func(nonce uint64, ok bool) {
			d.finish(rec, nonce, ok, slot)
		})
	}
}

// finish handles one solver's result for rec. The first solution wins
// and cancels the siblings; empty results never complete the record,
// and completions for an already-finished record are dropped, making
// the aggregation idempotent under concurrent attempts.
func (d *Distributed) finish(rec *record, nonce uint64, ok bool, self *attempt) {
	d.mu.Lock()
	if rec.completed {
		d.mu.Unlock()
		return
	}
	if !ok {
		// A solver coming back empty (cancelled, peer unreachable) is
		// ignored here, even when every solver has reported empty: an
		// empty outcome for the record comes only from Cancel (or
		// WorkCancel), which marks rec.cancelled and fires the callback
		// itself.
		d.mu.Unlock()
		return
	}
	rec.completed = true
	siblings := make([]*attempt, 0, len(rec.attempts))
	for _, a := range rec.attempts {
		if a != self {
			siblings = append(siblings, a)
		}
	}
	d.mu.Unlock()

	for _, a := range siblings {
		a.cancel()
	}
	rec.callback(nonce, true)
}

// Cancel cancels every record for root (spec.md §4.B "cancel(root,
// force_local)"). If forceLocal, the local pool search for root is
// also cancelled; otherwise only peer attempts and bookkeeping are
// torn down (used when another solver, e.g. a block arriving from the
// network, has already made the root obsolete but the pool might still
// legitimately be searching it for a different purpose). Note that
// because work.Pool.Cancel is root-scoped rather than per-request, a
// forceLocal cancel of one record also tears down the pool search of
// any other record sharing the same root.
func (d *Distributed) Cancel(root ledger.Root, forceLocal bool) {
	d.mu.Lock()
	recs := d.byRoot[root]
	var toFire []*record
	for _, rec := range recs {
		if rec.completed || rec.cancelled {
			continue
		}
		rec.cancelled = true
		rec.completed = true
		toFire = append(toFire, rec)
	}
	d.mu.Unlock()

	for _, rec := range toFire {
		for _, a := range rec.attempts {
			if a.isPool && !forceLocal {
				// Leave the pool slot running: only an explicit
				// forceLocal cancel tears down the work-pool search
				// (spec.md §4.B); a plain cancel tears down peer
				// attempts and record bookkeeping only.
				continue
			}
			a.cancel()
		}
		rec.callback(0, false)
	}
}

// WorkCancel handles a remote observer event announcing that root is
// no longer needed (spec.md §4.B: "a remote observer event work_cancel(root)
// cancels outstanding local and peer attempts for every record of that
// root"). Equivalent to Cancel(root, true) but named for the call site
// that reacts to the network event rather than a local decision.
func (d *Distributed) WorkCancel(root ledger.Root) {
	d.Cancel(root, true)
}

// Cleanup removes completed records only; it never cancels an
// in-flight record (spec.md §4.B invariant: "cleanup is idempotent and
// never races with an in-flight completion such that the callback is
// dropped").
func (d *Distributed) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for root, recs := range d.byRoot {
		kept := recs[:0]
		for _, rec := range recs {
			if !rec.completed {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(d.byRoot, root)
		} else {
			d.byRoot[root] = kept
		}
	}
}

// Len reports the number of tracked records across all roots, for
// tests verifying spec.md §8 "work retains one entry per request until
// cleanup()".
func (d *Distributed) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, recs := range d.byRoot {
		n += len(recs)
	}
	return n
}
