// Package confheight implements the unbounded confirmation-height
// cementer (component G, spec.md §4.G): given a block known to the
// ledger, it walks receive/source chains across accounts to compute,
// in bulk, the new confirmation height for each touched account, then
// commits those updates atomically while preserving per-account
// observer callback ordering.
//
// The cyclic-reference shape spec.md §9 flags (pending writes
// cross-referenced by a map of weak handles) does not arise here:
// pendingWrites is an append-only slice, the walk is an explicit stack
// of per-account frames, and there is no receive-source pair list and
// no implicit-receive mapping, so nothing needs a weak reference or a
// cycle-aware collector.
package confheight

import (
	"errors"

	"github.com/nanod-io/nanod/ledger"
)

// Observer receives a cemented block+sideband bundle, in strict
// ascending height order per account (spec.md §4.G invariant).
type Observer func(ledger.BlockWithSideband)

// Config tunes the cementer's batching policy.
type Config struct {
	// BatchWriteSize is the pending-write count that triggers a flush
	// mid-walk (spec.md §4.G step 7: "when pending_writes.size >=
	// batch_write_size"). NewCementer replaces a value <= 0 with
	// DefaultConfig's.
	BatchWriteSize int
	// BatchTime is a per-batch time bound in nanoseconds. Process does
	// not consult it: a batch is flushed only when BatchWriteSize is
	// reached mid-walk and once more when the walk ends, however long
	// that takes.
	BatchTime int64

	// TestNetwork relaxes the "missing block aborts cementation" rule
	// (spec.md §4.G step 7: "outside test networks"), matching how
	// test fixtures legitimately reference blocks never written.
	TestNetwork bool
}

// DefaultConfig mirrors the original's unbounded-processor batch size.
func DefaultConfig() Config {
	return Config{BatchWriteSize: 65536}
}

// ErrMissingBlock is surfaced when a pending write references a block
// the store does not have (spec.md §4.G step 7 "outside test
// networks").
var ErrMissingBlock = errors.New("confheight: pending block missing from store")

// confirmedIteratedPair tracks, per account, the confirmed height
// already durable in the store and the height this cementer has
// iterated up to so far (possibly ahead of confirmed, for work queued
// but not yet committed). spec.md §3 "Confirmed-iterated pair".
type confirmedIteratedPair struct {
	confirmed uint64
	iterated  uint64
}

// pendingWrite is one not-yet-committed confirmation-height update
// (spec.md §3 "Conf-height detail"). callbackHashes is stored in
// descending-height (walk) order and reversed only at emission time
// (spec.md §4.G step 7: "reverse callback_hashes (low -> high)").
type pendingWrite struct {
	account            ledger.Account
	hash               ledger.Hash
	height             uint64
	numBlocksConfirmed uint64
	callbackHashes     []ledger.Hash
}
