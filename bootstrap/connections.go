package bootstrap

import (
	"context"

	"github.com/nanod-io/nanod/ledger"
)

// Connection is a long-lived peer connection the bootstrap orchestrator
// pulls frontiers and blocks over. Socket lifecycle (dialing, framing,
// TCP I/O timeouts) is out of scope per spec.md §1 and §6; this is the
// external-collaborator contract a real transport layer satisfies.
type Connection interface {
	// Endpoint identifies the remote peer, for exclusion-registry
	// lookups and logging.
	Endpoint() string
}

// ConnectionPool hands out and reclaims the pool of long-lived peer
// connections spec.md §1 describes the bootstrap orchestrator driving
// strategies "over". Acquire blocks (subject to ctx) until a
// connection is available or the pool is exhausted.
type ConnectionPool interface {
	Acquire(ctx context.Context) (Connection, bool)
	Release(c Connection)
	// Reconnect drops a connection that misbehaved and attempts to
	// replace it with a fresh one from the peer set (spec.md §4.E
	// "recovery from partial peer failure").
	Reconnect(c Connection)
}

// Representative is a voting account with delegated weight, the unit
// spec.md §4.E's frontier-confirmation sampling draws from.
type Representative struct {
	Account ledger.Account
	Weight  uint64
}

// VoteTally accumulates confirm_ack responses for one frontier hash
// during confirm_req rounds (spec.md §4.E "Confirm frontiers").
type VoteTally struct {
	Weight uint64
	Voters int
}

// FrontierClient runs a frontier_req exchange over a connection,
// streaming (account, frontier-hash) pairs to fn until it returns
// false or the peer's stream ends. Returns false on failure (spec.md
// §4.E "request_frontier ... on failure retries").
type FrontierClient interface {
	RequestFrontiers(ctx context.Context, conn Connection, fn func(account ledger.Account, frontier ledger.Hash) bool) bool
}

// BulkPullClient runs a bulk_pull exchange for one account between two
// hashes, streaming blocks to fn in order.
type BulkPullClient interface {
	PullAccount(ctx context.Context, conn Connection, pull PullInfo, fn func(blk *ledger.Block) bool) bool
}

// BulkPullAccountClient runs bulk_pull_account: pending-block discovery
// scoped to one account (SPEC_FULL.md supplemented feature #4, used by
// wallet-lazy bootstrap).
type BulkPullAccountClient interface {
	PullPendingForAccount(ctx context.Context, conn Connection, account ledger.Account, fn func(hash ledger.Hash) bool) bool
}

// BulkPushClient streams local blocks to a peer (spec.md §4.E "Bulk
// push: pop each (head, end) target and stream local blocks to the
// peer").
type BulkPushClient interface {
	Push(ctx context.Context, conn Connection, blk *ledger.Block) bool
}

// ConfirmReqClient batches confirm_req to a sample of representatives
// and returns the accumulated vote tally per frontier hash (spec.md
// §4.E "Iterate up to 20 rounds of confirm_req batches").
type ConfirmReqClient interface {
	ConfirmReq(ctx context.Context, reps []Representative, hashes []ledger.Hash) map[ledger.Hash]*VoteTally
}

// RepresentativeSource supplies the live representative set and its
// total weight for frontier-confirmation sampling (spec.md §4.E
// "representative sample").
type RepresentativeSource interface {
	Representatives() []Representative
}

// LedgerReader is the read-only view of the ledger the bootstrap layer
// needs (spec.md §1 ledger storage is out of scope; this is the
// external-collaborator read contract spec.md §4.E's "the ledger
// already contains it" check uses).
type LedgerReader interface {
	Contains(hash ledger.Hash) bool
}

// BlockSource streams local blocks for bulk push (spec.md §4.E "Bulk
// push"), in account-chain order between head (exclusive) and end
// (inclusive).
type BlockSource interface {
	StreamBlocks(head, end ledger.Hash, fn func(blk *ledger.Block) bool) error
}
