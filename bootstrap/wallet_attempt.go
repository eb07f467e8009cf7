package bootstrap

import (
	"context"

	mapset "github.com/deckarep/golang-set"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/peers"
)

// WalletAttempt drives the wallet-lazy bootstrap strategy (spec.md
// §4.E "wallet-lazy attempt drives per-account pulls"): for each
// account the local wallet holds, it discovers pending (unreceived)
// sends via bulk_pull_account (SPEC_FULL.md supplemented feature #4),
// then pulls the account's own chain via bulk_pull.
type WalletAttempt struct {
	*Attempt

	pool            ConnectionPool
	bulkPull        BulkPullClient
	bulkPullAccount BulkPullAccountClient
	exclusions      *peers.Registry

	// onPending receives each pending-send hash bulk_pull_account
	// discovers for an account, for the (out-of-scope) block processor
	// to act on.
	onPending func(account ledger.Account, pending ledger.Hash)

	// queued dedupes AddAccount against accounts already queued this
	// attempt (same mapset.Set usage as LazyAttempt.seen).
	queued mapset.Set
}

// NewWalletAttempt constructs a wallet-lazy attempt.
func NewWalletAttempt(cfg Config, pullsCache *PullsCache, pool ConnectionPool, bulkPull BulkPullClient, bulkPullAccount BulkPullAccountClient, exclusions *peers.Registry, onPending func(account ledger.Account, pending ledger.Hash)) *WalletAttempt {
	return &WalletAttempt{
		Attempt:         newAttempt(ModeWalletLazy, cfg, pullsCache),
		pool:            pool,
		bulkPull:        bulkPull,
		bulkPullAccount: bulkPullAccount,
		exclusions:      exclusions,
		onPending:       onPending,
		queued:          mapset.NewSet(),
	}
}

// AddAccount queues a wallet account for per-account pulling, reporting
// whether it was newly queued (an account already queued this attempt
// is not queued twice).
func (a *WalletAttempt) AddAccount(acc ledger.Account) bool {
	if !a.queued.Add(acc) {
		return false
	}
	a.AddPull(PullInfo{AccountOrHead: acc, Account: acc, HeadOriginal: acc})
	return true
}

// Run drives the attempt until no account pulls are outstanding or it
// is stopped.
func (a *WalletAttempt) Run(ctx context.Context) error {
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

func (a *WalletAttempt) pullOneRound(ctx context.Context) {
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

	if a.bulkPullAccount != nil {
		ok = a.bulkPullAccount.PullPendingForAccount(ctx, conn, pull.Account, func(h ledger.Hash) bool {
			if a.onPending != nil {
				a.onPending(pull.Account, h)
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
	}

	ok = a.bulkPull.PullAccount(ctx, conn, pull, func(blk *ledger.Block) bool {
		pull.Processed++
		pull.Head = blk.Hash
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
}
