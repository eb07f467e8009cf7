package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/peers"
)

// legacyState enumerates the legacy attempt's state machine (spec.md
// §4.E):
//
//	INIT -> REQUEST_FRONTIER -> PULLING <-> MAYBE_CONFIRM_FRONTIERS -> BULK_PUSH -> DONE
//	                                       (confirm fails) -> STOP -> restart bootstrap
type legacyState int

const (
	legacyInit legacyState = iota
	legacyRequestFrontier
	legacyPulling
	legacyMaybeConfirmFrontiers
	legacyBulkPush
	legacyDone
	legacyStopRestart
)

// pushTarget is a (head, end) range of local blocks to stream to a
// peer during bulk push (spec.md §4.E "Bulk push: pop each (head, end)
// target and stream local blocks to the peer").
type pushTarget struct {
	head ledger.Hash
	end  ledger.Hash
}

// LegacyAttempt drives the legacy frontier-pull bootstrap strategy
// (spec.md §4.E). Grounded on les/backend.go's retrieval-manager shape
// (request distribution, timeout/cancel plumbing) generalized from "on
// demand light-client retrieval" to "bulk historical sync".
type LegacyAttempt struct {
	*Attempt

	pool        ConnectionPool
	frontier    FrontierClient
	bulkPull    BulkPullClient
	bulkPush    BulkPushClient
	confirmReq  ConfirmReqClient
	reps        RepresentativeSource
	ledger      LedgerReader
	blocks      BlockSource
	exclusions  *peers.Registry
	rng         *rand.Rand

	pushTargets []pushTarget
}

// NewLegacyAttempt constructs a legacy-mode attempt.
func NewLegacyAttempt(cfg Config, pullsCache *PullsCache, pool ConnectionPool, frontier FrontierClient, bulkPull BulkPullClient, bulkPush BulkPushClient, confirmReq ConfirmReqClient, reps RepresentativeSource, ledg LedgerReader, blocks BlockSource, exclusions *peers.Registry) *LegacyAttempt {
	return &LegacyAttempt{
		Attempt:    newAttempt(ModeLegacy, cfg, pullsCache),
		pool:       pool,
		frontier:   frontier,
		bulkPull:   bulkPull,
		bulkPush:   bulkPush,
		confirmReq: confirmReq,
		reps:       reps,
		ledger:     ledg,
		blocks:     blocks,
		exclusions: exclusions,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRNG overrides the representative-sampling RNG, for deterministic
// tests (spec.md §9 "make the RNG injectable").
func (a *LegacyAttempt) WithRNG(r *rand.Rand) *LegacyAttempt {
	a.rng = r
	return a
}

// Run drives the attempt to completion: the state machine above, run
// to DONE or a stop. Called by the initiator's legacy strategy thread
// with the attempts lock released (spec.md §4.E "executes that
// attempt's run() to completion with the attempt lock released").
func (a *LegacyAttempt) Run(ctx context.Context) error {
	state := legacyInit
	for {
		if a.Stopped() {
			return ErrStopped
		}
		switch state {
		case legacyInit:
			state = legacyRequestFrontier

		case legacyRequestFrontier:
			if a.requestFrontier(ctx) {
				state = legacyPulling
			} // on failure, retry (stay in this state) until stopped
			if a.Stopped() {
				return ErrStopped
			}

		case legacyPulling:
			a.pullOneRound(ctx)
			a.waitPulling()
			if a.Stopped() {
				return ErrStopped
			}
			a.mu.Lock()
			pend := a.frontiersConfirmationPend
			done := !a.stillPulling() && !pend
			a.mu.Unlock()
			switch {
			case pend:
				state = legacyMaybeConfirmFrontiers
			case done:
				state = legacyBulkPush
			}

		case legacyMaybeConfirmFrontiers:
			if a.confirmFrontiers(ctx) {
				a.mu.Lock()
				a.frontiersConfirmationPend = false
				a.mu.Unlock()
				state = legacyPulling
			} else {
				state = legacyStopRestart
			}

		case legacyBulkPush:
			a.runBulkPush(ctx)
			state = legacyDone

		case legacyDone:
			return nil

		case legacyStopRestart:
			a.Stop()
			return ErrFrontierConfirmationFailed
		}
	}
}

// requestFrontier acquires a connection, runs a frontier client, and
// on success shuffles the resulting pulls into the main pulls deque
// (spec.md §4.E "request_frontier").
func (a *LegacyAttempt) requestFrontier(ctx context.Context) bool {
	conn, ok := a.pool.Acquire(ctx)
	if !ok {
		return false
	}
	defer a.pool.Release(conn)

	var collected []PullInfo
	ok = a.frontier.RequestFrontiers(ctx, conn, func(acc ledger.Account, frontier ledger.Hash) bool {
		collected = append(collected, PullInfo{AccountOrHead: acc, Account: acc, Head: frontier, HeadOriginal: frontier})
		return true
	})
	if !ok {
		if a.exclusions != nil {
			a.exclusions.Add(conn.Endpoint(), 0)
		}
		return false
	}

	a.rng.Shuffle(len(collected), func(i, j int) { collected[i], collected[j] = collected[j], collected[i] })
	for _, p := range collected {
		if a.pullsCache != nil {
			a.pullsCache.Update(&p)
		}
		a.AddPull(p)
		a.pushTargets = append(a.pushTargets, pushTarget{head: p.HeadOriginal, end: p.Head})
	}
	return true
}

// pullOneRound drains the front pull (if any) over an acquired
// connection, streaming blocks and requeuing on transient failure.
func (a *LegacyAttempt) pullOneRound(ctx context.Context) {
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

// confirmFrontiers implements spec.md §4.E "Confirm frontiers": sample
// representatives, batch confirm_req over up to ConfirmReqRounds
// rounds, and decide per-frontier and overall confirmation.
func (a *LegacyAttempt) confirmFrontiers(ctx context.Context) bool {
	a.mu.Lock()
	var recent []ledger.Hash
	for e := a.pulls.Front(); e != nil; e = e.Next() {
		recent = append(recent, e.Value.(PullInfo).Head)
	}
	a.mu.Unlock()
	frontiers := collectFrontierHashes(nil, recent, a.cfg.MaxFrontiersToConfirm)
	if len(frontiers) == 0 {
		return true
	}

	var reps []Representative
	var totalWeight uint64
	if a.reps != nil {
		reps = a.reps.Representatives()
		for _, r := range reps {
			totalWeight += r.Weight
		}
	}
	sample := sampleRepresentatives(reps, a.rng, a.cfg.SampleBottomHalfCap, a.cfg.SampleMinWeightPct)

	confirmed := make(map[ledger.Hash]bool, len(frontiers))
	for _, h := range frontiers {
		if a.ledger != nil && a.ledger.Contains(h) {
			confirmed[h] = true
		}
	}

	tallies := make(map[ledger.Hash]*VoteTally, len(frontiers))
	for round := 0; round < a.cfg.ConfirmReqRounds; round++ {
		if a.Stopped() {
			return false
		}
		pending := pendingFrontiers(frontiers, confirmed)
		if len(pending) == 0 {
			break
		}
		if a.confirmReq != nil {
			res := a.confirmReq.ConfirmReq(ctx, sample, pending)
			for h, t := range res {
				tallies[h] = t
				if frontierConfirmed(t, totalWeight, len(sample), a.cfg) {
					confirmed[h] = true
				}
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(a.cfg.ConfirmReqWait):
		}
	}

	return overallConfirmed(len(confirmed), len(frontiers), a.cfg)
}

func pendingFrontiers(all []ledger.Hash, confirmed map[ledger.Hash]bool) []ledger.Hash {
	out := all[:0:0]
	for _, h := range all {
		if !confirmed[h] {
			out = append(out, h)
		}
	}
	return out
}

// runBulkPush streams every queued (head, end) range over one
// connection acquired from the pool, which need not be the peer that
// provided the frontiers (spec.md §4.E "Bulk push").
func (a *LegacyAttempt) runBulkPush(ctx context.Context) {
	if a.blocks == nil || a.bulkPush == nil {
		return
	}
	conn, ok := a.pool.Acquire(ctx)
	if !ok {
		return
	}
	defer a.pool.Release(conn)

	for _, t := range a.pushTargets {
		if a.Stopped() {
			return
		}
		_ = a.blocks.StreamBlocks(t.head, t.end, func(blk *ledger.Block) bool {
			return a.bulkPush.Push(ctx, conn, blk)
		})
	}
}
