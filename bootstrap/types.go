// Package bootstrap implements the bootstrap orchestrator (components
// D, E, F of spec.md §4): the pulls cache, the per-strategy bootstrap
// attempts (legacy frontier-pull, lazy pull-by-hash, wallet-lazy), and
// the initiator that arbitrates them over a pool of long-lived peer
// connections.
//
// The request/response-with-cancellation shape and the long-lived
// client/server arbitration pattern are grounded on the teacher's
// les/backend.go (requestDistributor/retrieveManager wiring) and
// light/odr_util.go; the channel-driven, condition-guarded worker
// lifecycle follows miner/worker.go's newWorkLoop/mainLoop/taskLoop
// split, generalized from "mine one block" to "drive one bootstrap
// attempt to completion".
package bootstrap

import (
	"errors"
	"time"

	"github.com/nanod-io/nanod/ledger"
)

// Mode selects a bootstrap attempt's strategy (spec.md §3 "Bootstrap
// attempt — { ... mode: {legacy,lazy,wallet_lazy} ... }").
type Mode int

const (
	ModeLegacy Mode = iota
	ModeLazy
	ModeWalletLazy
)

func (m Mode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeLazy:
		return "lazy"
	case ModeWalletLazy:
		return "wallet_lazy"
	default:
		return "unknown"
	}
}

// Errors surfaced by the bootstrap layer (spec.md §7 "Bootstrap" kinds).
var (
	ErrPeerUnavailable            = errors.New("bootstrap: peer unavailable")
	ErrFrontierRequestFailed      = errors.New("bootstrap: frontier request failed")
	ErrFrontierConfirmationFailed = errors.New("bootstrap: frontier confirmation failed")
	ErrProtocolViolation          = errors.New("bootstrap: protocol violation")
	ErrStopped                    = errors.New("bootstrap: attempt stopped")
)

// PullInfo is a single account's in-flight pull progress (spec.md §3
// "Pull info"). SPEC_FULL.md supplements Unchecked (the original's
// not_a_block/gap_source tracking, load-bearing for requeue decisions
// under adversarial peers) and End/Account for bulk_pull_account mode.
type PullInfo struct {
	AccountOrHead ledger.Hash
	Head          ledger.Hash
	HeadOriginal  ledger.Hash
	End           ledger.Hash
	Account       ledger.Account
	Processed     uint64
	Attempts      uint32
	Unchecked     bool
}

// Config carries the tunable thresholds spec.md §4.E and §9 call out
// as open questions or test-mode-scaled constants. DefaultConfig
// returns the spec's stated production values.
type Config struct {
	TestMode bool

	// PullsRequeuedRestartLimit is R_limit (spec.md §4.E "requeued_pulls
	// > R_limit"); spec.md §9 records the open question that `>` (not
	// `≥`) is preserved as observed.
	PullsRequeuedRestartLimit uint32
	// TotalBlocksRestartLimit is B_limit (spec.md §4.E "total_blocks >
	// B_limit").
	TotalBlocksRestartLimit uint64

	// PullsCacheCapacity bounds component D (spec.md §4.D).
	PullsCacheCapacity int
	// PullsCacheMinProcessed is the "processed > 500" threshold gating
	// insertion (spec.md §4.D).
	PullsCacheMinProcessed uint64

	// Frontier confirmation (spec.md §4.E "Confirm frontiers"), exposed
	// as configurable fields per SPEC_FULL.md's "election/vote-style
	// representative sampling parameters" supplement.
	MaxFrontiersToConfirm      int
	ConfirmReqRounds           int
	ConfirmReqWait             time.Duration
	SampleBottomHalfCap        int
	ConfirmedVoteWeightPct     float64 // 12.5%
	ConfirmedVoterCountPct     float64 // 60% of requested reps
	SampleMinWeightPct         float64 // 25% of total representative weight
	OverallConfirmedFrontierPct float64 // 80% of initial frontiers
}

// DefaultConfig returns spec.md's stated production constants.
func DefaultConfig() Config {
	return Config{
		PullsRequeuedRestartLimit:  1024,
		TotalBlocksRestartLimit:    500_000,
		PullsCacheCapacity:         8192,
		PullsCacheMinProcessed:     500,
		MaxFrontiersToConfirm:      1000,
		ConfirmReqRounds:           20,
		ConfirmReqWait:             500 * time.Millisecond,
		SampleBottomHalfCap:        20,
		ConfirmedVoteWeightPct:     12.5,
		ConfirmedVoterCountPct:     60,
		SampleMinWeightPct:         25,
		OverallConfirmedFrontierPct: 80,
	}
}

// TestConfig returns the test-mode-scaled constants spec.md §4.E and
// §9 call for ("smaller in test mode"; "500 ms wait (5 ms in test)").
func TestConfig() Config {
	c := DefaultConfig()
	c.TestMode = true
	c.PullsRequeuedRestartLimit = 4
	c.TotalBlocksRestartLimit = 500
	c.ConfirmReqWait = 5 * time.Millisecond
	c.PullsCacheCapacity = 64
	return c
}
