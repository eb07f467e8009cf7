package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
)

func TestAttemptRestartConditionOnRequeuedPulls(t *testing.T) {
	cfg := TestConfig()
	cfg.PullsRequeuedRestartLimit = 2
	a := newAttempt(ModeLegacy, cfg, nil)

	a.AddPull(PullInfo{Account: ledger.Hash{1}})
	require.False(t, a.Snapshot().Stopped)

	for i := 0; i < 3; i++ {
		p, ok := a.popPull()
		require.True(t, ok)
		a.RequeuePull(p)
	}

	a.mu.Lock()
	pend := a.frontiersConfirmationPend
	a.mu.Unlock()
	require.True(t, pend, "requeued_pulls > R_limit must set frontiers_confirmation_pending")
}

func TestAttemptRestartConditionOnTotalBlocks(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalBlocksRestartLimit = 10
	a := newAttempt(ModeLegacy, cfg, nil)

	a.AddPull(PullInfo{Account: ledger.Hash{1}})
	p, _ := a.popPull()
	p.Processed = 11
	a.completePull(p)

	a.mu.Lock()
	pend := a.frontiersConfirmationPend
	a.mu.Unlock()
	require.True(t, pend, "total_blocks > B_limit must set frontiers_confirmation_pending")
}

func TestAttemptStopWakesWaiters(t *testing.T) {
	a := newAttempt(ModeLegacy, TestConfig(), nil)
	a.AddPull(PullInfo{Account: ledger.Hash{1}})

	done := make(chan struct{})
	go func() {
		a.waitPulling()
		close(done)
	}()

	a.Stop()
	<-done // must not hang
	require.True(t, a.Stopped())
}

func TestAttemptPullingConditionReleasesWhenDrained(t *testing.T) {
	a := newAttempt(ModeLegacy, TestConfig(), nil)
	a.AddPull(PullInfo{Account: ledger.Hash{1}})

	done := make(chan struct{})
	go func() {
		a.waitPulling()
		close(done)
	}()

	p, ok := a.popPull()
	require.True(t, ok)
	a.completePull(p)

	<-done
}
