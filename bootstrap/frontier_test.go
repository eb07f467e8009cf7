package bootstrap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
)

func TestSampleRepresentativesMeetsWeightFloor(t *testing.T) {
	var reps []Representative
	for i := 0; i < 40; i++ {
		reps = append(reps, Representative{Account: ledger.Hash{byte(i)}, Weight: uint64(i + 1)})
	}
	rng := rand.New(rand.NewSource(1))
	sample := sampleRepresentatives(reps, rng, 5, 25)

	var total, selected uint64
	for _, r := range reps {
		total += r.Weight
	}
	for _, r := range sample {
		selected += r.Weight
	}
	require.GreaterOrEqual(t, float64(selected), float64(total)*25/100)
}

func TestSampleRepresentativesCapsBottomHalf(t *testing.T) {
	var reps []Representative
	for i := 0; i < 10; i++ {
		reps = append(reps, Representative{Account: ledger.Hash{byte(i)}, Weight: 1})
	}
	rng := rand.New(rand.NewSource(2))
	sample := sampleRepresentatives(reps, rng, 2, 0)
	require.LessOrEqual(t, len(sample), 2)
}

func TestFrontierConfirmedRequiresBothWeightAndVoters(t *testing.T) {
	cfg := DefaultConfig()
	totalWeight := uint64(1000)

	require.False(t, frontierConfirmed(nil, totalWeight, 10, cfg))
	require.False(t, frontierConfirmed(&VoteTally{Weight: 200, Voters: 1}, totalWeight, 10, cfg))
	require.True(t, frontierConfirmed(&VoteTally{Weight: 200, Voters: 6}, totalWeight, 10, cfg))
}

func TestOverallConfirmedAt80Percent(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, overallConfirmed(8, 10, cfg))
	require.False(t, overallConfirmed(7, 10, cfg))
	require.True(t, overallConfirmed(0, 0, cfg))
}

func TestCollectFrontierHashesDedupesAndCaps(t *testing.T) {
	pulls := []PullInfo{{Head: ledger.Hash{1}}, {Head: ledger.Hash{2}}, {Head: ledger.Hash{1}}}
	recent := []ledger.Hash{{3}, {4}}
	got := collectFrontierHashes(pulls, recent, 3)
	require.Len(t, got, 3)
	require.Equal(t, []ledger.Hash{{1}, {2}, {3}}, got)
}
