package peers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(clock *fakeClock, scoreLimit uint64, base, remove time.Duration, sizeMax int) *Registry {
	return NewRegistry(scoreLimit, base, remove, sizeMax, WithClock(clock.now))
}

func TestExclusionAddFirstOffenseInsertsScoreOne(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := newTestRegistry(clock, 5, time.Minute, time.Minute, 100)

	score := r.Add("peer-a", 1000)
	require.Equal(t, uint64(1), score)
	require.Equal(t, 1, r.Size())
}

func TestExclusionScoreBelowLimitIsNotExcluded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := newTestRegistry(clock, 5, time.Minute, time.Minute, 100)

	for i := 0; i < 3; i++ {
		r.Add("peer-a", 1000)
	}
	require.False(t, r.Check("peer-a"))
}

// TestExclusionScoreLimitReachesExclusion mirrors spec.md §8's seed case:
// add(e, 1000) called score_limit+3 times; check(e) is true; advancing
// the clock past exclude_until + T_remove*score makes the next check
// false and evicts the entry.
func TestExclusionScoreLimitReachesExclusion(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	const scoreLimit = 5
	base := time.Minute
	remove := 2 * time.Minute
	r := newTestRegistry(clock, scoreLimit, base, remove, 100)

	var score uint64
	for i := 0; i < scoreLimit+3; i++ {
		score = r.Add("peer-a", 1000)
	}
	require.Equal(t, uint64(scoreLimit+3), score)
	require.True(t, r.Check("peer-a"))
	require.Equal(t, 1, r.Size())

	// exclude_until was last set to now+base*score*2 (score > scoreLimit
	// branch); advance clock past exclude_until + T_remove*score.
	clock.advance(base*time.Duration(score)*2 + remove*time.Duration(score) + time.Second)

	require.False(t, r.Check("peer-a"))
	require.Equal(t, 0, r.Size())
}

func TestExclusionCapacityEvictsOldestByExcludeUntil(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := newTestRegistry(clock, 5, time.Minute, time.Minute, 100)

	r.Add("older", 1000) // exclude_until = t0 + 1m
	clock.advance(time.Second)
	r.Add("newer", 1000) // exclude_until = t0+1s + 1m, strictly later

	// networkPeerCount=2 bounds capacity to floor(0.5*2)=1.
	r.Add("newer", 2)

	require.Equal(t, 1, r.Size())
	require.False(t, containsEndpoint(r, "older"))
	require.True(t, containsEndpoint(r, "newer"))
}

func TestExclusionRemoveDropsEntryUnconditionally(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := newTestRegistry(clock, 5, time.Minute, time.Minute, 100)

	r.Add("peer-a", 1000)
	r.Remove("peer-a")
	require.Equal(t, 0, r.Size())
	require.False(t, r.Check("peer-a"))
}

func TestExclusionCheckUnknownEndpointIsNotExcluded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := newTestRegistry(clock, 5, time.Minute, time.Minute, 100)
	require.False(t, r.Check("never-seen"))
}

func containsEndpoint(r *Registry, endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Contains(endpoint)
}
