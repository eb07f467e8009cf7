package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
)

func TestPullsCacheInsertBelowThresholdIsNoop(t *testing.T) {
	c := NewPullsCache(4, 500)
	acc := ledger.Hash{1}
	c.Add(PullInfo{Account: acc, HeadOriginal: ledger.Hash{2}, Head: ledger.Hash{3}, Processed: 500})
	require.Equal(t, 0, c.Len())
}

func TestPullsCacheUpdateRewritesHead(t *testing.T) {
	c := NewPullsCache(4, 500)
	acc := ledger.Hash{1}
	orig := ledger.Hash{2}
	newHead := ledger.Hash{9}
	c.Add(PullInfo{Account: acc, HeadOriginal: orig, Head: newHead, Processed: 501})
	require.Equal(t, 1, c.Len())

	p := PullInfo{Account: acc, HeadOriginal: orig, Head: ledger.Hash{5}}
	require.True(t, c.Update(&p))
	require.Equal(t, newHead, p.Head)
}

func TestPullsCacheMissUpdateReportsFalse(t *testing.T) {
	c := NewPullsCache(4, 500)
	p := PullInfo{Account: ledger.Hash{1}, HeadOriginal: ledger.Hash{2}}
	require.False(t, c.Update(&p))
}

func TestPullsCacheEvictsOldestOverCapacity(t *testing.T) {
	c := NewPullsCache(2, 500)
	for i := byte(0); i < 3; i++ {
		c.Add(PullInfo{Account: ledger.Hash{i}, HeadOriginal: ledger.Hash{i, 1}, Head: ledger.Hash{i, 2}, Processed: 600})
	}
	require.Equal(t, 2, c.Len())
	// The first-inserted key should have been evicted.
	p := PullInfo{Account: ledger.Hash{0}, HeadOriginal: ledger.Hash{0, 1}}
	require.False(t, c.Update(&p))
}
