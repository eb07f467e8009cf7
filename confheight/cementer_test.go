package confheight

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/store"
)

// fakeBlocks is an in-memory BlockReader fixture: tests build a small
// block-lattice fragment by hand and hand it to the cementer, the same
// way the teacher's own store tests build fixtures without a live
// network (store/store_test.go).
type fakeBlocks struct {
	byHash map[ledger.Hash]*ledger.Block
	byAcct map[ledger.Account]map[uint64]ledger.Hash
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{
		byHash: make(map[ledger.Hash]*ledger.Block),
		byAcct: make(map[ledger.Account]map[uint64]ledger.Hash),
	}
}

func (f *fakeBlocks) add(blk *ledger.Block, account ledger.Account, height uint64) {
	f.byHash[blk.Hash] = blk
	if f.byAcct[account] == nil {
		f.byAcct[account] = make(map[uint64]ledger.Hash)
	}
	f.byAcct[account][height] = blk.Hash
	_ = height
}

func (f *fakeBlocks) GetBlock(txn store.Txn, hash ledger.Hash) (*ledger.Block, *ledger.Sideband, error) {
	blk, ok := f.byHash[hash]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	return blk, &ledger.Sideband{Height: f.heightOf(blk), Account: blk.Account}, nil
}

func (f *fakeBlocks) heightOf(blk *ledger.Block) uint64 {
	for h, hash := range f.byAcct[blk.Account] {
		if hash == blk.Hash {
			return h
		}
	}
	return 0
}

func hashByte(b byte) ledger.Hash {
	var h ledger.Hash
	h[0] = b
	return h
}

func newCementerHarness(t *testing.T) (*Cementer, *fakeBlocks, []ledger.Hash) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.OpenLevelStore(filepath.Join(dir, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	blocks := newFakeBlocks()
	var emitted []ledger.Hash
	observer := func(b ledger.BlockWithSideband) { emitted = append(emitted, b.Block.Hash) }

	c := NewCementer(s, store.NewWriteQueue(), blocks, observer, Config{BatchWriteSize: 65536})
	return c, blocks, emitted
}

// buildCrossAccountFixture constructs:
//
//	accountB: B1(open) -> B2(send, funds A3)
//	accountA: A1(open) -> A2(send) -> A3(receive from B2)
//
// matching the spec.md §8 cementation-ordering scenario: cementing A3
// must cement B1, B2, A1, A2 first.
func buildCrossAccountFixture(blocks *fakeBlocks) (accountA, accountB ledger.Account, a3 ledger.Hash) {
	accountA = hashByte(0xA0)
	accountB = hashByte(0xB0)

	b1 := hashByte(0xB1)
	b2 := hashByte(0xB2)
	a1 := hashByte(0xA1)
	a2 := hashByte(0xA2)
	a3Hash := hashByte(0xA3)

	blocks.add(&ledger.Block{Hash: b1, Type: ledger.BlockTypeOpen, Account: accountB, Previous: ledger.Hash{}, Link: ledger.Hash{}}, accountB, 1)
	blocks.add(&ledger.Block{Hash: b2, Type: ledger.BlockTypeSend, Account: accountB, Previous: b1, Link: ledger.Hash{}}, accountB, 2)
	blocks.add(&ledger.Block{Hash: a1, Type: ledger.BlockTypeOpen, Account: accountA, Previous: ledger.Hash{}, Link: ledger.Hash{}}, accountA, 1)
	blocks.add(&ledger.Block{Hash: a2, Type: ledger.BlockTypeSend, Account: accountA, Previous: a1, Link: ledger.Hash{}}, accountA, 2)
	blocks.add(&ledger.Block{Hash: a3Hash, Type: ledger.BlockTypeReceive, Account: accountA, Previous: a2, Link: b2}, accountA, 3)

	return accountA, accountB, a3Hash
}

func TestCementerOrdersCallbacksAcrossAccounts(t *testing.T) {
	c, blocks, _ := newCementerHarness(t)
	_, _, a3 := buildCrossAccountFixture(blocks)

	var emitted []ledger.Hash
	c.observer = func(b ledger.BlockWithSideband) { emitted = append(emitted, b.Block.Hash) }

	require.NoError(t, c.Process(a3))

	want := []ledger.Hash{hashByte(0xB1), hashByte(0xB2), hashByte(0xA1), hashByte(0xA2), hashByte(0xA3)}
	require.Equal(t, want, emitted)
}

func TestCementerIsIdempotent(t *testing.T) {
	c, blocks, _ := newCementerHarness(t)
	_, _, a3 := buildCrossAccountFixture(blocks)

	var calls int
	c.observer = func(ledger.BlockWithSideband) { calls++ }

	require.NoError(t, c.Process(a3))
	first := calls

	require.NoError(t, c.Process(a3))
	require.Equal(t, first, calls, "re-processing an already-cemented hash must emit nothing")
}

func TestCementerSingleAccountSequentialChain(t *testing.T) {
	c, blocks, _ := newCementerHarness(t)
	acc := hashByte(0xC0)
	h1 := hashByte(0xC1)
	h2 := hashByte(0xC2)
	h3 := hashByte(0xC3)
	blocks.add(&ledger.Block{Hash: h1, Type: ledger.BlockTypeOpen, Account: acc}, acc, 1)
	blocks.add(&ledger.Block{Hash: h2, Type: ledger.BlockTypeSend, Account: acc, Previous: h1}, acc, 2)
	blocks.add(&ledger.Block{Hash: h3, Type: ledger.BlockTypeSend, Account: acc, Previous: h2}, acc, 3)

	var emitted []ledger.Hash
	c.observer = func(b ledger.BlockWithSideband) { emitted = append(emitted, b.Block.Hash) }

	require.NoError(t, c.Process(h3))
	require.Equal(t, []ledger.Hash{h1, h2, h3}, emitted)
	require.Equal(t, uint64(3), c.CementedCount())
}

func TestCementerAbortsOnMissingBlock(t *testing.T) {
	c, blocks, _ := newCementerHarness(t)
	acc := hashByte(0xD0)
	tip := hashByte(0xD2)
	blocks.add(&ledger.Block{Hash: tip, Type: ledger.BlockTypeSend, Account: acc, Previous: hashByte(0xD1)}, acc, 2)

	err := c.Process(tip)
	require.Error(t, err)
}
