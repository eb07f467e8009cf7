package confheight

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/log"
	"github.com/nanod-io/nanod/store"
)

// frame is one account's in-progress backward walk (spec.md §4.G steps
// 3-6). Frames form an explicit stack rather than a recursive call
// stack: finding a receive pushes a new frame for the source account
// and the current frame resumes, unmodified, once the child is
// finalized and popped.
type frame struct {
	account  ledger.Account
	cursor   ledger.Hash // next block to examine, walking backward via Previous
	boundary uint64      // stop once a block's height is <= this (already iterated)

	local     []ledger.Hash // accumulated hashes for this frame's single pending write, tip-first
	tipHash   ledger.Hash
	tipHeight uint64
}

// walkState is the per-process() arena: pendingWrites is the
// append-only slice spec.md §9's "arena+index" design note describes,
// and blockCache is the read-phase cache spec.md §4.G invariant refers
// to ("a block's cached {block, sideband} is consulted before the
// store; inserts are never overwritten"), scoped to one Process call.
type walkState struct {
	cache         map[ledger.Hash]*ledger.BlockWithSideband
	pendingWrites []*pendingWrite
}

// Cementer computes and commits confirmation-height updates across
// receive/source chains (component G, the "unbounded" variant,
// spec.md §4.G). Grounded on miner/unconfirmed.go's bookkeeping style
// (tracking not-yet-final state per account with explicit height
// comparisons) generalized from "ring buffer of recent blocks" to
// "per-account confirmed/iterated height pair", and on store's
// WriteQueue (component H) for serializing its commits.
type Cementer struct {
	log   *log.Logger
	store store.Store
	queue *store.WriteQueue
	cfg   Config
	codec confirmationHeightCodec

	reader   BlockReader
	observer Observer

	mu                sync.Mutex
	confirmedIterated map[ledger.Account]confirmedIteratedPair

	stopped       int32
	cementedCount uint64
}

// NewCementer builds a Cementer. observer may be nil (no callbacks
// delivered, useful for tests that only check confirmation heights).
func NewCementer(s store.Store, queue *store.WriteQueue, reader BlockReader, observer Observer, cfg Config) *Cementer {
	if cfg.BatchWriteSize <= 0 {
		cfg.BatchWriteSize = DefaultConfig().BatchWriteSize
	}
	return &Cementer{
		log:               log.Root().Named("confheight"),
		store:             s,
		queue:             queue,
		cfg:               cfg,
		reader:            reader,
		observer:          observer,
		confirmedIterated: make(map[ledger.Account]confirmedIteratedPair),
	}
}

// Stop requests cooperative shutdown: Process returns early between
// steps, and mid-batch between individual pending-write commits
// (SPEC_FULL.md supplemented feature #5 — already-committed writes at
// stop time stay durable; no rollback).
func (c *Cementer) Stop() { atomic.StoreInt32(&c.stopped, 1) }

// Stopped reports whether Stop has been called.
func (c *Cementer) Stopped() bool { return atomic.LoadInt32(&c.stopped) == 1 }

// CementedCount reports the cumulative number of blocks this Cementer
// has confirmed across all Process calls, for diagnostics/tests.
func (c *Cementer) CementedCount() uint64 { return atomic.LoadUint64(&c.cementedCount) }

// Process computes and commits the new confirmation height for
// originalHash's account and every account transitively referenced via
// receive -> source chains, emitting observer callbacks for every
// newly confirmed block in strict ascending per-account height order
// (spec.md §4.G, the full numbered algorithm).
func (c *Cementer) Process(originalHash ledger.Hash) error {
	if c.Stopped() {
		return nil
	}

	ws := &walkState{cache: make(map[ledger.Hash]*ledger.BlockWithSideband)}

	_, originalSb, err := c.getBlock(ws, originalHash)
	if err != nil {
		return fmt.Errorf("confheight: load original block %s: %w", originalHash, err)
	}
	pair := c.loadConfirmedIterated(originalSb.Account)
	if originalSb.Height <= pair.iterated {
		// Already cemented by a prior Process call (spec.md §8
		// "Cementer idempotence": cementing the same original_hash
		// twice emits callbacks only on the first call).
		return nil
	}

	stack := []*frame{{account: originalSb.Account, cursor: originalHash, boundary: pair.iterated}}
	for len(stack) > 0 {
		if c.Stopped() {
			return nil
		}
		f := stack[len(stack)-1]

		if f.cursor.IsZero() {
			c.finalizeFrame(f, ws)
			stack = stack[:len(stack)-1]
			if len(ws.pendingWrites) >= c.cfg.BatchWriteSize {
				if err := c.flush(ws); err != nil {
					return err
				}
			}
			continue
		}

		blk, sb, err := c.getBlock(ws, f.cursor)
		if err != nil {
			return fmt.Errorf("confheight: load block %s: %w", f.cursor, err)
		}
		if sb.Height <= f.boundary {
			c.finalizeFrame(f, ws)
			stack = stack[:len(stack)-1]
			if len(ws.pendingWrites) >= c.cfg.BatchWriteSize {
				if err := c.flush(ws); err != nil {
					return err
				}
			}
			continue
		}

		if len(f.local) == 0 {
			f.tipHash = blk.Hash
			f.tipHeight = sb.Height
		}
		f.local = append(f.local, blk.Hash)
		f.cursor = blk.Previous

		if blk.IsReceive() {
			if _, sourceSb, err := c.getBlock(ws, blk.Link); err == nil {
				sourcePair := c.loadConfirmedIterated(sourceSb.Account)
				if sourceSb.Height > sourcePair.iterated {
					stack = append(stack, &frame{account: sourceSb.Account, cursor: blk.Link, boundary: sourcePair.iterated})
				}
			}
			// If the source block doesn't exist, this isn't really a
			// resolvable receive (spec.md §4.G step 4: "source that is
			// not an epoch link and the source block exists"); the
			// hash is simply accumulated as an ordinary ancestor, which
			// the append above already did.
		}
	}

	return c.flush(ws)
}

// finalizeFrame closes out a frame's accumulated span as exactly one
// pending write (spec.md §4.G step 5 "prepare the account for
// cementing"). A frame that never accumulated anything (its walk
// started already at the boundary) produces no write, preserving
// idempotence.
func (c *Cementer) finalizeFrame(f *frame, ws *walkState) {
	if len(f.local) == 0 {
		return
	}
	pw := &pendingWrite{
		account:            f.account,
		hash:               f.tipHash,
		height:             f.tipHeight,
		callbackHashes:     f.local,
		numBlocksConfirmed: uint64(len(f.local)),
	}
	ws.pendingWrites = append(ws.pendingWrites, pw)

	c.mu.Lock()
	cip := c.confirmedIterated[f.account]
	if cip.iterated < f.tipHeight {
		cip.iterated = f.tipHeight
	}
	c.confirmedIterated[f.account] = cip
	c.mu.Unlock()
}

// getBlock reads a block+sideband, consulting ws.cache first (spec.md
// §4.G invariant: "A block's cached {block, sideband} is consulted
// before the store; inserts are never overwritten").
func (c *Cementer) getBlock(ws *walkState, hash ledger.Hash) (*ledger.Block, *ledger.Sideband, error) {
	if b, ok := ws.cache[hash]; ok {
		return b.Block, b.Sideband, nil
	}
	txn, err := c.store.NewTxn(false)
	if err != nil {
		return nil, nil, fmt.Errorf("confheight: open read transaction: %w", err)
	}
	defer txn.Discard()
	blk, sb, err := c.reader.GetBlock(txn, hash)
	if err != nil {
		return nil, nil, err
	}
	ws.cache[hash] = &ledger.BlockWithSideband{Block: blk, Sideband: sb}
	return blk, sb, nil
}

// loadConfirmedIterated returns the cached (confirmed, iterated) pair
// for account, falling back to the store on a cold entry (spec.md §4.G
// step 3).
func (c *Cementer) loadConfirmedIterated(acc ledger.Account) confirmedIteratedPair {
	c.mu.Lock()
	if p, ok := c.confirmedIterated[acc]; ok {
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	txn, err := c.store.NewTxn(false)
	var height uint64
	if err == nil {
		height, _, _ = c.codec.get(txn, acc)
		txn.Discard()
	}

	p := confirmedIteratedPair{confirmed: height, iterated: height}
	c.mu.Lock()
	c.confirmedIterated[acc] = p
	c.mu.Unlock()
	return p
}

// flush commits pending writes in FIFO order, one transaction per
// write (spec.md §4.G step 7): each re-reads the account's
// confirmation height, requires pending.height > confirmation_height,
// updates it, commits, then emits callbacks in ascending height order
// before renewing the transaction for the next write. Checks Stopped
// between writes (SPEC_FULL.md supplemented feature #5): writes already
// committed before a stop stay durable.
func (c *Cementer) flush(ws *walkState) error {
	if len(ws.pendingWrites) == 0 {
		return nil
	}
	guard := c.queue.Wait(c)
	defer guard.Release()

	txn, err := c.store.NewTxn(true)
	if err != nil {
		return fmt.Errorf("confheight: open write transaction: %w", err)
	}

	for _, pw := range ws.pendingWrites {
		if c.Stopped() {
			break
		}

		existing, _, err := c.codec.get(txn, pw.account)
		if err != nil {
			txn.Discard()
			return err
		}
		if pw.height <= existing {
			// Already covered by an earlier write in this batch or a
			// concurrent committer; nothing to do.
			continue
		}
		if err := c.codec.put(txn, pw.account, pw.height, pw.hash); err != nil {
			txn.Discard()
			return err
		}
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("confheight: commit: %w", err)
		}
		atomic.AddUint64(&c.cementedCount, pw.numBlocksConfirmed)

		c.mu.Lock()
		cip := c.confirmedIterated[pw.account]
		cip.confirmed = pw.height
		if cip.iterated < pw.height {
			cip.iterated = pw.height
		}
		c.confirmedIterated[pw.account] = cip
		c.mu.Unlock()

		for i := len(pw.callbackHashes) - 1; i >= 0; i-- {
			h := pw.callbackHashes[i]
			blk, sb, err := c.getBlock(ws, h)
			if err != nil {
				if !c.cfg.TestNetwork {
					c.log.Error("block missing during cementation commit, aborting", "hash", h, "account", pw.account)
					ws.pendingWrites = nil
					return fmt.Errorf("%w: %s", ErrMissingBlock, h)
				}
				continue
			}
			if c.observer != nil {
				c.observer(ledger.BlockWithSideband{Block: blk, Sideband: sb})
			}
		}

		txn, err = c.store.NewTxn(true)
		if err != nil {
			return fmt.Errorf("confheight: renew write transaction: %w", err)
		}
	}
	txn.Discard()
	ws.pendingWrites = ws.pendingWrites[:0]
	return nil
}
