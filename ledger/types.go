// Package ledger defines the block and account types shared by the work
// pool, bootstrap orchestrator, and confirmation-height cementer. The
// ledger store itself (persistent state, range iteration, transactions)
// lives in package store; this package only carries the value types that
// cross those package boundaries.
package ledger

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the width of a block hash, an account public key, and a
// proof-of-work root: all three are 256-bit values in this ledger.
const HashSize = 32

// Hash is a 256-bit digest. Accounts, block hashes, and PoW roots all
// share this representation (an account is its own public key).
type Hash [HashSize]byte

// Account is a ledger account, identified by its public key.
type Account = Hash

// Root is the 256-bit seed a proof-of-work solution is computed over:
// the account key for an open block, the previous block hash otherwise.
type Root = Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// BytesToHash right-aligns b into a Hash, truncating on the left if b is
// longer than HashSize.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashSize {
		b = b[len(b)-HashSize:]
	}
	copy(h[HashSize-len(b):], b)
	return h
}

// HashFromHex decodes a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("ledger: decode hash: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("ledger: hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// BlockType enumerates the block-lattice block kinds. Only the fields
// the in-scope subsystems touch (account, previous, source link) are
// modeled; balance/representative/signature fields are out of scope
// (owned by the ledger storage engine per spec.md §1).
type BlockType uint8

const (
	BlockTypeInvalid BlockType = iota
	BlockTypeOpen
	BlockTypeSend
	BlockTypeReceive
	BlockTypeChange
	BlockTypeState
)

// EpochLink is the well-known source value used by epoch upgrade blocks.
// A receive-like link equal to this is not a real pending-send claim and
// must never be treated as a receive by the cementer (spec.md §4.G step 4).
var EpochLink = Hash{0x01} // placeholder sentinel distinguishable from a zero link

// Block is the minimal view of a ledger block the in-scope subsystems
// need. The full block body (balance, representative, signature) is
// owned by the ledger storage engine and opaque here.
type Block struct {
	Hash     Hash
	Type     BlockType
	Account  Account
	Previous Hash // zero for open blocks
	Link     Hash // source hash for open/receive/state-receive blocks, EpochLink for epoch blocks, zero otherwise
}

// IsReceive reports whether the block claims a pending send: it carries
// a non-zero link that isn't the epoch sentinel.
func (b *Block) IsReceive() bool {
	return !b.Link.IsZero() && b.Link != EpochLink
}

// Sideband is the metadata the ledger store attaches to a block when it
// is written: its height within the account chain and the confirmation
// height in effect for that account at commit time.
type Sideband struct {
	Height            uint64
	Account           Account
	ConfirmationHeight uint64
}

// BlockWithSideband bundles a block with its sideband, the unit the
// cementer hands to observer callbacks (spec.md §4.G step 7: "emit
// observer callbacks with the block+sideband bundle").
type BlockWithSideband struct {
	Block    *Block
	Sideband *Sideband
}
