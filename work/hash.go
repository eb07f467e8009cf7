package work

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/nanod-io/nanod/ledger"
)

// outputSize is the width of the keyed-hash PoW digest (spec.md §6:
// "the keyed hash is computed over nonce ∥ root, 8-byte output").
const outputSize = 8

// keyedHash computes the proof-of-work digest for nonce over root: a
// blake2b MAC keyed by root, over the little-endian encoding of nonce,
// truncated to an 8-byte digest (spec.md §6). golang.org/x/crypto is
// already a teacher dependency (IGSON2-berith_log/go.mod); blake2b is
// the concrete keyed hash used here as the assumed cryptographic
// primitive spec.md §1 explicitly puts out of scope for design.
func keyedHash(nonce uint64, root ledger.Root) [outputSize]byte {
	h, err := blake2b.New(outputSize, root[:])
	if err != nil {
		// Only returns an error for an over-long key; root is fixed at
		// 32 bytes, well under blake2b's 64-byte key limit.
		panic(err)
	}
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	h.Write(nonceBytes[:])
	var out [outputSize]byte
	h.Sum(out[:0])
	return out
}

// hashToUint64 interprets an 8-byte PoW digest as an unsigned
// little-endian integer, matching the existing keyed-hash pre-image
// order (spec.md §6).
func hashToUint64(digest [outputSize]byte) uint64 {
	return binary.LittleEndian.Uint64(digest[:])
}

// Validate reports whether nonce is a valid proof-of-work solution for
// root at difficulty: keyed_hash(nonce ∥ root) >= difficulty (spec.md
// §8 "Work determinism of validation").
func Validate(root ledger.Root, nonce uint64, difficulty uint64) bool {
	return hashToUint64(keyedHash(nonce, root)) >= difficulty
}
