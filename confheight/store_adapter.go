package confheight

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/store"
)

// BlockReader is the read surface the cementer needs from the ledger
// storage engine (spec.md §1 "ledger storage engine ... out of scope";
// §6 "external collaborator"). The cementer's read phase may use any
// read-only transaction (spec.md §6).
type BlockReader interface {
	GetBlock(txn store.Txn, hash ledger.Hash) (*ledger.Block, *ledger.Sideband, error)
}

// confirmationHeightCodec reads and writes the confirmation_height
// table (spec.md §6: "The cementer touches only the confirmation_height
// table during its write transactions"). Value layout: 8-byte
// big-endian height followed by the 32-byte confirmed frontier hash,
// the same fixed-width encoding style the teacher's own sideband/header
// codecs use (big-endian counters, fixed-width hash fields).
type confirmationHeightCodec struct{}

func (confirmationHeightCodec) get(txn store.Txn, account ledger.Account) (height uint64, frontier ledger.Hash, err error) {
	v, err := txn.Get(store.TableConfirmationHeight, account[:])
	if errors.Is(err, store.ErrNotFound) {
		return 0, ledger.Hash{}, nil
	}
	if err != nil {
		return 0, ledger.Hash{}, fmt.Errorf("confheight: read confirmation height: %w", err)
	}
	if len(v) != 8+ledger.HashSize {
		return 0, ledger.Hash{}, fmt.Errorf("confheight: corrupt confirmation height record for %s: %w", account, store.ErrCorrupted)
	}
	height = binary.BigEndian.Uint64(v[:8])
	frontier = ledger.BytesToHash(v[8:])
	return height, frontier, nil
}

func (confirmationHeightCodec) put(txn store.Txn, account ledger.Account, height uint64, frontier ledger.Hash) error {
	v := make([]byte, 8+ledger.HashSize)
	binary.BigEndian.PutUint64(v[:8], height)
	copy(v[8:], frontier[:])
	if err := txn.Put(store.TableConfirmationHeight, account[:], v); err != nil {
		return fmt.Errorf("confheight: write confirmation height: %w", err)
	}
	return nil
}
