// Package store models the ledger's persistent key-value state as an
// opaque store with range iteration and transactions (spec.md §1 treats
// the storage engine itself as out of scope; this package is the
// external-collaborator contract §6 describes: "key-value tables; one
// table per logical collection").
package store

import "errors"

// Errors surfaced by the store layer (spec.md §7 "Storage" kinds).
var (
	ErrNotFound  = errors.New("store: not found")
	ErrCorrupted = errors.New("store: corrupted")
	ErrBadTxn    = errors.New("store: transaction misuse")
)

// Table names the logical collections the cementer and bootstrap layers
// touch. spec.md §6: "The cementer touches only the confirmation_height
// table during its write transactions; its read phase may use any
// read-only transaction."
type Table string

const (
	TableBlocks            Table = "blocks"
	TableSidebands         Table = "sidebands"
	TableConfirmationHeight Table = "confirmation_height"
	TablePendingReceives    Table = "pending"
)

// Txn is a single store transaction, read-only or read-write. It is not
// safe for concurrent use.
type Txn interface {
	// Get reads a value for key in table. Returns ErrNotFound if absent.
	Get(table Table, key []byte) ([]byte, error)

	// Put writes key/value into table. Writable transactions only.
	Put(table Table, key, value []byte) error

	// Delete removes key from table if present; it is not an error for
	// the key to already be absent (spec.md §9 open question: a
	// goleveldb batch simply has no effect deleting an absent key).
	Delete(table Table, key []byte) error

	// Iterate walks table in key order starting at/after start
	// (nil means from the beginning), calling fn for each entry until
	// fn returns false or the table is exhausted.
	Iterate(table Table, start []byte, fn func(key, value []byte) bool) error

	// Commit finalizes a writable transaction. Read-only transactions
	// may call Commit as a no-op release.
	Commit() error

	// Discard releases a transaction without committing. Safe to call
	// after Commit (no-op).
	Discard()
}

// Store is the opaque backing key-value engine.
type Store interface {
	// NewTxn begins a transaction. writable selects read-write vs
	// read-only; a read-only Txn's Put/Delete return ErrBadTxn.
	NewTxn(writable bool) (Txn, error)

	// Close releases the underlying engine.
	Close() error
}
