package store

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is a Store backed by goleveldb, the KV engine the teacher
// repo carries for its own chaindata (IGSON2-berith_log/go.mod:
// github.com/syndtr/goleveldb). Tables are modeled as key prefixes,
// the same trick go-ethereum-family nodes use to fake "buckets" on top
// of a flat LSM keyspace.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (creating if absent) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) NewTxn(writable bool) (Txn, error) {
	if !writable {
		return &levelTxn{db: s.db, snap: nil, readOnly: true}, nil
	}
	ltx, err := s.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("store: open transaction: %w", err)
	}
	return &levelTxn{tx: ltx}, nil
}

func prefixedKey(table Table, key []byte) []byte {
	out := make([]byte, 0, len(table)+1+len(key))
	out = append(out, table...)
	out = append(out, ':')
	out = append(out, key...)
	return out
}

// levelTxn implements Txn. A read-only levelTxn reads directly against
// the database (goleveldb serves consistent point reads without a
// snapshot handle being required for this store's usage pattern); a
// writable levelTxn wraps a *leveldb.Transaction.
type levelTxn struct {
	db       *leveldb.DB
	tx       *leveldb.Transaction
	snap     *leveldb.Snapshot
	readOnly bool
	done     bool
}

func (t *levelTxn) Get(table Table, key []byte) ([]byte, error) {
	k := prefixedKey(table, key)
	var (
		v   []byte
		err error
	)
	if t.readOnly {
		v, err = t.db.Get(k, nil)
	} else {
		v, err = t.tx.Get(k, nil)
	}
	if err == errors.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return v, nil
}

func (t *levelTxn) Put(table Table, key, value []byte) error {
	if t.readOnly {
		return ErrBadTxn
	}
	if err := t.tx.Put(prefixedKey(table, key), value, nil); err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

func (t *levelTxn) Delete(table Table, key []byte) error {
	if t.readOnly {
		return ErrBadTxn
	}
	if err := t.tx.Delete(prefixedKey(table, key), nil); err != nil && err != errors.ErrNotFound {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (t *levelTxn) Iterate(table Table, start []byte, fn func(key, value []byte) bool) error {
	prefix := append([]byte(table), ':')
	rng := util.BytesPrefix(prefix)
	if start != nil {
		rng.Start = prefixedKey(table, start)
	}
	var it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
		Error() error
	}
	if t.readOnly {
		it = t.db.NewIterator(rng, nil)
	} else {
		it = t.tx.NewIterator(rng, nil)
	}
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()[len(prefix):]...)
		val := append([]byte(nil), it.Value()...)
		if !fn(key, val) {
			break
		}
	}
	return it.Error()
}

func (t *levelTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (t *levelTxn) Discard() {
	if t.done || t.readOnly {
		return
	}
	t.done = true
	t.tx.Discard()
}
