package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *LevelStore {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenLevelStore(filepath.Join(dir, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLevelStorePutGet(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.NewTxn(true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(TableConfirmationHeight, []byte("acct1"), []byte("42")))
	require.NoError(t, tx.Commit())

	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	v, err := ro.Get(TableConfirmationHeight, []byte("acct1"))
	require.NoError(t, err)
	require.Equal(t, "42", string(v))
}

func TestLevelStoreGetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	_, err = ro.Get(TableConfirmationHeight, []byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLevelStoreReadOnlyRejectsWrites(t *testing.T) {
	s := openTestStore(t)
	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	require.ErrorIs(t, ro.Put(TableBlocks, []byte("k"), []byte("v")), ErrBadTxn)
	require.ErrorIs(t, ro.Delete(TableBlocks, []byte("k")), ErrBadTxn)
}

func TestLevelStoreTablesAreIsolated(t *testing.T) {
	s := openTestStore(t)
	tx, err := s.NewTxn(true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(TableBlocks, []byte("k"), []byte("blocks-value")))
	require.NoError(t, tx.Put(TableSidebands, []byte("k"), []byte("sidebands-value")))
	require.NoError(t, tx.Commit())

	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	v1, err := ro.Get(TableBlocks, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "blocks-value", string(v1))
	v2, err := ro.Get(TableSidebands, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "sidebands-value", string(v2))
}

func TestLevelStoreIterateOrdersByKey(t *testing.T) {
	s := openTestStore(t)
	tx, err := s.NewTxn(true)
	require.NoError(t, err)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, tx.Put(TablePendingReceives, []byte(k), []byte(k)))
	}
	require.NoError(t, tx.Commit())

	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	var seen []string
	require.NoError(t, ro.Iterate(TablePendingReceives, nil, func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestLevelStoreIterateCanStopEarly(t *testing.T) {
	s := openTestStore(t)
	tx, err := s.NewTxn(true)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, tx.Put(TablePendingReceives, []byte(k), []byte(k)))
	}
	require.NoError(t, tx.Commit())

	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	var seen []string
	require.NoError(t, ro.Iterate(TablePendingReceives, nil, func(key, value []byte) bool {
		seen = append(seen, string(key))
		return len(seen) < 2
	}))
	require.Equal(t, []string{"a", "b"}, seen)
}

func TestLevelStoreDeleteThenPutInSameTxnWins(t *testing.T) {
	// Resolves the spec.md §9 open question ("mdb_del on absent key /
	// put following del in same transaction") for this store's backend:
	// goleveldb batches apply in program order, last write per key wins.
	s := openTestStore(t)
	tx, err := s.NewTxn(true)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(TableBlocks, []byte("never-existed")))
	require.NoError(t, tx.Put(TableBlocks, []byte("never-existed"), []byte("now-exists")))
	require.NoError(t, tx.Commit())

	ro, err := s.NewTxn(false)
	require.NoError(t, err)
	defer ro.Discard()
	v, err := ro.Get(TableBlocks, []byte("never-existed"))
	require.NoError(t, err)
	require.Equal(t, "now-exists", string(v))
}
