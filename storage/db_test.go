package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("alpha"), []byte{0x01, 0x02}))

	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestMemDBGetCopiesValue(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte{0xAA}))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	got[0] = 0xBB

	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA}, again, "stored value must not alias caller slices")
}

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	entries := map[string][]byte{
		"one": {0x01},
		"two": {0x02},
	}
	require.NoError(t, db.WriteBatch(entries))

	for key, want := range entries {
		got, err := db.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// Mutating the source map after the write must not reach the store.
	entries["one"][0] = 0xFF
	got, err := db.Get([]byte("one"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("goal"), []byte("state")))
	got, err := db.Get([]byte("goal"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), got)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestLevelDBWriteBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()

	entries := map[string][]byte{
		"directory": []byte("dir"),
		"goal":      []byte("record"),
		"ballot":    []byte("votes"),
	}
	require.NoError(t, db.WriteBatch(entries))

	for key, want := range entries {
		got, err := db.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
