package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/sentrydb/pkg/logger"
)

func openTestDB(t *testing.T, path string, opts ...Option) *PebbleDB {
	t.Helper()
	opts = append(opts, WithLogger(logger.Nop()))
	p, err := Open(path, opts...)
	require.NoError(t, err)
	return p
}

func TestOpenPersistsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")

	p := openTestDB(t, path, WithColumnFamilies("alpha", "beta"))
	require.NoError(t, p.Put("alpha", []byte("k"), []byte("va")))
	require.NoError(t, p.Put("beta", []byte("k"), []byte("vb")))
	require.NoError(t, p.Close())

	t.Run("same declared set reopens", func(t *testing.T) {
		p := openTestDB(t, path,
			WithColumnFamilies("alpha", "beta"),
			WithCreateIfMissing(false),
		)
		defer p.Close()

		va, err := p.Get("alpha", []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("va"), va)

		vb, err := p.Get("beta", []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("vb"), vb)
	})

	t.Run("registry readable without opening for writing", func(t *testing.T) {
		names, err := ListColumnFamilies(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta", DefaultColumnFamily}, names)
	})
}

func TestOpenColumnFamilyMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")

	p := openTestDB(t, path, WithColumnFamilies("alpha"))
	require.NoError(t, p.Close())

	t.Run("different declared set fails", func(t *testing.T) {
		_, err := Open(path,
			WithColumnFamilies("alpha", "beta"),
			WithCreateIfMissing(false),
			WithLogger(logger.Nop()),
		)
		require.ErrorIs(t, err, ErrColumnFamilyMismatch)
	})

	t.Run("create-missing adopts the union", func(t *testing.T) {
		p := openTestDB(t, path,
			WithColumnFamilies("alpha", "beta"),
			WithCreateIfMissing(false),
			WithCreateMissingColumnFamilies(true),
		)
		require.NoError(t, p.Put("beta", []byte("k"), []byte("v")))
		require.NoError(t, p.Close())

		names, err := ListColumnFamilies(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta", DefaultColumnFamily}, names)
	})
}

func TestCreateAndDropColumnFamily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")
	p := openTestDB(t, path, WithColumnFamilies("alpha"))
	defer p.Close()

	require.NoError(t, p.CreateColumnFamily("gamma"))
	assert.True(t, p.HasColumnFamily("gamma"))
	assert.ErrorIs(t, p.CreateColumnFamily("gamma"), ErrColumnFamilyExists)

	require.NoError(t, p.Put("gamma", []byte("k"), []byte("v")))
	require.NoError(t, p.DropColumnFamily("gamma"))
	assert.False(t, p.HasColumnFamily("gamma"))

	_, err := p.Get("gamma", []byte("k"))
	assert.ErrorIs(t, err, ErrColumnFamilyNotFound)

	t.Run("dropped data stays gone after recreate", func(t *testing.T) {
		require.NoError(t, p.CreateColumnFamily("gamma"))
		_, err := p.Get("gamma", []byte("k"))
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("default cannot be dropped", func(t *testing.T) {
		assert.ErrorIs(t, p.DropColumnFamily(DefaultColumnFamily), ErrInvalidColumnFamily)
	})

	t.Run("invalid names rejected", func(t *testing.T) {
		assert.ErrorIs(t, p.CreateColumnFamily(""), ErrInvalidColumnFamily)
		assert.ErrorIs(t, p.CreateColumnFamily("bad\x00name"), ErrInvalidColumnFamily)
	})
}

func TestColumnFamilyIsolation(t *testing.T) {
	// "net" and "nets" share a byte prefix; the CF separator must keep
	// their key ranges disjoint.
	path := filepath.Join(t.TempDir(), "states.db")
	p := openTestDB(t, path, WithColumnFamilies("net", "nets"))
	defer p.Close()

	require.NoError(t, p.Put("net", []byte("a"), []byte("short")))
	require.NoError(t, p.Put("nets", []byte("a"), []byte("long")))
	require.NoError(t, p.Put("nets", []byte("b"), []byte("long-b")))

	iter, err := p.NewIterator("net")
	require.NoError(t, err)
	defer iter.Close()

	var keys [][]byte
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Key())
	}
	require.NoError(t, iter.Err())
	require.Len(t, keys, 1)
	assert.Equal(t, []byte("a"), keys[0])

	v, err := p.Get("net", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), v)
}

func TestEmptyAndNilKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")
	p := openTestDB(t, path, WithColumnFamilies("alpha"))
	defer p.Close()

	// The empty key is a valid key; indexed tables store their id index
	// under it.
	require.NoError(t, p.Put("alpha", []byte{}, []byte("index")))
	v, err := p.Get("alpha", []byte{})
	require.NoError(t, err)
	assert.Equal(t, []byte("index"), v)

	_, err = p.Get("alpha", nil)
	assert.ErrorIs(t, err, ErrNilKey)
	assert.ErrorIs(t, p.Put("alpha", nil, []byte("v")), ErrNilKey)
}

func TestBatchSpansColumnFamilies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")
	p := openTestDB(t, path, WithColumnFamilies("alpha", "beta"))
	defer p.Close()

	batch := p.NewBatch()
	require.NoError(t, batch.Put("alpha", []byte("k"), []byte("va")))
	require.NoError(t, batch.Put("beta", []byte("k"), []byte("vb")))
	require.NoError(t, batch.Delete("alpha", []byte("missing")))
	assert.Equal(t, 3, batch.Count())
	require.NoError(t, batch.Commit())
	batch.Close()

	va, err := p.Get("alpha", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("va"), va)
	vb, err := p.Get("beta", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("vb"), vb)

	t.Run("unknown family fails at staging", func(t *testing.T) {
		batch := p.NewBatch()
		defer batch.Close()
		assert.ErrorIs(t, batch.Put("nope", []byte("k"), []byte("v")), ErrColumnFamilyNotFound)
	})
}

func TestClosedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.db")
	p := openTestDB(t, path, WithColumnFamilies("alpha"))
	require.NoError(t, p.Close())

	_, err := p.Get("alpha", []byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Put("alpha", []byte("k"), []byte("v")), ErrClosed)
}
