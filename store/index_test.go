package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIndexInsertAndReuse(t *testing.T) {
	idx := &KeyIndex{}

	a, err := idx.Insert([]byte("a"))
	require.NoError(t, err)
	b, err := idx.Insert([]byte("b"))
	require.NoError(t, err)
	c, err := idx.Insert([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{a, b, c})
	assert.Equal(t, 3, idx.Count())

	require.NoError(t, idx.Remove(b))
	assert.Equal(t, 2, idx.Count())
	_, ok := idx.Get(b)
	assert.False(t, ok)

	// A freed id is handed out again before new ids are minted.
	d, err := idx.Insert([]byte("d"))
	require.NoError(t, err)
	assert.Equal(t, b, d)

	key, ok := idx.Get(d)
	require.True(t, ok)
	assert.Equal(t, []byte("d"), key)

	_, err = idx.Insert(nil)
	assert.Error(t, err)
}

func TestKeyIndexUpdateAndFind(t *testing.T) {
	idx := &KeyIndex{}
	id, err := idx.Insert([]byte("old"))
	require.NoError(t, err)

	require.NoError(t, idx.Update(id, []byte("new")))
	got, ok := idx.FindID([]byte("new"))
	require.True(t, ok)
	assert.Equal(t, id, got)
	_, ok = idx.FindID([]byte("old"))
	assert.False(t, ok)

	assert.ErrorIs(t, idx.Update(99, []byte("x")), ErrInvalidID)
	assert.ErrorIs(t, idx.Remove(99), ErrInvalidID)
}

func TestKeyIndexRoundTrip(t *testing.T) {
	idx := &KeyIndex{}
	_, err := idx.Insert([]byte("a"))
	require.NoError(t, err)
	b, err := idx.Insert([]byte("b"))
	require.NoError(t, err)
	_, err = idx.Insert([]byte("c"))
	require.NoError(t, err)
	require.NoError(t, idx.Remove(b))

	data, err := idx.Bytes()
	require.NoError(t, err)

	restored, err := KeyIndexFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Count(), restored.Count())

	var keys []string
	require.NoError(t, restored.Iter(func(_ uint32, key []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	assert.Equal(t, []string{"a", "c"}, keys)

	// The freed slot must survive the round trip.
	reused, err := restored.Insert([]byte("d"))
	require.NoError(t, err)
	assert.Equal(t, b, reused)
}
