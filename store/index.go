package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/seclens/sentrydb/db"
)

// Sentinel errors for index operations.
var (
	ErrInvalidID = errors.New("store: no such index id")
	ErrNotFound  = errors.New("store: entry not found")
)

// KeyIndex maps small integer ids to entry keys for an indexed column
// family. It is serialized and stored at the empty key of the column family
// it indexes, so entry keys must never be empty.
//
// Ids of removed entries are reused by later insertions.
type KeyIndex struct {
	// Keys holds the key for each id; a nil slot is free.
	Keys [][]byte `msgpack:"keys"`

	// Free lists reusable ids, most recently freed last.
	Free []uint32 `msgpack:"free"`
}

// KeyIndexFromBytes deserializes a KeyIndex.
func KeyIndexFromBytes(data []byte) (*KeyIndex, error) {
	var idx KeyIndex
	if err := msgpack.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("store: corrupt key index: %w", err)
	}
	return &idx, nil
}

// Bytes serializes the index.
func (idx *KeyIndex) Bytes() ([]byte, error) {
	data, err := msgpack.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("store: failed to serialize key index: %w", err)
	}
	return data, nil
}

// Insert assigns an id to key, reusing a freed id when one is available.
func (idx *KeyIndex) Insert(key []byte) (uint32, error) {
	if len(key) == 0 {
		return 0, errors.New("store: index keys must be non-empty")
	}
	k := make([]byte, len(key))
	copy(k, key)

	if n := len(idx.Free); n > 0 {
		id := idx.Free[n-1]
		idx.Free = idx.Free[:n-1]
		idx.Keys[id] = k
		return id, nil
	}

	idx.Keys = append(idx.Keys, k)
	return uint32(len(idx.Keys) - 1), nil
}

// Get returns the key for id. ok is false for freed or out-of-range ids.
func (idx *KeyIndex) Get(id uint32) ([]byte, bool) {
	if int(id) >= len(idx.Keys) || idx.Keys[id] == nil {
		return nil, false
	}
	return idx.Keys[id], true
}

// Update replaces the key stored for an existing id.
func (idx *KeyIndex) Update(id uint32, key []byte) error {
	if len(key) == 0 {
		return errors.New("store: index keys must be non-empty")
	}
	if int(id) >= len(idx.Keys) || idx.Keys[id] == nil {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	k := make([]byte, len(key))
	copy(k, key)
	idx.Keys[id] = k
	return nil
}

// Remove frees an id, making it available for reuse.
func (idx *KeyIndex) Remove(id uint32) error {
	if int(id) >= len(idx.Keys) || idx.Keys[id] == nil {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	idx.Keys[id] = nil
	idx.Free = append(idx.Free, id)
	return nil
}

// Count returns the number of live ids.
func (idx *KeyIndex) Count() int {
	return len(idx.Keys) - len(idx.Free)
}

// Iter calls fn for every live (id, key) pair in id order. Iteration stops
// at the first error, which is returned.
func (idx *KeyIndex) Iter(fn func(id uint32, key []byte) error) error {
	for i, key := range idx.Keys {
		if key == nil {
			continue
		}
		if err := fn(uint32(i), key); err != nil {
			return err
		}
	}
	return nil
}

// FindID returns the id whose key equals the argument. ok is false when no
// live id carries the key.
func (idx *KeyIndex) FindID(key []byte) (uint32, bool) {
	for i, k := range idx.Keys {
		if k != nil && bytes.Equal(k, key) {
			return uint32(i), true
		}
	}
	return 0, false
}

// loadIndex reads the KeyIndex stored at the empty key of cf, returning an
// empty index when none has been written yet.
func loadIndex(s db.Store, cf string) (*KeyIndex, error) {
	data, err := s.Get(cf, []byte{})
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return &KeyIndex{}, nil
		}
		return nil, fmt.Errorf("store: failed to read index of %q: %w", cf, err)
	}
	return KeyIndexFromBytes(data)
}

// saveIndex stages the serialized index into batch at the empty key of cf.
func saveIndex(batch db.Batch, cf string, idx *KeyIndex) error {
	data, err := idx.Bytes()
	if err != nil {
		return err
	}
	return batch.Put(cf, []byte{}, data)
}
