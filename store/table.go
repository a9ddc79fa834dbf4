package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/seclens/sentrydb/db"
)

// Indexable is the contract for entries stored in an [IndexedTable]: a
// unique key independent of the assigned id, plus access to the id field.
type Indexable interface {
	// UniqueKey returns the entry's storage key. It must be non-empty and
	// stable across updates that do not rename the entry.
	UniqueKey() []byte

	// Index returns the entry's assigned id.
	Index() uint32

	// SetIndex records the assigned id on the entry.
	SetIndex(id uint32)
}

// IndexedTable is a column family holding entries of one type, addressable
// both by unique key and by a small integer id. The id-to-key mapping is a
// [KeyIndex] kept at the empty key of the column family; every mutation
// rewrites the index and the entry in a single atomic batch.
type IndexedTable[T Indexable] struct {
	store db.Store
	cf    string
	make  func() T
}

// NewIndexedTable creates a table over cf. makeEntry allocates an empty
// entry for deserialization.
func NewIndexedTable[T Indexable](s db.Store, cf string, makeEntry func() T) *IndexedTable[T] {
	return &IndexedTable[T]{store: s, cf: cf, make: makeEntry}
}

// Put inserts a new entry, assigns it an id, and returns the id.
func (t *IndexedTable[T]) Put(entry T) (uint32, error) {
	key := entry.UniqueKey()
	if len(key) == 0 {
		return 0, fmt.Errorf("store: %q: entry key must be non-empty", t.cf)
	}

	idx, err := loadIndex(t.store, t.cf)
	if err != nil {
		return 0, err
	}
	if _, ok := idx.FindID(key); ok {
		return 0, fmt.Errorf("store: %q: duplicate key %q", t.cf, key)
	}

	id, err := idx.Insert(key)
	if err != nil {
		return 0, err
	}
	entry.SetIndex(id)

	value, err := serialize(entry)
	if err != nil {
		return 0, err
	}

	batch := t.store.NewBatch()
	defer batch.Close()
	if err := batch.Put(t.cf, key, value); err != nil {
		return 0, err
	}
	if err := saveIndex(batch, t.cf, idx); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("store: %q: failed to commit insert: %w", t.cf, err)
	}
	return id, nil
}

// GetByKey returns the entry stored under key.
func (t *IndexedTable[T]) GetByKey(key []byte) (T, error) {
	var zero T
	value, err := t.store.Get(t.cf, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return zero, fmt.Errorf("%w: %q in %q", ErrNotFound, key, t.cf)
		}
		return zero, err
	}
	entry := t.make()
	if err := deserialize(value, entry); err != nil {
		return zero, err
	}
	return entry, nil
}

// GetByID returns the entry with the given id.
func (t *IndexedTable[T]) GetByID(id uint32) (T, error) {
	var zero T
	idx, err := loadIndex(t.store, t.cf)
	if err != nil {
		return zero, err
	}
	key, ok := idx.Get(id)
	if !ok {
		return zero, fmt.Errorf("%w: %d in %q", ErrInvalidID, id, t.cf)
	}
	return t.GetByKey(key)
}

// Update rewrites the entry with entry's id. If the unique key changed, the
// entry is moved and the index updated, atomically.
func (t *IndexedTable[T]) Update(entry T) error {
	idx, err := loadIndex(t.store, t.cf)
	if err != nil {
		return err
	}
	oldKey, ok := idx.Get(entry.Index())
	if !ok {
		return fmt.Errorf("%w: %d in %q", ErrInvalidID, entry.Index(), t.cf)
	}

	newKey := entry.UniqueKey()
	value, err := serialize(entry)
	if err != nil {
		return err
	}

	batch := t.store.NewBatch()
	defer batch.Close()
	if !bytes.Equal(oldKey, newKey) {
		if _, taken := idx.FindID(newKey); taken {
			return fmt.Errorf("store: %q: duplicate key %q", t.cf, newKey)
		}
		if err := idx.Update(entry.Index(), newKey); err != nil {
			return err
		}
		if err := batch.Delete(t.cf, oldKey); err != nil {
			return err
		}
		if err := saveIndex(batch, t.cf, idx); err != nil {
			return err
		}
	}
	if err := batch.Put(t.cf, newKey, value); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store: %q: failed to commit update: %w", t.cf, err)
	}
	return nil
}

// Remove deletes the entry with the given id and frees the id.
func (t *IndexedTable[T]) Remove(id uint32) error {
	idx, err := loadIndex(t.store, t.cf)
	if err != nil {
		return err
	}
	key, ok := idx.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d in %q", ErrInvalidID, id, t.cf)
	}
	if err := idx.Remove(id); err != nil {
		return err
	}

	batch := t.store.NewBatch()
	defer batch.Close()
	if err := batch.Delete(t.cf, key); err != nil {
		return err
	}
	if err := saveIndex(batch, t.cf, idx); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store: %q: failed to commit removal: %w", t.cf, err)
	}
	return nil
}

// Count returns the number of entries in the table.
func (t *IndexedTable[T]) Count() (int, error) {
	idx, err := loadIndex(t.store, t.cf)
	if err != nil {
		return 0, err
	}
	return idx.Count(), nil
}

// Iter calls fn for every entry in key order. The empty key holds the
// index record, not an entry, and is skipped.
func (t *IndexedTable[T]) Iter(fn func(entry T) error) error {
	iter, err := t.store.NewIterator(t.cf)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) == 0 {
			continue
		}
		entry := t.make()
		if err := deserialize(iter.Value(), entry); err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return iter.Err()
}
