package store

import (
	"errors"
	"fmt"

	"github.com/seclens/sentrydb/db"
)

// NetworkTagsKey is the meta-column-family key under which the network tag
// index is stored. Tag names in the index are customer-scoped:
// "<customer id>\x00<name>".
var NetworkTagsKey = []byte("network tags")

// Tag is one entry of a tag set.
type Tag struct {
	ID   uint32
	Name string
}

// TagSet is a set of named tags kept as a [KeyIndex] under a single key of
// the meta column family. Removing a tag frees its id for reuse.
type TagSet struct {
	store db.Store
	key   []byte
	idx   *KeyIndex
}

// OpenTagSet loads the tag set stored under key in the meta column family,
// starting empty when none exists yet.
func OpenTagSet(s db.Store, key []byte) (*TagSet, error) {
	data, err := s.Get(MetaCF, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return &TagSet{store: s, key: key, idx: &KeyIndex{}}, nil
		}
		return nil, fmt.Errorf("store: failed to read tag set %q: %w", key, err)
	}
	idx, err := KeyIndexFromBytes(data)
	if err != nil {
		return nil, err
	}
	return &TagSet{store: s, key: key, idx: idx}, nil
}

// Insert adds a tag and returns its id.
//
// TODO: reject duplicate names once tag keys move to real store keys;
// today a linear scan per insert would be the only way to check.
func (t *TagSet) Insert(name string) (uint32, error) {
	id, err := t.idx.Insert([]byte(name))
	if err != nil {
		return 0, err
	}
	if err := t.save(); err != nil {
		return 0, err
	}
	return id, nil
}

// Update renames the tag with the given id. It returns false without
// changing anything when the stored name does not match old.
func (t *TagSet) Update(id uint32, old, new string) (bool, error) {
	cur, ok := t.idx.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if string(cur) != old {
		return false, nil
	}
	if err := t.idx.Update(id, []byte(new)); err != nil {
		return false, err
	}
	if err := t.save(); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the tag with the given id.
func (t *TagSet) Remove(id uint32) error {
	if err := t.idx.Remove(id); err != nil {
		return err
	}
	return t.save()
}

// Tags returns all tags in id order.
func (t *TagSet) Tags() []Tag {
	var tags []Tag
	_ = t.idx.Iter(func(id uint32, key []byte) error {
		tags = append(tags, Tag{ID: id, Name: string(key)})
		return nil
	})
	return tags
}

func (t *TagSet) save() error {
	data, err := t.idx.Bytes()
	if err != nil {
		return err
	}
	if err := t.store.Put(MetaCF, t.key, data); err != nil {
		return fmt.Errorf("store: failed to write tag set %q: %w", t.key, err)
	}
	return nil
}
