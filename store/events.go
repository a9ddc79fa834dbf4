package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/seclens/sentrydb/db"
	"github.com/seclens/sentrydb/event"
)

// ErrValueChanged is returned by [EventTable.RawUpdate] when the stored
// value no longer matches the expected one.
var ErrValueChanged = errors.New("store: stored value changed since read")

// EventTable stores detection events keyed by packed 16-byte event keys
// (see [event.Key]). Unlike indexed tables it has no index record; every
// key is an entry.
type EventTable struct {
	store db.Store
}

// NewEventTable creates an event table over s.
func NewEventTable(s db.Store) *EventTable {
	return &EventTable{store: s}
}

// Put stores a record under the key packed from tsNanos, the record's
// kind, and seq.
func (t *EventTable) Put(tsNanos int64, seq uint32, rec event.Record) ([]byte, error) {
	value, err := rec.Value()
	if err != nil {
		return nil, fmt.Errorf("store: failed to serialize event: %w", err)
	}
	key := event.Key(tsNanos, rec.Kind(), seq)
	if err := t.store.Put(EventsCF, key, value); err != nil {
		return nil, err
	}
	return key, nil
}

// Get returns the raw value stored under key.
func (t *EventTable) Get(key []byte) ([]byte, error) {
	return t.store.Get(EventsCF, key)
}

// RawIter calls fn for every (key, value) pair in key order.
func (t *EventTable) RawIter(fn func(key, value []byte) error) error {
	iter, err := t.store.NewIterator(EventsCF)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// RawUpdate replaces the value under key only if the stored value still
// equals old, returning [ErrValueChanged] otherwise. Used by migrations to
// rewrite records in place without clobbering concurrent changes.
func (t *EventTable) RawUpdate(key, old, new []byte) error {
	cur, err := t.store.Get(EventsCF, key)
	if err != nil {
		return err
	}
	if !bytes.Equal(cur, old) {
		return fmt.Errorf("%w: key %x", ErrValueChanged, key)
	}
	return t.store.Put(EventsCF, key, new)
}
