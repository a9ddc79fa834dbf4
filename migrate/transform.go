package migrate

import (
	"fmt"
	"slices"

	"github.com/seclens/sentrydb/db"
)

// Column-family shape transforms shared by migration steps. Each helper
// inspects the database's on-disk family registry first and turns into a
// no-op when the target shape is already in place, so a step interrupted by
// a crash converges on re-run.

// dropColumnFamilyIfPresent removes the named column family from the
// database at path, including all its data. Missing family means the drop
// already happened.
func dropColumnFamilyIfPresent(path, name string) error {
	names, err := db.ListColumnFamilies(path)
	if err != nil {
		return fmt.Errorf("migrate: cannot inspect %s: %w", path, err)
	}
	if !slices.Contains(names, name) {
		return nil
	}

	s, err := db.Open(path,
		db.WithColumnFamilies(names...),
		db.WithCreateIfMissing(false),
	)
	if err != nil {
		return fmt.Errorf("migrate: cannot open %s: %w", path, err)
	}
	defer s.Close()

	if err := s.DropColumnFamily(name); err != nil {
		return fmt.Errorf("migrate: cannot drop %q: %w", name, err)
	}
	return nil
}

// renameColumnFamily moves all data of oldName into newName and drops
// oldName. The copy happens before the drop; a crash in between leaves both
// families present and a re-run copies again.
func renameColumnFamily(path, oldName, newName string) error {
	names, err := db.ListColumnFamilies(path)
	if err != nil {
		return fmt.Errorf("migrate: cannot inspect %s: %w", path, err)
	}
	if !slices.Contains(names, oldName) {
		// Already renamed.
		return nil
	}

	s, err := db.Open(path,
		db.WithColumnFamilies(names...),
		db.WithCreateIfMissing(false),
	)
	if err != nil {
		return fmt.Errorf("migrate: cannot open %s: %w", path, err)
	}
	defer s.Close()

	if !s.HasColumnFamily(newName) {
		if err := s.CreateColumnFamily(newName); err != nil {
			return fmt.Errorf("migrate: cannot create %q: %w", newName, err)
		}
	}
	if err := copyAll(s, oldName, newName); err != nil {
		return err
	}
	if err := s.DropColumnFamily(oldName); err != nil {
		return fmt.Errorf("migrate: cannot drop %q: %w", oldName, err)
	}
	return nil
}

// copyAll writes every (key, value) pair of the from family into the to
// family in a single batch.
func copyAll(s db.Store, from, to string) error {
	iter, err := s.NewIterator(from)
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := s.NewBatch()
	defer batch.Close()

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		if err := batch.Put(to, iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("migrate: cannot copy %q to %q: %w", from, to, err)
	}
	return nil
}
