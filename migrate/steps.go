package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/seclens/sentrydb/db"
	"github.com/seclens/sentrydb/event"
	"github.com/seclens/sentrydb/pkg/logger"
	"github.com/seclens/sentrydb/store"
)

// defaultMigrations is the shipped migration chain.
//
// Each entry's requirement must include all the earlier, released versions
// whose format the step can read, and exclude the first future version that
// uses a new format.
func defaultMigrations() []Migration {
	return []Migration{
		{
			Requirement: mustConstraint(">=0.42.0,<0.43.0-alpha.2"),
			To:          semver.MustParse("0.43.0-alpha.2"),
			Run:         migrateV0_42ToV0_43,
		},
	}
}

// migrateV0_42ToV0_43 rewrites a 0.42.x data directory into the current
// format:
//
//  1. drop the deprecated "account policy" column family
//  2. rename "TI database" to "label database"
//  3. fan allow/block networks out per customer with customer-scoped keys
//  4. prefix network tag names with the smallest customer id
//  5. add country codes to stored event records
//
// Every sub-step is a no-op when its work is already done, so an
// interrupted run converges when re-run.
func migrateV0_42ToV0_43(env *Env) error {
	dbPath := filepath.Join(env.DataDir, store.StatesDBName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		// The directory carries a VERSION but the database was never
		// created; there is nothing to rewrite.
		return nil
	}

	if err := dropColumnFamilyIfPresent(dbPath, "account policy"); err != nil {
		return err
	}
	if err := renameColumnFamily(dbPath, "TI database", store.LabelDBCF); err != nil {
		return err
	}

	s, err := db.Open(dbPath,
		db.WithColumnFamilies(store.ColumnFamilies...),
		db.WithCreateIfMissing(false),
		db.WithCreateMissingColumnFamilies(true),
	)
	if err != nil {
		return fmt.Errorf("migrate: cannot open %s: %w", dbPath, err)
	}
	defer s.Close()

	if err := migrateCustomerScopedNetworks(env, s); err != nil {
		return err
	}
	if err := migrateCustomerScopedNetworkTags(env, s); err != nil {
		return err
	}
	return migrateEventCountryCodes(env, s)
}

// ---- customer-scoped networks ----

// migrateCustomerScopedNetworks rewrites the allow-network and
// block-network tables from globally keyed entries to one entry per
// (customer, name) pair. All rewrites commit in a single batch.
func migrateCustomerScopedNetworks(env *Env, s db.Store) error {
	env.Logger.Info("migrating allow and block networks to customer-scoped format")

	customerIDs, err := collectCustomerIDs(s)
	if err != nil {
		return err
	}
	env.Logger.Info("found customers for migration", "count", len(customerIDs))

	batch := s.NewBatch()
	defer batch.Close()

	err = fanOutNetworks(s, batch, store.AllowNetworksCF, customerIDs, env.Logger,
		func(old *allowNetworkV0_42, customerID uint32) store.Indexable {
			return &store.AllowNetwork{
				Name:        old.Name,
				Networks:    old.Networks,
				Description: old.Description,
				CustomerID:  customerID,
			}
		})
	if err != nil {
		return err
	}

	err = fanOutNetworks(s, batch, store.BlockNetworksCF, customerIDs, env.Logger,
		func(old *blockNetworkV0_42, customerID uint32) store.Indexable {
			return &store.BlockNetwork{
				Name:        old.Name,
				Networks:    old.Networks,
				Description: old.Description,
				CustomerID:  customerID,
			}
		})
	if err != nil {
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("migrate: failed to commit network migration: %w", err)
	}
	return nil
}

// fanOutNetworks stages the rewrite of one network column family: every
// stored entry is deleted and re-inserted once per customer under its
// customer-scoped key, with a rebuilt id index at the empty key.
func fanOutNetworks[O any](s db.Store, batch db.Batch, cf string, customerIDs []uint32,
	log logger.Logger, convert func(old *O, customerID uint32) store.Indexable,
) error {
	type pair struct{ key, value []byte }

	iter, err := s.NewIterator(cf)
	if err != nil {
		return err
	}
	var entries []pair
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		// The empty key holds the id index, not an entry.
		if len(iter.Key()) == 0 {
			continue
		}
		entries = append(entries, pair{key: iter.Key(), value: iter.Value()})
	}
	if err := iter.Err(); err != nil {
		iter.Close()
		return err
	}
	iter.Close()

	if len(entries) == 0 {
		log.Info("no entries to migrate", "cf", cf)
		return nil
	}

	// Stage all deletions before any insertion. On a re-run the stored
	// keys are already customer-scoped and collide with the keys being
	// written; deleting afterwards would wipe fresh entries.
	for _, e := range entries {
		if err := batch.Delete(cf, e.key); err != nil {
			return err
		}
	}

	index := &store.KeyIndex{}
	for _, e := range entries {
		var old O
		if err := msgpack.Unmarshal(e.value, &old); err != nil {
			return fmt.Errorf("migrate: failed to deserialize old entry in %q: %w", cf, err)
		}

		for _, customerID := range customerIDs {
			entry := convert(&old, customerID)
			key := entry.UniqueKey()
			if _, ok := index.FindID(key); ok {
				// Entries that were already fanned out collapse back to
				// the same scoped keys; keep one id per key.
				continue
			}
			id, err := index.Insert(key)
			if err != nil {
				return err
			}
			entry.SetIndex(id)

			value, err := msgpack.Marshal(entry)
			if err != nil {
				return fmt.Errorf("migrate: failed to serialize entry for %q: %w", cf, err)
			}
			if err := batch.Put(cf, key, value); err != nil {
				return err
			}
		}
	}

	data, err := index.Bytes()
	if err != nil {
		return err
	}
	if err := batch.Put(cf, []byte{}, data); err != nil {
		return err
	}

	log.Info("migrated entries", "cf", cf, "count", len(entries))
	return nil
}

// collectCustomerIDs returns the ids of all stored customers.
func collectCustomerIDs(s db.Store) ([]uint32, error) {
	iter, err := s.NewIterator(store.CustomersCF)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uint32
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		if len(iter.Key()) == 0 {
			continue
		}
		var c store.Customer
		if err := msgpack.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("migrate: failed to deserialize customer: %w", err)
		}
		ids = append(ids, c.ID)
	}
	return ids, iter.Err()
}

// ---- customer-scoped network tags ----

// migrateCustomerScopedNetworkTags prefixes every unscoped network tag name
// with "<customer id>\x00", using the smallest stored customer id. Tags
// already carrying a NUL are left alone.
func migrateCustomerScopedNetworkTags(env *Env, s db.Store) error {
	customerIndex, err := loadKeyIndex(s, store.CustomersCF)
	if err != nil {
		return err
	}
	if customerIndex == nil || customerIndex.Count() == 0 {
		env.Logger.Info("no customers found, skipping network tag migration")
		return nil
	}

	smallest, found := ^uint32(0), false
	_ = customerIndex.Iter(func(id uint32, _ []byte) error {
		if !found || id < smallest {
			smallest, found = id, true
		}
		return nil
	})

	data, err := s.Get(store.MetaCF, store.NetworkTagsKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			env.Logger.Info("no network tags found, skipping network tag migration")
			return nil
		}
		return fmt.Errorf("migrate: failed to read network tags: %w", err)
	}
	index, err := store.KeyIndexFromBytes(data)
	if err != nil {
		return err
	}

	type tag struct {
		id  uint32
		key []byte
	}
	var unscoped []tag
	_ = index.Iter(func(id uint32, key []byte) error {
		if !bytes.ContainsRune(key, 0) {
			unscoped = append(unscoped, tag{id: id, key: key})
		}
		return nil
	})
	if len(unscoped) == 0 {
		env.Logger.Info("no unscoped network tags found, skipping network tag migration")
		return nil
	}

	env.Logger.Info("migrating network tags to customer-scoped format",
		"customer_id", smallest, "count", len(unscoped))

	prefix := append([]byte(strconv.FormatUint(uint64(smallest), 10)), 0x00)
	for _, t := range unscoped {
		scoped := append(append([]byte{}, prefix...), t.key...)
		if err := index.Update(t.id, scoped); err != nil {
			return fmt.Errorf("migrate: failed to update tag %d: %w", t.id, err)
		}
	}

	updated, err := index.Bytes()
	if err != nil {
		return err
	}
	if err := s.Put(store.MetaCF, store.NetworkTagsKey, updated); err != nil {
		return fmt.Errorf("migrate: failed to write network tags: %w", err)
	}
	return nil
}

// loadKeyIndex reads the id index at the empty key of cf, returning nil
// when none exists.
func loadKeyIndex(s db.Store, cf string) (*store.KeyIndex, error) {
	data, err := s.Get(cf, []byte{})
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("migrate: failed to read index of %q: %w", cf, err)
	}
	return store.KeyIndexFromBytes(data)
}

// ---- event country codes ----

// Encoded field counts of the event record generations. Records are
// msgpack arrays, so the array length of a stored value identifies its
// generation.
const (
	portScanFieldCount           = 10
	portScanFieldCountV0_42      = 8
	httpThreatFieldCount         = 20
	httpThreatFieldCountV0_42    = 18
	blocklistConnFieldCount      = 16
	blocklistConnFieldCountV0_42 = 14
	externalDdosFieldCount       = 9
	externalDdosFieldCountV0_42  = 7
)

// migrateEventCountryCodes rewrites stored event records that predate the
// country code fields. Records of kinds without country codes, and records
// already carrying them, are left untouched.
func migrateEventCountryCodes(env *Env, s db.Store) error {
	env.Logger.Info("migrating event records to add country codes")

	events := store.NewEventTable(s)

	type pair struct{ key, value []byte }
	var entries []pair
	err := events.RawIter(func(key, value []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		v := make([]byte, len(value))
		copy(v, value)
		entries = append(entries, pair{key: k, value: v})
		return nil
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		env.Logger.Info("no events to migrate")
		return nil
	}

	var migrated, skipped int
	for _, e := range entries {
		kind, ok := event.KindFromKey(e.key)
		if !ok {
			skipped++
			continue
		}

		var rewritten []byte
		switch kind {
		case event.KindPortScan:
			rewritten, err = migratePortScanRecord(e.value, env.Locator)
		case event.KindHttpThreat:
			rewritten, err = migrateHttpThreatRecord(e.value, env.Locator)
		case event.KindBlocklistConn:
			rewritten, err = migrateBlocklistConnRecord(e.value, env.Locator)
		case event.KindExternalDdos:
			rewritten, err = migrateExternalDdosRecord(e.value, env.Locator)
		default:
			// Other kinds never carried the per-record address fields the
			// country codes derive from.
			skipped++
			continue
		}
		if err != nil {
			return err
		}
		if rewritten == nil {
			// Already current.
			skipped++
			continue
		}

		if err := events.RawUpdate(e.key, e.value, rewritten); err != nil {
			return fmt.Errorf("migrate: failed to update event record: %w", err)
		}
		migrated++
	}

	env.Logger.Info("migrated event records", "migrated", migrated, "skipped", skipped)
	return nil
}

// recordFieldCount returns the number of encoded fields of an
// array-encoded record.
func recordFieldCount(value []byte) (int, error) {
	n, err := msgpack.NewDecoder(bytes.NewReader(value)).DecodeArrayLen()
	if err != nil {
		return 0, fmt.Errorf("migrate: malformed event record: %w", err)
	}
	return n, nil
}

func migratePortScanRecord(value []byte, loc event.Locator) ([]byte, error) {
	n, err := recordFieldCount(value)
	if err != nil {
		return nil, err
	}
	switch n {
	case portScanFieldCount:
		return nil, nil
	case portScanFieldCountV0_42:
	default:
		return nil, fmt.Errorf("migrate: unrecognized port scan record with %d fields", n)
	}

	var old portScanFieldsV0_42
	if err := msgpack.Unmarshal(value, &old); err != nil {
		return nil, fmt.Errorf("migrate: failed to deserialize port scan record: %w", err)
	}
	cur := &event.PortScanFields{
		Time:            old.Time,
		Sensor:          old.Sensor,
		OrigAddr:        old.OrigAddr,
		RespAddr:        old.RespAddr,
		RespPorts:       old.RespPorts,
		StartTime:       old.StartTime,
		EndTime:         old.EndTime,
		Proto:           old.Proto,
		OrigCountryCode: event.LookupCountry(loc, old.OrigAddr),
		RespCountryCode: event.LookupCountry(loc, old.RespAddr),
	}
	return cur.Value()
}

func migrateHttpThreatRecord(value []byte, loc event.Locator) ([]byte, error) {
	n, err := recordFieldCount(value)
	if err != nil {
		return nil, err
	}
	switch n {
	case httpThreatFieldCount:
		return nil, nil
	case httpThreatFieldCountV0_42:
	default:
		return nil, fmt.Errorf("migrate: unrecognized http threat record with %d fields", n)
	}

	var old httpThreatFieldsV0_42
	if err := msgpack.Unmarshal(value, &old); err != nil {
		return nil, fmt.Errorf("migrate: failed to deserialize http threat record: %w", err)
	}
	cur := &event.HttpThreatFields{
		Time:            old.Time,
		Sensor:          old.Sensor,
		OrigAddr:        old.OrigAddr,
		OrigPort:        old.OrigPort,
		RespAddr:        old.RespAddr,
		RespPort:        old.RespPort,
		Proto:           old.Proto,
		Method:          old.Method,
		Host:            old.Host,
		URI:             old.URI,
		Referer:         old.Referer,
		UserAgent:       old.UserAgent,
		StatusCode:      old.StatusCode,
		RuleID:          old.RuleID,
		MatchedTo:       old.MatchedTo,
		ClusterID:       old.ClusterID,
		AttackKind:      old.AttackKind,
		Confidence:      old.Confidence,
		OrigCountryCode: event.LookupCountry(loc, old.OrigAddr),
		RespCountryCode: event.LookupCountry(loc, old.RespAddr),
	}
	return cur.Value()
}

func migrateBlocklistConnRecord(value []byte, loc event.Locator) ([]byte, error) {
	n, err := recordFieldCount(value)
	if err != nil {
		return nil, err
	}
	switch n {
	case blocklistConnFieldCount:
		return nil, nil
	case blocklistConnFieldCountV0_42:
	default:
		return nil, fmt.Errorf("migrate: unrecognized blocklist conn record with %d fields", n)
	}

	var old blocklistConnFieldsV0_42
	if err := msgpack.Unmarshal(value, &old); err != nil {
		return nil, fmt.Errorf("migrate: failed to deserialize blocklist conn record: %w", err)
	}
	cur := &event.BlocklistConnFields{
		Time:            old.Time,
		Sensor:          old.Sensor,
		OrigAddr:        old.OrigAddr,
		OrigPort:        old.OrigPort,
		RespAddr:        old.RespAddr,
		RespPort:        old.RespPort,
		Proto:           old.Proto,
		ConnState:       old.ConnState,
		Duration:        old.Duration,
		Service:         old.Service,
		OrigBytes:       old.OrigBytes,
		RespBytes:       old.RespBytes,
		OrigPkts:        old.OrigPkts,
		RespPkts:        old.RespPkts,
		OrigCountryCode: event.LookupCountry(loc, old.OrigAddr),
		RespCountryCode: event.LookupCountry(loc, old.RespAddr),
	}
	return cur.Value()
}

func migrateExternalDdosRecord(value []byte, loc event.Locator) ([]byte, error) {
	n, err := recordFieldCount(value)
	if err != nil {
		return nil, err
	}
	switch n {
	case externalDdosFieldCount:
		return nil, nil
	case externalDdosFieldCountV0_42:
	default:
		return nil, fmt.Errorf("migrate: unrecognized external ddos record with %d fields", n)
	}

	var old externalDdosFieldsV0_42
	if err := msgpack.Unmarshal(value, &old); err != nil {
		return nil, fmt.Errorf("migrate: failed to deserialize external ddos record: %w", err)
	}
	codes := make([]string, 0, len(old.OrigAddrs))
	for _, addr := range old.OrigAddrs {
		codes = append(codes, event.LookupCountry(loc, addr))
	}
	cur := &event.ExternalDdosFields{
		Time:             old.Time,
		Sensor:           old.Sensor,
		OrigAddrs:        old.OrigAddrs,
		RespAddr:         old.RespAddr,
		Proto:            old.Proto,
		StartTime:        old.StartTime,
		EndTime:          old.EndTime,
		OrigCountryCodes: codes,
		RespCountryCode:  event.LookupCountry(loc, old.RespAddr),
	}
	return cur.Value()
}
