package db

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/seclens/sentrydb/pkg/logger"
)

// Compile-time interface check.
var _ Store = (*PebbleDB)(nil)

// registryKey is the reserved metadata key holding the persisted set of
// registered column-family names. It begins with a NUL byte, which no
// column-family prefix can (names must be non-empty and NUL-free), so it
// never collides with user data.
var registryKey = []byte("\x00cfs")

// PebbleDB is a production [Store] backed by Pebble. It is safe for
// concurrent use — Pebble handles its own internal synchronisation.
//
// Column families are simulated via key-prefixing: each logical CF name
// is mapped to a byte prefix (cf + '\x00'), keeping data from different
// families sorted in disjoint key ranges. The registered name set is
// persisted under a reserved metadata key so that subsequent opens can
// verify the declared list against what actually exists on disk.
type PebbleDB struct {
	db *pebble.DB

	// prefixes maps registered CF names to their byte prefix.
	// Mutated only by CreateColumnFamily/DropColumnFamily, which hold
	// the write lock; everything else reads under RLock.
	prefixes map[string][]byte

	writeOpts *pebble.WriteOptions
	path      string
	logger    logger.Logger

	// closed + mu guard against use-after-close. Individual operations
	// take an RLock (allowing full concurrency). Close and CF changes
	// take the write lock, draining in-flight operations first.
	closed atomic.Bool
	mu     sync.RWMutex
}

// Open creates or opens a Pebble database at path with the given options.
// The caller must call Close when done to release all resources.
//
// The declared column-family list (see [WithColumnFamilies]) is verified
// against the registry persisted in the store: a fresh store adopts the
// declared list, an existing store must match it exactly unless
// [WithCreateMissingColumnFamilies] is set.
func Open(path string, opts ...Option) (*PebbleDB, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "db")

	declared := make([]string, 0, 1+len(cfg.ColumnFamilies))
	declared = append(declared, DefaultColumnFamily)
	for _, cf := range cfg.ColumnFamilies {
		if err := validateCFName(cf); err != nil {
			return nil, err
		}
		if cf != DefaultColumnFamily {
			declared = append(declared, cf)
		}
	}

	// --- Build Pebble options ---

	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	pOpts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                cfg.MemTableSize,
		MaxOpenFiles:                cfg.MaxOpenFiles,
		MaxConcurrentCompactions:    func() int { return cfg.MaxConcurrentCompactions },
		L0CompactionThreshold:       cfg.L0CompactionThreshold,
		L0StopWritesThreshold:       cfg.L0StopWritesThreshold,
		LBaseMaxBytes:               cfg.LBaseMaxBytes,
		WALDir:                      cfg.WALDir,
		ErrorIfNotExists:            !cfg.CreateIfMissing,
		DisableAutomaticCompactions: false,
	}

	pdb, err := pebble.Open(path, pOpts)
	if err != nil {
		return nil, fmt.Errorf("db: failed to open %s: %w", path, err)
	}

	// --- Reconcile the declared CF set with the persisted registry ---

	registered, found, err := loadRegistry(pdb)
	if err != nil {
		_ = pdb.Close()
		return nil, err
	}

	var names []string
	switch {
	case !found:
		// Fresh store: adopt the declared set.
		names = declared
		if err := saveRegistry(pdb, names); err != nil {
			_ = pdb.Close()
			return nil, err
		}
	case cfg.CreateMissingColumnFamilies:
		names = unionNames(registered, declared)
		if len(names) != len(registered) {
			if err := saveRegistry(pdb, names); err != nil {
				_ = pdb.Close()
				return nil, err
			}
		}
	default:
		if !sameNames(registered, declared) {
			_ = pdb.Close()
			return nil, fmt.Errorf("%w: on disk %v, declared %v",
				ErrColumnFamilyMismatch, sortedNames(registered), sortedNames(declared))
		}
		names = registered
	}

	prefixes := make(map[string][]byte, len(names))
	for _, cf := range names {
		prefixes[cf] = cfPrefix(cf)
	}

	writeOpts := pebble.NoSync
	if cfg.SyncWrites {
		writeOpts = pebble.Sync
	}

	p := &PebbleDB{
		db:        pdb,
		prefixes:  prefixes,
		writeOpts: writeOpts,
		path:      path,
		logger:    log,
	}

	log.Info("database opened",
		"path", path,
		"column_families", fmt.Sprintf("%v", sortedNames(names)),
	)
	return p, nil
}

// ListColumnFamilies reads the column-family registry of the store at path
// without opening it for writing. The store must not be open elsewhere in
// this or another process. Returns an empty list for a store that has no
// registry yet.
func ListColumnFamilies(path string) ([]string, error) {
	pdb, err := pebble.Open(path, &pebble.Options{
		ReadOnly:         true,
		ErrorIfNotExists: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: failed to open %s read-only: %w", path, err)
	}
	defer pdb.Close()

	names, _, err := loadRegistry(pdb)
	if err != nil {
		return nil, err
	}
	return sortedNames(names), nil
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (p *PebbleDB) Get(cf string, key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return nil, ErrClosed
	}
	if key == nil {
		return nil, ErrNilKey
	}

	prefix, err := p.cfPrefix(cf)
	if err != nil {
		return nil, err
	}

	val, closer, err := p.db.Get(prefixedKey(prefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("db: get failed: %w", err)
	}
	defer closer.Close()

	// Copy — the returned slice is only valid until closer.Close().
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (p *PebbleDB) Put(cf string, key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	prefix, err := p.cfPrefix(cf)
	if err != nil {
		return err
	}

	if err := p.db.Set(prefixedKey(prefix, key), value, p.writeOpts); err != nil {
		return fmt.Errorf("db: put failed: %w", err)
	}
	return nil
}

func (p *PebbleDB) Delete(cf string, key []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	prefix, err := p.cfPrefix(cf)
	if err != nil {
		return err
	}

	if err := p.db.Delete(prefixedKey(prefix, key), p.writeOpts); err != nil {
		return fmt.Errorf("db: delete failed: %w", err)
	}
	return nil
}

func (p *PebbleDB) Has(cf string, key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return false, ErrClosed
	}
	if key == nil {
		return false, ErrNilKey
	}

	prefix, err := p.cfPrefix(cf)
	if err != nil {
		return false, err
	}

	_, closer, err := p.db.Get(prefixedKey(prefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("db: has failed: %w", err)
	}
	closer.Close()
	return true, nil
}

func (p *PebbleDB) ColumnFamilies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.prefixes))
	for cf := range p.prefixes {
		names = append(names, cf)
	}
	sort.Strings(names)
	return names
}

func (p *PebbleDB) HasColumnFamily(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.prefixes[name]
	return ok
}

func (p *PebbleDB) CreateColumnFamily(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if err := validateCFName(name); err != nil {
		return err
	}
	if _, ok := p.prefixes[name]; ok {
		return fmt.Errorf("%w: %q", ErrColumnFamilyExists, name)
	}

	p.prefixes[name] = cfPrefix(name)
	if err := p.persistRegistryLocked(); err != nil {
		delete(p.prefixes, name)
		return err
	}

	p.logger.Info("column family created", "name", name)
	return nil
}

func (p *PebbleDB) DropColumnFamily(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if name == DefaultColumnFamily {
		return fmt.Errorf("%w: cannot drop %q", ErrInvalidColumnFamily, name)
	}
	prefix, ok := p.prefixes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnFamilyNotFound, name)
	}

	// Remove the data first; a crash between the range deletion and the
	// registry write leaves an empty but still-registered family, which a
	// retry resolves.
	if err := p.db.DeleteRange(prefix, cfUpperBound(name), pebble.Sync); err != nil {
		return fmt.Errorf("db: failed to drop column family %q: %w", name, err)
	}

	delete(p.prefixes, name)
	if err := p.persistRegistryLocked(); err != nil {
		return err
	}

	p.logger.Info("column family dropped", "name", name)
	return nil
}

func (p *PebbleDB) NewBatch() Batch {
	return &pebbleBatch{
		owner: p,
		batch: p.db.NewBatch(),
	}
}

func (p *PebbleDB) NewIterator(cf string) (Iterator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return nil, ErrClosed
	}

	prefix, err := p.cfPrefix(cf)
	if err != nil {
		return nil, err
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: cfUpperBound(cf),
	})
	if err != nil {
		return nil, fmt.Errorf("db: new iterator failed: %w", err)
	}

	return &pebbleIterator{
		iter:      iter,
		prefix:    prefix,
		prefixLen: len(prefix),
	}, nil
}

func (p *PebbleDB) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}

	if err := p.db.Flush(); err != nil {
		return fmt.Errorf("db: flush failed: %w", err)
	}
	return nil
}

// Close performs a graceful shutdown. It acquires an exclusive lock so
// all in-flight operations complete before teardown.
func (p *PebbleDB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	p.closed.Store(true)

	p.logger.Info("closing database", "path", p.path)

	if err := p.db.Flush(); err != nil {
		p.logger.Error("flush failed during shutdown", "error", err)
	}

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("db: close failed: %w", err)
	}

	p.logger.Info("database closed", "path", p.path)
	return nil
}

// ---------------------------------------------------------------------------
// Batch implementation
// ---------------------------------------------------------------------------

type pebbleBatch struct {
	owner  *PebbleDB
	batch  *pebble.Batch
	closed bool
}

func (b *pebbleBatch) Put(cf string, key, value []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	if key == nil {
		return ErrNilKey
	}
	prefix, err := b.owner.lockedCFPrefix(cf)
	if err != nil {
		return err
	}
	if err := b.batch.Set(prefixedKey(prefix, key), value, nil); err != nil {
		return fmt.Errorf("db: batch put failed: %w", err)
	}
	return nil
}

func (b *pebbleBatch) Delete(cf string, key []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	if key == nil {
		return ErrNilKey
	}
	prefix, err := b.owner.lockedCFPrefix(cf)
	if err != nil {
		return err
	}
	if err := b.batch.Delete(prefixedKey(prefix, key), nil); err != nil {
		return fmt.Errorf("db: batch delete failed: %w", err)
	}
	return nil
}

func (b *pebbleBatch) Count() int {
	return int(b.batch.Count())
}

func (b *pebbleBatch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}

	b.owner.mu.RLock()
	defer b.owner.mu.RUnlock()

	if b.owner.closed.Load() {
		return ErrClosed
	}

	if err := b.batch.Commit(b.owner.writeOpts); err != nil {
		return fmt.Errorf("db: batch commit failed: %w", err)
	}
	return nil
}

func (b *pebbleBatch) Close() {
	if !b.closed {
		_ = b.batch.Close()
		b.closed = true
	}
}

// ---------------------------------------------------------------------------
// Iterator implementation
// ---------------------------------------------------------------------------

type pebbleIterator struct {
	iter      *pebble.Iterator
	prefix    []byte
	prefixLen int
	closed    bool
	err       error
}

func (it *pebbleIterator) Seek(target []byte) {
	it.iter.SeekGE(prefixedKey(it.prefix, target))
}

func (it *pebbleIterator) SeekToFirst() { it.iter.First() }
func (it *pebbleIterator) SeekToLast()  { it.iter.Last() }
func (it *pebbleIterator) Next()        { it.iter.Next() }
func (it *pebbleIterator) Prev()        { it.iter.Prev() }
func (it *pebbleIterator) Valid() bool  { return it.iter.Valid() }

func (it *pebbleIterator) Key() []byte {
	raw := it.iter.Key()
	if len(raw) < it.prefixLen {
		return nil
	}
	// Strip the CF prefix and return a copy.
	stripped := raw[it.prefixLen:]
	out := make([]byte, len(stripped))
	copy(out, stripped)
	return out
}

func (it *pebbleIterator) Value() []byte {
	val, err := it.iter.ValueAndErr()
	if err != nil {
		it.err = err
		return nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out
}

func (it *pebbleIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}

func (it *pebbleIterator) Close() {
	if !it.closed {
		_ = it.iter.Close()
		it.closed = true
	}
}

// ---------------------------------------------------------------------------
// Registry persistence
// ---------------------------------------------------------------------------

// loadRegistry reads the persisted CF name set. found is false when the
// store has no registry yet (a freshly created store).
func loadRegistry(pdb *pebble.DB) (names []string, found bool, err error) {
	val, closer, err := pdb.Get(registryKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db: failed to read column-family registry: %w", err)
	}
	defer closer.Close()

	if err := msgpack.Unmarshal(val, &names); err != nil {
		return nil, false, fmt.Errorf("db: corrupt column-family registry: %w", err)
	}
	return names, true, nil
}

// saveRegistry persists the CF name set. Always synced — losing the
// registry would orphan every column family.
func saveRegistry(pdb *pebble.DB, names []string) error {
	data, err := msgpack.Marshal(sortedNames(names))
	if err != nil {
		return fmt.Errorf("db: failed to encode column-family registry: %w", err)
	}
	if err := pdb.Set(registryKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("db: failed to write column-family registry: %w", err)
	}
	return nil
}

// persistRegistryLocked writes the current prefix map's name set.
// Caller must hold p.mu.
func (p *PebbleDB) persistRegistryLocked() error {
	names := make([]string, 0, len(p.prefixes))
	for cf := range p.prefixes {
		names = append(names, cf)
	}
	return saveRegistry(p.db, names)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// cfPrefix returns the registered prefix for the given column family name.
// Caller must hold p.mu (read or write).
func (p *PebbleDB) cfPrefix(cf string) ([]byte, error) {
	prefix, ok := p.prefixes[cf]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnFamilyNotFound, cf)
	}
	return prefix, nil
}

// lockedCFPrefix is cfPrefix for callers that do not already hold p.mu.
func (p *PebbleDB) lockedCFPrefix(cf string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfPrefix(cf)
}

func validateCFName(cf string) error {
	if cf == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidColumnFamily)
	}
	for i := 0; i < len(cf); i++ {
		if cf[i] == 0x00 {
			return fmt.Errorf("%w: %q", ErrInvalidColumnFamily, cf)
		}
	}
	return nil
}

// cfPrefix builds the key prefix for a column family: "cf\x00".
func cfPrefix(cf string) []byte {
	b := make([]byte, len(cf)+1)
	copy(b, cf)
	b[len(cf)] = 0x00
	return b
}

// cfUpperBound builds the exclusive upper bound for iteration: "cf\x01".
func cfUpperBound(cf string) []byte {
	b := make([]byte, len(cf)+1)
	copy(b, cf)
	b[len(cf)] = 0x01
	return b
}

// prefixedKey concatenates a CF prefix and a user key into a single
// storage key: prefix + key.
func prefixedKey(prefix, key []byte) []byte {
	pk := make([]byte, len(prefix)+len(key))
	copy(pk, prefix)
	copy(pk[len(prefix):], key)
	return pk
}

func sortedNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := sortedNames(a), sortedNames(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func unionNames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
