// Package store is the table layer of the persistence product: typed
// accessors over the column families of a single embedded database, plus
// the generic indexed-table and key-index machinery they share.
//
// A Store must only be opened after the migration gate (package migrate)
// has confirmed the directory's on-disk format is compatible with this
// build.
package store

import (
	"fmt"
	"path/filepath"

	"github.com/seclens/sentrydb/db"
	"github.com/seclens/sentrydb/pkg/logger"
)

// StatesDBName is the database directory name inside the data directory.
const StatesDBName = "states.db"

// Names of column families with typed accessors.
const (
	CustomersCF     = "customers"
	AllowNetworksCF = "allow networks"
	BlockNetworksCF = "block networks"
	LabelDBCF       = "label database"
	MetaCF          = "meta"
	EventsCF        = "events"
)

// ColumnFamilies is the current column-family catalog: the exact set of
// families this build opens the database with. Historical catalogs live in
// the migrate package and are never edited; this list is the only one that
// changes between releases.
var ColumnFamilies = []string{
	"access_tokens",
	"accounts",
	"agents",
	AllowNetworksCF,
	"batch_info",
	BlockNetworksCF,
	"category",
	"cluster",
	"column stats",
	"configs",
	"csv column extras",
	CustomersCF,
	"data sources",
	EventsCF,
	"filters",
	"hosts",
	LabelDBCF,
	"models",
	"model indicators",
	MetaCF,
	"networks",
	"nodes",
	"outliers",
	"qualifiers",
	"external services",
	"sampling policy",
	"scores",
	"statuses",
	"templates",
	"time series",
	"Tor exit nodes",
	"traffic filter rules",
	"triage policy",
	"triage response",
	"trusted DNS servers",
	"trusted user agents",
}

// Config holds settings for opening a [Store].
type Config struct {
	SyncWrites bool
	CacheSize  int64
	Logger     logger.Logger
}

// Option is a functional option for [Open].
type Option func(*Config)

// WithSyncWrites enables per-write fsync on the underlying database.
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithCacheSize sets the underlying database's block-cache size in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithLogger sets a structured logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Store owns the embedded database of a data directory and hands out typed
// table accessors.
type Store struct {
	db        *db.PebbleDB
	dataDir   string
	backupDir string
	logger    logger.Logger
}

// Open opens the database under dataDir. The caller must have run the
// migration gate on (dataDir, backupDir) first; Open assumes the on-disk
// format is current and creates any column families added in this release.
func Open(dataDir, backupDir string, opts ...Option) (*Store, error) {
	cfg := &Config{CacheSize: 256 << 20}
	for _, o := range opts {
		o(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "store")

	pdb, err := db.Open(filepath.Join(dataDir, StatesDBName),
		db.WithColumnFamilies(ColumnFamilies...),
		db.WithCreateMissingColumnFamilies(true),
		db.WithSyncWrites(cfg.SyncWrites),
		db.WithCacheSize(cfg.CacheSize),
		db.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database in %s: %w", dataDir, err)
	}

	return &Store{
		db:        pdb,
		dataDir:   dataDir,
		backupDir: backupDir,
		logger:    log,
	}, nil
}

// DB exposes the underlying engine handle.
func (s *Store) DB() db.Store { return s.db }

// Customers returns the customer table.
func (s *Store) Customers() *CustomerTable {
	return &CustomerTable{
		IndexedTable: NewIndexedTable(s.db, CustomersCF, func() *Customer { return &Customer{} }),
	}
}

// AllowNetworks returns the allow-network table.
func (s *Store) AllowNetworks() *IndexedTable[*AllowNetwork] {
	return NewIndexedTable(s.db, AllowNetworksCF, func() *AllowNetwork { return &AllowNetwork{} })
}

// BlockNetworks returns the block-network table.
func (s *Store) BlockNetworks() *IndexedTable[*BlockNetwork] {
	return NewIndexedTable(s.db, BlockNetworksCF, func() *BlockNetwork { return &BlockNetwork{} })
}

// LabelDBs returns the label-database table.
func (s *Store) LabelDBs() *IndexedTable[*LabelDb] {
	return NewIndexedTable(s.db, LabelDBCF, func() *LabelDb { return &LabelDb{} })
}

// NetworkTags returns the network tag set from the meta column family.
func (s *Store) NetworkTags() (*TagSet, error) {
	return OpenTagSet(s.db, NetworkTagsKey)
}

// Events returns the event table.
func (s *Store) Events() *EventTable {
	return &EventTable{store: s.db}
}

// Close shuts down the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CustomerTable wraps the customer [IndexedTable] with entry validation.
type CustomerTable struct {
	*IndexedTable[*Customer]
}

// Put validates the customer before inserting it.
func (t *CustomerTable) Put(c *Customer) (uint32, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return t.IndexedTable.Put(c)
}

// Update validates the customer before rewriting it.
func (t *CustomerTable) Update(c *Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return t.IndexedTable.Update(c)
}
