// Package migrate checks the on-disk format version of a data directory and
// migrates it to the current format if necessary.
//
// Every data directory and backup directory carries a VERSION side-car file
// holding the semantic version of the software that last wrote it. On
// startup, before any store handles are created, [DataDir] compares both
// versions against the compatible range of the running build and, when the
// directory is older, walks an ordered chain of migration steps until the
// directory reaches a compatible version.
package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/seclens/sentrydb/config"
	"github.com/seclens/sentrydb/event"
	"github.com/seclens/sentrydb/pkg/logger"
)

// CompatibleVersionReq is the range of versions that use the current
// database format.
//
// The range must include all the earlier, released versions that use the
// current format, and exclude the first future version that uses a new
// format. A data directory whose VERSION matches this range is opened
// without migration.
const CompatibleVersionReq = ">=0.43.0-alpha.2,<0.43.0-alpha.3"

// VersionFileName is the side-car file holding a directory's format
// version.
const VersionFileName = "VERSION"

// Sentinel errors returned by [DataDir].
var (
	// ErrVersionMismatch is returned when the data directory and the
	// backup directory carry different versions.
	ErrVersionMismatch = errors.New("migrate: mismatched data and backup versions")

	// ErrUnsupportedVersion is returned when no migration step applies to
	// the directory's version.
	ErrUnsupportedVersion = errors.New("migrate: migration not supported")
)

// Migration is one step of the migration chain.
//
//   - Requirement must include all the earlier, released versions that use
//     the format Run can read, and exclude the first future version that
//     uses a new format.
//   - To is the first future version that uses a new format.
//   - Run rewrites the data directory from the format before To to the
//     format of To. It must be resumable: a crash mid-run followed by a
//     re-run must converge to the same result.
type Migration struct {
	Requirement *semver.Constraints
	To          *semver.Version
	Run         func(env *Env) error
}

// Env carries the inputs a migration step may need.
type Env struct {
	DataDir   string
	BackupDir string

	// Locator resolves IP addresses to country codes during migration.
	// When nil, migrated country fields are set to
	// [event.NoLocatorCountryCode].
	Locator event.Locator

	Logger logger.Logger
}

// Config holds the settings of a migration run. The defaults describe the
// running build; tests override them to exercise arbitrary chains.
type Config struct {
	version    *semver.Version
	compatible *semver.Constraints
	chain      []Migration
	locator    event.Locator
	logger     logger.Logger
}

// Option is a functional option for [DataDir].
type Option func(*Config)

// WithVersion overrides the running version recorded in fresh VERSION
// files.
func WithVersion(v *semver.Version) Option {
	return func(c *Config) { c.version = v }
}

// WithCompatible overrides the compatible version range.
func WithCompatible(req *semver.Constraints) Option {
	return func(c *Config) { c.compatible = req }
}

// WithMigrations overrides the migration chain.
func WithMigrations(chain []Migration) Option {
	return func(c *Config) { c.chain = chain }
}

// WithLocator provides an IP geolocation source for migration steps that
// fill in country codes.
func WithLocator(loc event.Locator) Option {
	return func(c *Config) { c.locator = loc }
}

// WithLogger sets a structured logger for the run.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// DataDir migrates the data directory to the up-to-date format if
// necessary.
//
// Migration is supported between released versions only; pre-release
// versions are assumed incompatible with each other unless a step's
// requirement names them explicitly. The backup directory's VERSION must
// match the data directory's, and both are advanced, backup first, once
// the chain reaches a compatible version.
//
// DataDir must be called before any store handles on dataDir are created.
func DataDir(dataDir, backupDir string, opts ...Option) error {
	cfg := &Config{
		version:    semver.MustParse(config.APP_VERSION),
		compatible: mustConstraint(CompatibleVersionReq),
		chain:      defaultMigrations(),
	}
	for _, o := range opts {
		o(cfg)
	}

	log := cfg.logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "migrate")

	dataFile, dataVer, err := retrieveOrCreateVersion(dataDir, cfg.version)
	if err != nil {
		return err
	}
	backupFile, backupVer, err := retrieveOrCreateVersion(backupDir, cfg.version)
	if err != nil {
		return err
	}

	if !dataVer.Equal(backupVer) {
		return fmt.Errorf("%w: database version %s, backup version %s",
			ErrVersionMismatch, dataVer, backupVer)
	}

	version := dataVer
	if cfg.compatible.Check(version) {
		return nil
	}

	env := &Env{
		DataDir:   dataDir,
		BackupDir: backupDir,
		Locator:   cfg.locator,
		Logger:    log,
	}

	for {
		step := findMigration(cfg.chain, version)
		if step == nil {
			return fmt.Errorf("%w: migration from %s is not supported",
				ErrUnsupportedVersion, version)
		}

		log.Info("migrating database", "from", version.String(), "to", step.To.String())
		if err := step.Run(env); err != nil {
			return fmt.Errorf("migrate: migration to %s failed: %w", step.To, err)
		}
		version = step.To

		if cfg.compatible.Check(version) {
			if err := writeVersionFile(backupFile, cfg.version); err != nil {
				return fmt.Errorf("migrate: failed to update backup VERSION: %w", err)
			}
			if err := writeVersionFile(dataFile, cfg.version); err != nil {
				return fmt.Errorf("migrate: failed to update VERSION: %w", err)
			}
			return nil
		}
	}
}

// ReadVersion returns the version recorded in dir's VERSION file.
func ReadVersion(dir string) (*semver.Version, error) {
	return readVersionFile(filepath.Join(dir, VersionFileName))
}

// Compatible reports whether a directory at the given version can be
// opened by this build without migration.
func Compatible(v *semver.Version) bool {
	return mustConstraint(CompatibleVersionReq).Check(v)
}

// findMigration returns the first chain entry whose requirement matches
// version, or nil.
func findMigration(chain []Migration, version *semver.Version) *Migration {
	for i := range chain {
		if chain[i].Requirement.Check(version) {
			return &chain[i]
		}
	}
	return nil
}

// retrieveOrCreateVersion ensures dir exists, seeds its VERSION file with
// the running version when the directory is empty, and returns the VERSION
// file path and the parsed version.
func retrieveOrCreateVersion(dir string, current *semver.Version) (string, *semver.Version, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("migrate: cannot create %s: %w", dir, err)
	}

	file := filepath.Join(dir, VersionFileName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, fmt.Errorf("migrate: cannot read %s: %w", dir, err)
	}
	if len(entries) == 0 {
		if err := writeVersionFile(file, current); err != nil {
			return "", nil, err
		}
	}

	version, err := readVersionFile(file)
	if err != nil {
		return "", nil, err
	}
	return file, version, nil
}

func writeVersionFile(path string, version *semver.Version) error {
	if err := os.WriteFile(path, []byte(version.String()), 0o644); err != nil {
		return fmt.Errorf("migrate: cannot write VERSION: %w", err)
	}
	return nil
}

func readVersionFile(path string) (*semver.Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migrate: cannot read VERSION: %w", err)
	}
	version, err := semver.NewVersion(string(data))
	if err != nil {
		return nil, fmt.Errorf("migrate: cannot parse VERSION %q: %w", data, err)
	}
	return version, nil
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("invalid version requirement %q: %v", s, err))
	}
	return c
}
