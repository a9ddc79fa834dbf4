package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seclens/sentrydb/config"
	"github.com/seclens/sentrydb/migrate"
	"github.com/seclens/sentrydb/pkg/logger"
	"github.com/seclens/sentrydb/store"
)

var (
	dataDir   string
	backupDir string
)

func main() {
	logger.SetDefault(logger.MustProduction())
	defer logger.SyncDefault()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	rootCmd := &cobra.Command{
		Use:   config.APP_NAME,
		Short: "Versioned persistence layer for network security monitoring",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir,
		"directory containing the database and its VERSION file")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", cfg.BackupDir,
		"directory containing backups and their VERSION file")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the data directory to the current format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cfg)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report the data directory's format version without changing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version and its compatible format range",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (database format %s)\n",
				config.APP_NAME, config.APP_VERSION, migrate.CompatibleVersionReq)
		},
	}

	rootCmd.AddCommand(migrateCmd, checkCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMigrate runs the compatibility gate and then opens the store once to
// create any column families added in this release.
func runMigrate(cfg *config.Config) error {
	log := logger.Default()

	if err := migrate.DataDir(dataDir, backupDir, migrate.WithLogger(log)); err != nil {
		return err
	}

	s, err := store.Open(dataDir, backupDir,
		store.WithSyncWrites(cfg.SyncWrites),
		store.WithCacheSize(cfg.CacheSize),
		store.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Info("data directory is up to date", "data_dir", dataDir)
	return nil
}

// runCheck reports both VERSION files and whether migration would run.
func runCheck() error {
	dataVer, err := migrate.ReadVersion(dataDir)
	if err != nil {
		return err
	}
	backupVer, err := migrate.ReadVersion(backupDir)
	if err != nil {
		return err
	}

	fmt.Printf("data:   %s\n", dataVer)
	fmt.Printf("backup: %s\n", backupVer)
	switch {
	case !dataVer.Equal(backupVer):
		fmt.Println("status: version mismatch, migration will fail")
	case migrate.Compatible(dataVer):
		fmt.Println("status: compatible, no migration needed")
	default:
		fmt.Println("status: migration required")
	}
	return nil
}
