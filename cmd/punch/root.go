// Command punch drives the punch record store and its sync engine.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/dlog"
	"github.com/punchlog/punch/internal/store"
	"github.com/punchlog/punch/internal/store/ledger"
	"github.com/punchlog/punch/internal/store/sqlite"

	// Adapter registration.
	_ "github.com/punchlog/punch/internal/sync/object"
	_ "github.com/punchlog/punch/internal/sync/peer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "punch",
	Short: "Work session records with multi-backend sync",
	Long: `punch keeps a local store of work session records and reconciles it
against any number of configured backends: S3 buckets, shared directories,
and hosted peers. Conflicts resolve by last write wins on each record's
updated timestamp.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default punch.yaml in the working directory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configured (or default) config file and builds the
// process logger from its log settings.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := dlog.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore opens the local record store named by the configuration.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	path := cfg.Store.Path
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return sqlite.Open(path)
	case config.DriverLedger:
		return ledger.Open(path, logger)
	default:
		return nil, fmt.Errorf("%w: driver %q", config.ErrInvalidStore, cfg.Store.Driver)
	}
}

// storePath returns the store file to watch for external changes.
func storePath(cfg *config.Config) string {
	return filepath.Clean(cfg.Store.Path)
}
