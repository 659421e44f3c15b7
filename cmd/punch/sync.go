package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/punchlog/punch/internal/sync"
)

var syncCheck bool

var syncCmd = &cobra.Command{
	Use:   "sync [label...]",
	Short: "Reconcile the local store against configured backends",
	Long: `Sync the local record store against sync backends.

Without arguments every configured backend syncs in order. Passing labels
limits the run to those backends. Each backend syncs independently; a
failing backend is reported and does not stop the others.

With --check the diff is computed and printed but nothing is transferred.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = st.CleanUp() }()

		if len(cfg.Backends) == 0 {
			fmt.Println("No backends configured.")
			return nil
		}

		syncer := sync.New(st, logger)
		results := syncer.SyncAll(cmd.Context(), cfg.Backends, sync.Options{
			Labels:    args,
			CheckOnly: syncCheck,
		})

		failed := false
		for _, res := range results {
			if res.Err != nil {
				failed = true
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Label, res.Err)
				continue
			}
			verb := "synced"
			if res.CheckOnly {
				verb = "would sync"
			}
			fmt.Printf("✓ %s: %s %d up, %d down, %d deleted\n",
				res.Label, verb, len(res.Uploaded), len(res.Downloaded), len(res.Deleted))
		}
		if failed {
			return fmt.Errorf("one or more backends failed")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncCheck, "check", false,
		"report what would transfer without transferring")
	rootCmd.AddCommand(syncCmd)
}
