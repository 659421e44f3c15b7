package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and per-backend sync state",
	Long: `Display the local record store summary and, for each configured
backend, how far it has drifted from local state.

Backend drift is computed the same way sync computes it, as a dry run:
nothing is transferred.`,
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

		all, err := st.All()
		if err != nil {
			return err
		}

		var live, running, tombstones int
		projects := map[string]bool{}
		for _, p := range all {
			if p.IsTombstone() {
				tombstones++
				continue
			}
			live++
			projects[p.Project] = true
			if p.IsCurrent() {
				running++
			}
		}

		fmt.Printf("Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Driver)
		fmt.Printf("  %d records across %d projects, %d running, %d tombstones\n",
			live, len(projects), running, tombstones)

		if cur, err := st.Current(""); err == nil && cur != nil {
			fmt.Printf("  Currently punched in: %s (since %s)\n",
				cur.Project, cur.In.Local().Format("15:04"))
			printComments(cur)
		}

		if len(cfg.Backends) == 0 {
			return nil
		}

		fmt.Println("\nBackends:")
		syncer := sync.New(st, logger)
		results := syncer.SyncAll(cmd.Context(), cfg.Backends, sync.Options{CheckOnly: true})
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(os.Stderr, "  ✗ %s: %v\n", res.Label, res.Err)
				continue
			}
			pending := len(res.Uploaded) + len(res.Downloaded) + len(res.Deleted)
			if pending == 0 {
				fmt.Printf("  ✓ %s: in sync\n", res.Label)
				continue
			}
			fmt.Printf("  ~ %s: %d up, %d down, %d deletes pending\n",
				res.Label, len(res.Uploaded), len(res.Downloaded), len(res.Deleted))
		}
		return nil
	},
}

func printComments(p *punch.Punch) {
	for _, c := range p.Comments {
		fmt.Printf("    · %s\n", c.Comment)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
