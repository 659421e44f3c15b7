package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/punchlog/punch/internal/daemon"
	"github.com/punchlog/punch/internal/sync"
	"github.com/punchlog/punch/internal/sync/peer"
)

var (
	serveAddr     string
	serveToken    string
	serveInterval time.Duration
	serveNoDaemon bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the store for peers and run background sync",
	Long: `Serve the local record store over HTTP for peer backends and keep
the configured automatic backends in sync in the background.

Peers configure this instance as a backend of kind "peer" pointing at the
listen address. When --token is set, peers must present it as a bearer
token.`,
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

		server := peer.NewServer(serveAddr, st, serveToken, logger)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start peer server: %w", err)
		}
		fmt.Printf("Peer server listening on %s\n", server.Addr())

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if !serveNoDaemon {
			d, err := daemon.New(sync.New(st, logger), cfg.Backends, storePath(cfg), daemon.Config{
				Interval: serveInterval,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			go func() {
				if err := d.Start(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "sync daemon: %v\n", err)
				}
			}()
		}

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7125", "listen address")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token peers must present")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 5*time.Minute,
		"background sync interval for automatic backends")
	serveCmd.Flags().BoolVar(&serveNoDaemon, "no-daemon", false,
		"serve only, without background sync")
	rootCmd.AddCommand(serveCmd)
}
