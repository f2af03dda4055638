package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jayminstro/gaplyv2-sub004/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine in the foreground with the dashboard",
	Long: `Run the engine continuously: periodic sync, gap precomputation,
housekeeping, and the WebSocket dashboard.

Dashboard messages include:
- status: current engine snapshot (sent on connect)
- sync_result: a sync cycle finished
- gap_recalc: gaps were recalculated for a date
- delete_event: a record entered the safe-delete lifecycle
- network: connectivity changed

Connect with a WebSocket client:
  ws://<dashboard.addr>/ws

If --config points at a file, it is watched and tunables are reloaded
on change without restarting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		addr, err := e.ServeDashboard()
		if err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		fmt.Printf("Engine running (owner %s)\n", resolveOwner())
		fmt.Printf("Dashboard: http://%s\n", addr)
		fmt.Printf("WebSocket: ws://%s/ws\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		// Hot-reload tunables while running.
		if configPath != "" {
			watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
				e.ApplyConfig(cfg)
			}, log.New(os.Stderr, "[config] ", log.LstdFlags))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: config watch unavailable: %v\n", err)
			} else if err := watcher.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: config watch failed to start: %v\n", err)
			} else {
				defer watcher.Stop()
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := e.Stop(); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		fmt.Println("Stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
