package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote service",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run a sync cycle immediately",
	Long: `Run a push, pull, and queue-drain cycle against the configured remote.

Without a remote configured this is a no-op. Use --force to attempt the
cycle even when the network monitor reports offline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		result, err := e.SyncNow(context.Background(), force)
		if err != nil {
			return err
		}

		if result.Skipped != "" {
			fmt.Printf("Sync skipped: %s\n", result.Skipped)
			return nil
		}
		if result.Success {
			fmt.Printf("Sync complete in %v\n", result.Duration)
		} else {
			fmt.Printf("Sync finished with errors in %v\n", result.Duration)
		}
		fmt.Printf("   Items:     %d\n", result.SyncedItems)
		fmt.Printf("   Conflicts: %d\n", result.Conflicts)
		for _, msg := range result.Errors {
			fmt.Printf("   Error: %s\n", msg)
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync and connectivity status",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		status, err := e.CurrentStatus(context.Background())
		if err != nil {
			return err
		}

		state := "offline"
		if status.Online {
			state = fmt.Sprintf("online (%s)", status.Quality)
		}
		fmt.Printf("Network:         %s\n", state)
		if status.LastSyncAt.IsZero() {
			fmt.Printf("Last sync:       never\n")
		} else {
			fmt.Printf("Last sync:       %s\n", status.LastSyncAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Pending changes: %d\n", status.PendingChanges)
		fmt.Printf("Pending deletes: %d\n", status.PendingDeletes)
		fmt.Printf("Queue length:    %d\n", status.QueueLength)
		fmt.Printf("Schema version:  %d\n", status.SchemaVersion)
		return nil
	},
}

func init() {
	syncNowCmd.Flags().Bool("force", false, "Attempt sync even while offline")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
