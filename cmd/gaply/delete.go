package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <table> <id>",
	Short: "Safe-delete a record",
	Long: `Soft-delete a record locally and queue the deletion for the remote.
The record stays recoverable with 'gaply restore' until remote deletion
is confirmed.

Tables: tasks, gaps`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		table, id := args[0], args[1]

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		res := e.DeleteRecord(context.Background(), table, id, reason)
		if !res.Success {
			return fmt.Errorf("delete failed at %s: %s", res.Phase, res.Error)
		}
		fmt.Printf("Deleted %s/%s (recoverable until remote confirms)\n", table, id)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <table> <id>",
	Short: "Restore a soft-deleted record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, id := args[0], args[1]

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		res, err := e.RestoreRecord(context.Background(), table, id)
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Printf("%s/%s is not deleted, nothing to restore\n", table, id)
			return nil
		}
		fmt.Printf("Restored %s/%s\n", table, id)
		return nil
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List soft-deleted records awaiting purge",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		records, err := e.Store().ListSoftDeleted(context.Background())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Trash is empty")
			return nil
		}
		for _, rec := range records {
			meta := rec.Meta()
			when := ""
			if meta.DeletedAt != nil {
				when = meta.DeletedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-12s %s  deleted %s\n", rec.Table(), meta.ID, when)
		}
		return nil
	},
}

func init() {
	rmCmd.Flags().String("reason", "", "Reason recorded with the delete operation")

	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(trashCmd)
}
