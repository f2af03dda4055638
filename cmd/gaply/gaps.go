package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Inspect and recalculate free-time gaps",
}

func argDate(args []string) (string, error) {
	if len(args) == 0 {
		return time.Now().Format(schema.DateLayout), nil
	}
	if _, err := time.Parse(schema.DateLayout, args[0]); err != nil {
		return "", fmt.Errorf("invalid date %q: expected 2006-01-02", args[0])
	}
	return args[0], nil
}

func printGaps(date string, gaps []*schema.TimeGap) {
	if len(gaps) == 0 {
		fmt.Printf("No gaps on %s\n", date)
		return
	}
	fmt.Printf("Gaps on %s:\n", date)
	for _, g := range gaps {
		label := ""
		if g.Source == schema.GapSourceManual {
			label = "  (manual)"
		}
		if !g.IsAvailable {
			label += "  unavailable"
		}
		fmt.Printf("  %s - %s  %3d min%s\n", g.StartTime, g.EndTime, g.DurationMinutes, label)
	}
}

var gapsShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show gaps for a date (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := argDate(args)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		gaps, err := e.GapsForDate(context.Background(), date)
		if err != nil {
			return err
		}
		printGaps(date, gaps)
		return nil
	},
}

var gapsRecalcCmd = &cobra.Command{
	Use:   "recalc [date]",
	Short: "Force gap recalculation for a date",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := argDate(args)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		gaps, stats, err := e.RecalculateGaps(context.Background(), date)
		if err != nil {
			return err
		}
		fmt.Printf("Recalculated %s: %d created, %d unchanged, %d removed, %d replaced, %d conflicts\n",
			date, stats.Created, stats.Unchanged, stats.Removed, stats.Replaced, stats.Conflicts)
		printGaps(date, gaps)
		return nil
	},
}

var gapsValidateCmd = &cobra.Command{
	Use:   "validate [date]",
	Short: "Check a date's gaps for overlaps and out-of-window placement",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := argDate(args)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		issues, warnings, err := e.ValidateGaps(context.Background(), date)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if len(issues) > 0 {
			for _, issue := range issues {
				fmt.Printf("error: %v\n", issue)
			}
			return fmt.Errorf("%d gap validation issues on %s", len(issues), date)
		}
		fmt.Printf("Gaps on %s are valid (%d warnings)\n", date, len(warnings))
		return nil
	},
}

func init() {
	gapsCmd.AddCommand(gapsShowCmd)
	gapsCmd.AddCommand(gapsRecalcCmd)
	gapsCmd.AddCommand(gapsValidateCmd)
	rootCmd.AddCommand(gapsCmd)
}
