package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

// parseWhen resolves a scheduling phrase to a due date and optional time.
// Accepts absolute dates ("2026-09-02") as well as natural language
// ("tomorrow at 3pm", "next friday").
func parseWhen(text string) (date, clock string, err error) {
	if t, perr := time.Parse(schema.DateLayout, text); perr == nil {
		return t.Format(schema.DateLayout), "", nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return "", "", fmt.Errorf("failed to parse %q: %w", text, err)
	}
	if r == nil {
		return "", "", fmt.Errorf("could not understand %q", text)
	}

	date = r.Time.Format(schema.DateLayout)
	// Only carry a clock time when the phrase actually named one.
	if strings.Contains(strings.ToLower(r.Text), "am") ||
		strings.Contains(strings.ToLower(r.Text), "pm") ||
		strings.Contains(r.Text, ":") {
		clock = r.Time.Format("15:04")
	}
	return date, clock, nil
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Create a task in the local store. The task queues for sync and
invalidates cached gaps for its date.

Examples:
  gaply task add "Write report" --when "tomorrow at 2pm" --duration 01:00
  gaply task add "Dentist" --when 2026-09-10 --time 09:30`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		whenText, _ := cmd.Flags().GetString("when")
		dueTime, _ := cmd.Flags().GetString("time")
		duration, _ := cmd.Flags().GetString("duration")
		notes, _ := cmd.Flags().GetString("notes")
		priority, _ := cmd.Flags().GetString("priority")
		category, _ := cmd.Flags().GetString("category")

		task := &schema.Task{
			Title:    strings.Join(args, " "),
			Status:   schema.TaskStatusPending,
			Priority: priority,
			Category: category,
			Notes:    notes,
			DueTime:  dueTime,
			Duration: duration,
		}

		if whenText != "" {
			date, clock, err := parseWhen(whenText)
			if err != nil {
				return err
			}
			task.DueDate = date
			if task.DueTime == "" {
				task.DueTime = clock
			}
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		if err := e.CreateTask(context.Background(), task); err != nil {
			return err
		}

		fmt.Printf("Created task %s\n", task.ID)
		if task.DueDate != "" {
			fmt.Printf("   Due: %s", task.DueDate)
			if task.DueTime != "" {
				fmt.Printf(" %s", task.DueTime)
			}
			fmt.Println()
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long:  `List tasks for a date (default today), or all tasks with --all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		all, _ := cmd.Flags().GetBool("all")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		ctx := context.Background()
		var tasks []*schema.Task
		if all {
			records, err := e.Store().ListByOwner(ctx, schema.TableTasks, resolveOwner())
			if err != nil {
				return err
			}
			for _, rec := range records {
				if t, ok := rec.(*schema.Task); ok && !t.IsDeleted() {
					tasks = append(tasks, t)
				}
			}
		} else {
			if date == "" {
				date = time.Now().Format(schema.DateLayout)
			}
			if tasks, err = e.Store().ListTasksForDate(ctx, resolveOwner(), date); err != nil {
				return err
			}
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return nil
		}
		for _, t := range tasks {
			marker := " "
			if t.Status == schema.TaskStatusCompleted {
				marker = "x"
			}
			line := fmt.Sprintf("[%s] %s  %s", marker, t.ID, t.Title)
			if t.DueDate != "" {
				line += "  (" + t.DueDate
				if t.DueTime != "" {
					line += " " + t.DueTime
				}
				line += ")"
			}
			if !t.IsSynced {
				line += "  *unsynced"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		task, err := e.CompleteTask(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Completed %s: %s\n", task.ID, task.Title)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		task, err := e.Store().GetTask(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", task.ID)
		fmt.Printf("Title:    %s\n", task.Title)
		fmt.Printf("Status:   %s\n", task.Status)
		if task.Priority != "" {
			fmt.Printf("Priority: %s\n", task.Priority)
		}
		if task.DueDate != "" {
			fmt.Printf("Due:      %s %s\n", task.DueDate, task.DueTime)
		}
		if task.Duration != "" {
			fmt.Printf("Duration: %s\n", task.Duration)
		}
		if task.Notes != "" {
			fmt.Printf("Notes:    %s\n", task.Notes)
		}
		fmt.Printf("Synced:   %v (v%d)\n", task.IsSynced, task.SyncVersion)
		if task.IsDeleted() {
			fmt.Fprintf(os.Stderr, "Warning: task is soft-deleted\n")
		}
		return nil
	},
}

func init() {
	taskAddCmd.Flags().String("when", "", "Due date phrase (\"tomorrow at 3pm\", \"2026-09-10\")")
	taskAddCmd.Flags().String("time", "", "Due time (24h HH:MM)")
	taskAddCmd.Flags().String("duration", "", "Duration (HH:MM)")
	taskAddCmd.Flags().String("notes", "", "Free-form notes")
	taskAddCmd.Flags().String("priority", "", "Priority label")
	taskAddCmd.Flags().String("category", "", "Category label")

	taskListCmd.Flags().String("date", "", "Date to list (2006-01-02, default today)")
	taskListCmd.Flags().Bool("all", false, "List all tasks regardless of date")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
