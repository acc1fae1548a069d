package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

func init() {
	rootCmd.AddCommand(remindersCmd)
	remindersCmd.AddCommand(remindersListCmd, remindersStatusCmd)
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Inspect reminders created by the schedule_reminder skill",
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders in creation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reminders, err := reminderStore(loadConfig()).List(context.Background())
		if err != nil {
			return err
		}
		if len(reminders) == 0 {
			fmt.Println("No reminders.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDUE\tPRIORITY\tSTATUS\tTASK")
		for _, r := range reminders {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n", r.ID, r.DueDate, r.DueTime, r.Priority, r.Status, r.Task)
		}
		return w.Flush()
	},
}

var remindersStatusCmd = &cobra.Command{
	Use:   "set-status <id> <status>",
	Short: "Change a reminder's status (pending, in_progress, completed, cancelled)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := types.ReminderStatus(args[1])
		if err := reminderStore(loadConfig()).SetStatus(context.Background(), args[0], status); err != nil {
			return err
		}
		fmt.Printf("Reminder %s is now %s.\n", args[0], status)
		return nil
	},
}
