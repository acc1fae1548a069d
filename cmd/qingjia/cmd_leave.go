package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/oa"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

var (
	leaveBalanceType string
	leaveHistoryMax  int
)

func init() {
	leaveBalanceCmd.Flags().StringVarP(&leaveBalanceType, "type", "t", "", "only show this leave type (e.g. 年假)")
	leaveHistoryCmd.Flags().IntVarP(&leaveHistoryMax, "limit", "n", 20, "number of requests to show")
	rootCmd.AddCommand(leaveCmd)
	leaveCmd.AddCommand(leaveEmployeesCmd, leaveBalanceCmd, leaveHistoryCmd)
}

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Query the OA system directly",
}

func oaClient() (*oa.Client, error) {
	return newBackend(loadConfig())
}

var leaveEmployeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List known employees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := oaClient()
		if err != nil {
			return err
		}
		employees, err := client.Employees(context.Background())
		if err != nil {
			return fmt.Errorf("list employees: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT")
		for _, e := range employees {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Name, e.Department)
		}
		return w.Flush()
	},
}

var leaveBalanceCmd = &cobra.Command{
	Use:   "balance <employee-id>",
	Short: "Show leave balances for an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *types.BalanceType
		if leaveBalanceType != "" {
			t := types.BalanceType(leaveBalanceType)
			if !t.Valid() {
				return fmt.Errorf("unknown leave type %q", leaveBalanceType)
			}
			filter = &t
		}

		client, err := oaClient()
		if err != nil {
			return err
		}
		resp, err := client.QueryLeaveBalance(context.Background(), args[0], filter)
		if err != nil {
			return fmt.Errorf("query balance: %w", err)
		}

		fmt.Printf("%s %s (%s)\n", resp.EmployeeID, resp.EmployeeName, resp.Department)
		if len(resp.Balances) == 0 {
			fmt.Println("No balances found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tTOTAL\tUSED\tREMAINING")
		for _, b := range resp.Balances {
			fmt.Fprintf(w, "%s\t%g\t%g\t%g\n", b.LeaveType, b.TotalDays, b.UsedDays, b.RemainingDays)
		}
		return w.Flush()
	},
}

var leaveHistoryCmd = &cobra.Command{
	Use:   "history <employee-id>",
	Short: "Show leave requests submitted for an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := oaClient()
		if err != nil {
			return err
		}
		records, err := client.History(context.Background(), args[0], leaveHistoryMax)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No leave requests found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tFROM\tTO\tDAYS\tSUBMITTED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\n",
				r.RequestID,
				r.Request.LeaveType,
				r.Request.StartDate,
				r.Request.EndDate,
				r.Request.Days,
				r.At.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}
