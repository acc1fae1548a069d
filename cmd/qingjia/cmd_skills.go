package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
)

func init() {
	rootCmd.AddCommand(skillsCmd)
	skillsCmd.AddCommand(skillsListCmd, skillsRunCmd)
}

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect and run skills without the model",
}

func loadSkills() (*runtime.Executor, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newSkills(cfg, backend)
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered skills in catalog order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := loadSkills()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tREQUIRED\tDESCRIPTION")
		for _, name := range executor.Registry().Names() {
			skill, err := executor.Registry().Resolve(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", skill.Name, strings.Join(skill.Required(), ","), skill.Description)
		}
		return w.Flush()
	},
}

var skillsRunCmd = &cobra.Command{
	Use:   "run <name> [json-arguments]",
	Short: "Execute a skill and print its result payload",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := loadSkills()
		if err != nil {
			return err
		}
		arguments := "{}"
		if len(args) == 2 {
			arguments = args[1]
		}

		result := executor.Execute(context.Background(), args[0], arguments)
		fmt.Fprintln(os.Stdout, result)
		if runtime.IsErrorPayload(result) {
			return fmt.Errorf("skill %s failed", args[0])
		}
		return nil
	},
}
