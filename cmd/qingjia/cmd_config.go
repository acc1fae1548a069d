package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/config"
)

var configShowSecrets bool

func init() {
	configListCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "print API keys and tokens unmasked")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its effective value (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTYPE\tVALUE\tSOURCE")
		for _, v := range config.ListValues(loadConfig(), !configShowSecrets) {
			source := "file"
			if v.Env != "" {
				source = "$" + v.Env
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Key, v.Type, v.Value, source)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting in the config file (see 'config list' for keys and types)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		display := value
		if config.IsSecretKey(key) {
			display = config.Mask(value)
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, display)
		if env := config.EnvOverride(key); env != "" {
			fmt.Fprintf(os.Stderr, "Note: $%s is set and overrides this value at runtime.\n", env)
		}
		return nil
	},
}
