package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"loftdata/config"
)

var envsCmd = &cobra.Command{
	Use:           "envs",
	Short:         "List configured environments",
	RunE:          runEnvs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func runEnvs(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names := cfg.EnvironmentNames()
	if len(names) == 0 {
		fmt.Println("No environments configured.")
		return nil
	}
	sort.Strings(names)

	for _, name := range names {
		env := cfg.Environments[name]
		marker := "  "
		if env.IsProduction {
			marker = "🔒"
		}
		fmt.Printf("%s %-16s %-12s %s backend=%s writes=%v\n",
			marker, name, env.Type, env.Status, env.Backend, env.AllowWrites)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(envsCmd)
}
