package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kvistgaard/evalbench/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured tasks and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Tasks:")
			for _, t := range cfg.Tasks {
				fmt.Printf("  - %s [%s] metrics: %s\n", t.Name, t.Supertask, strings.Join(t.Metrics, ", "))
			}
			fmt.Println("\nModels:")
			for _, m := range cfg.Models {
				fmt.Printf("  - %s (framework: %s)\n", m.ID, m.Framework)
			}
			return nil
		},
	}
}
