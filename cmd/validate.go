package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/dataset"
	"github.com/kvistgaard/evalbench/internal/metrics"
	"github.com/kvistgaard/evalbench/internal/tasks"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config, datasets and metrics without evaluating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var failures int
			for i := range cfg.Tasks {
				t := &cfg.Tasks[i]
				if err := validateTask(t); err != nil {
					fmt.Printf("  FAIL %s: %v\n", t.Name, err)
					failures++
					continue
				}
				fmt.Printf("  ok   %s\n", t.Name)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d tasks failed validation", failures, len(cfg.Tasks))
			}
			fmt.Printf("%d tasks, %d models: config is valid\n", len(cfg.Tasks), len(cfg.Models))
			return nil
		},
	}
}

func validateTask(t *config.Task) error {
	if _, err := tasks.ForConfig(t); err != nil {
		return err
	}
	if _, err := metrics.Resolve(t.Metrics); err != nil {
		return err
	}
	ds, err := dataset.LoadJSONL(t.Dataset)
	if err != nil {
		return err
	}
	for _, col := range t.FeatureColumns {
		if ds, err = ds.FilterEmpty(col); err != nil {
			return err
		}
	}
	if ds.Len() == 0 {
		return fmt.Errorf("dataset has no usable records")
	}
	return nil
}
