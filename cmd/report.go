package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/report"
	"github.com/kvistgaard/evalbench/internal/result"
)

var (
	flagFormat string
	flagFromDB bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Render stored evaluation results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if flagFromDB {
				return reportFromDB(cfg)
			}
			runDir := filepath.Join(cfg.Evaluation.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			records, err := result.Collect(resolved)
			if err != nil {
				return err
			}
			return report.Generate(records, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagFromDB, "from-db", false, "read the latest run from the results database")
	return cmd
}

func reportFromDB(cfg *config.Config) error {
	if cfg.Evaluation.Results.Database == "" {
		return fmt.Errorf("no results database configured")
	}
	store, err := result.OpenStore(cfg.Evaluation.Results.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.LatestRun()
	if err != nil {
		return err
	}
	records, err := store.RunResults(runID)
	if err != nil {
		return err
	}
	byTask := make(map[string]map[string]*result.Record)
	for _, rec := range records {
		if byTask[rec.Task] == nil {
			byTask[rec.Task] = make(map[string]*result.Record)
		}
		byTask[rec.Task][rec.Model] = rec
	}
	fmt.Printf("Run %s\n", runID)
	return report.Generate(byTask, flagFormat, os.Stdout)
}
