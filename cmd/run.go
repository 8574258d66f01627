package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/report"
	"github.com/kvistgaard/evalbench/internal/result"
	"github.com/kvistgaard/evalbench/internal/runner"
	"github.com/kvistgaard/evalbench/internal/scoring"
	"github.com/kvistgaard/evalbench/internal/task"
	"github.com/kvistgaard/evalbench/internal/tasks"
)

var (
	flagModel          string
	flagTask           string
	flagIterations     int
	flagBatchSize      int
	flagParallel       int
	flagTesting        bool
	flagTrackResources bool
	flagLogOnly        bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the configured models on the configured tasks",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagModel, "model", "", "filter to a single model")
	cmd.Flags().StringVar(&flagTask, "task", "", "filter to a single task")
	cmd.Flags().IntVar(&flagIterations, "iterations", 0, "override bootstrap iteration count")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "override inference batch size")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent evaluations")
	cmd.Flags().BoolVar(&flagTesting, "testing", false, "fast mode: 2 iterations on 4 records")
	cmd.Flags().BoolVar(&flagTrackResources, "track-resources", false, "record latency and allocation per example")
	cmd.Flags().BoolVar(&flagLogOnly, "log-only", false, "print score logs instead of the final table")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagIterations > 0 {
		cfg.Evaluation.Iterations = flagIterations
	}
	if flagBatchSize > 0 {
		cfg.Evaluation.BatchSize = flagBatchSize
	}
	if flagTesting {
		cfg.Evaluation.Testing = true
	}
	if flagTrackResources {
		cfg.Evaluation.TrackResources = true
	}
	if flagLogOnly {
		cfg.Evaluation.LogOnly = true
	}

	taskCfgs := filterTasks(cfg.Tasks, flagTask)
	models := filterModels(cfg.Models, flagModel)
	if len(taskCfgs) == 0 {
		return fmt.Errorf("no tasks match %q", flagTask)
	}
	if len(models) == 0 {
		return fmt.Errorf("no models match %q", flagModel)
	}

	runDir, err := result.CreateRunDir(cfg.Evaluation.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	var store *result.Store
	var runID string
	if cfg.Evaluation.Results.Database != "" {
		store, err = result.OpenStore(cfg.Evaluation.Results.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err = store.BeginRun()
		if err != nil {
			return err
		}
	}

	provider := model.NewProvider(&cfg.Evaluation)
	collected := make(map[string]map[string]*result.Record)
	var mu sync.Mutex

	var jobs []runner.Job
	for i := range taskCfgs {
		taskCfg := &taskCfgs[i]
		for _, m := range models {
			jobs = append(jobs, func(ctx context.Context) error {
				fmt.Printf("Evaluating %s on %s...\n", m.ID, taskCfg.DisplayName())
				rec, logText, err := evaluateCell(ctx, &cfg.Evaluation, taskCfg, m, provider)
				if err != nil {
					return fmt.Errorf("%s on %s: %w", m.ID, taskCfg.Name, err)
				}

				mu.Lock()
				defer mu.Unlock()
				if err := result.Write(runDir, rec); err != nil {
					log.Printf("  warning: could not write result: %v", err)
				}
				if store != nil {
					if err := store.RecordResult(runID, rec); err != nil {
						log.Printf("  warning: could not record result: %v", err)
					}
				}
				if cfg.Evaluation.LogOnly {
					fmt.Println(logText)
					return nil
				}
				if collected[taskCfg.Name] == nil {
					collected[taskCfg.Name] = make(map[string]*result.Record)
				}
				collected[taskCfg.Name][m.ID] = rec
				return nil
			})
		}
	}

	for _, err := range runner.RunPool(context.Background(), flagParallel, jobs) {
		log.Printf("  ERROR: %v", err)
	}

	if cfg.Evaluation.LogOnly {
		return nil
	}
	fmt.Println("\n--- Results ---")
	return report.Generate(collected, "table", os.Stdout)
}

// evaluateCell runs one model on one task. Each cell gets its own evaluator
// so concurrent cells never share resource trackers.
func evaluateCell(ctx context.Context, evalCfg *config.Evaluation, taskCfg *config.Task, m config.Model, provider model.Provider) (*result.Record, string, error) {
	spec, err := tasks.ForConfig(taskCfg)
	if err != nil {
		return nil, "", err
	}
	ev, err := task.NewEvaluator(spec, taskCfg, evalCfg, provider)
	if err != nil {
		return nil, "", err
	}
	res, err := ev.Evaluate(ctx, m)
	if err != nil {
		return nil, "", err
	}
	rec := &result.Record{
		Task:      taskCfg.Name,
		Model:     m.ID,
		Framework: m.Framework,
		CreatedAt: time.Now().UTC(),
		Result:    res,
	}
	return rec, scoring.RenderLog(taskCfg.DisplayName(), m.ID, ev.MetricList(), res), nil
}

func filterTasks(taskCfgs []config.Task, name string) []config.Task {
	if name == "" {
		return taskCfgs
	}
	var filtered []config.Task
	for _, t := range taskCfgs {
		if t.Name == name {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func filterModels(models []config.Model, id string) []config.Model {
	if id == "" {
		return models
	}
	var filtered []config.Model
	for _, m := range models {
		if m.ID == id || strings.HasSuffix(m.ID, "/"+id) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
