//go:build integration

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/report"
	"github.com/kvistgaard/evalbench/internal/result"
	"github.com/kvistgaard/evalbench/internal/task"
	"github.com/kvistgaard/evalbench/internal/tasks"
)

// TestRuleModelEndToEnd runs the whole pipeline against the bundled rule
// models: config, bootstrap evaluation, result storage and report.
func TestRuleModelEndToEnd(t *testing.T) {
	cfg, err := config.Load("testdata/full.yaml")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.Evaluation.Testing = true

	grid := []struct {
		taskName string
		modelID  string
	}{
		{"sentiment", "testdata/models/sent-rule"},
		{"ner", "testdata/models/ner-rule"},
	}

	provider := model.NewProvider(&cfg.Evaluation)
	runDir := t.TempDir()
	ctx := context.Background()

	for _, cell := range grid {
		var taskCfg *config.Task
		for i := range cfg.Tasks {
			if cfg.Tasks[i].Name == cell.taskName {
				taskCfg = &cfg.Tasks[i]
			}
		}
		if taskCfg == nil {
			t.Fatalf("task %q not in config", cell.taskName)
		}

		spec, err := tasks.ForConfig(taskCfg)
		if err != nil {
			t.Fatalf("building spec for %s: %v", cell.taskName, err)
		}
		ev, err := task.NewEvaluator(spec, taskCfg, &cfg.Evaluation, provider)
		if err != nil {
			t.Fatalf("building evaluator for %s: %v", cell.taskName, err)
		}

		res, err := ev.Evaluate(ctx, config.Model{ID: cell.modelID, Framework: "rule"})
		if err != nil {
			t.Fatalf("evaluating %s on %s: %v", cell.modelID, cell.taskName, err)
		}
		if len(res.Raw) != cfg.Evaluation.NumIterations() {
			t.Errorf("%s: raw entries = %d, want %d", cell.taskName, len(res.Raw), cfg.Evaluation.NumIterations())
		}

		rec := &result.Record{
			Task:      taskCfg.Name,
			Model:     cell.modelID,
			Framework: "rule",
			CreatedAt: time.Now().UTC(),
			Result:    res,
		}
		if err := result.Write(runDir, rec); err != nil {
			t.Fatalf("writing record: %v", err)
		}
	}

	records, err := result.Collect(runDir)
	if err != nil {
		t.Fatalf("collecting records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("collected tasks = %d, want 2", len(records))
	}

	var buf bytes.Buffer
	if err := report.Generate(records, "table", &buf); err != nil {
		t.Fatalf("generating report: %v", err)
	}
	for _, want := range []string{"sentiment", "ner", "MACRO_F1", "MICRO_F1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report is missing %q:\n%s", want, buf.String())
		}
	}
}
