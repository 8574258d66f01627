package task_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/task"
	"github.com/kvistgaard/evalbench/internal/tasks"
)

func writeSentimentDataset(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"text": "good movie", "label": "positive"}`,
		`{"text": "bad movie", "label": "negative"}`,
		`{"text": "good good good", "label": "positive"}`,
		`{"text": "awful", "label": "negative"}`,
		`{"text": "really good", "label": "positive"}`,
		`{"text": "really bad", "label": "negative"}`,
	}
	path := filepath.Join(t.TempDir(), "sentiment.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sentimentConfig(t *testing.T) *config.Task {
	return &config.Task{
		Name:           "sentiment",
		Supertask:      tasks.SupertaskSequenceClassification,
		Dataset:        writeSentimentDataset(t),
		FeatureColumns: []string{"text"},
		LabelColumn:    "label",
		Metrics:        []string{"accuracy", "macro_f1"},
		Labels: []config.Label{
			{Name: "negative", Synonyms: []string{"LABEL_0"}},
			{Name: "positive", Synonyms: []string{"LABEL_1"}},
		},
	}
}

func testingEval() *config.Evaluation {
	return &config.Evaluation{Testing: true}
}

func newEvaluator(t *testing.T, taskCfg *config.Task, evalCfg *config.Evaluation, p model.Provider) *task.Evaluator {
	t.Helper()
	spec, err := tasks.ForConfig(taskCfg)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := task.NewEvaluator(spec, taskCfg, evalCfg, p)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

// stubProvider satisfies model.Provider with in-test models so evaluations
// run without any model files or native runtime.
type stubProvider struct {
	labels      []string
	tok         *model.Tokenizer
	tensorErr   error
	newTensor   func(seed int64) model.TensorModel
	newRule     func(load int) model.RuleModel
	tensorLoads int
	ruleLoads   int
}

func (p *stubProvider) Resolve(id, framework string) (model.Config, error) {
	return model.Config{
		ID:        id,
		Ref:       model.ParseRef(id),
		Framework: model.Framework(framework),
		Labels:    p.labels,
	}, nil
}

func (p *stubProvider) Tokenizer(cfg model.Config) (*model.Tokenizer, error) {
	return p.tok, nil
}

func (p *stubProvider) LoadTensor(cfg model.Config, seed int64) (model.TensorModel, error) {
	p.tensorLoads++
	if p.tensorErr != nil {
		return nil, p.tensorErr
	}
	return p.newTensor(seed), nil
}

func (p *stubProvider) LoadRule(cfg model.Config) (model.RuleModel, error) {
	p.ruleLoads++
	return p.newRule(p.ruleLoads), nil
}

type stubRuleModel struct {
	predictText func(texts []string) ([]string, error)
}

func (m *stubRuleModel) PredictText(texts []string, batchSize int) ([]string, error) {
	return m.predictText(texts)
}

func (m *stubRuleModel) PredictTokens(seqs [][]string, batchSize int) ([][]string, error) {
	return nil, errors.New("not a token model")
}

func (m *stubRuleModel) Close() error { return nil }

// keywordRule labels any text containing "good" positive and everything
// else negative. Deterministic, so reruns must reproduce scores exactly.
func keywordRule(int) model.RuleModel {
	return &stubRuleModel{predictText: func(texts []string) ([]string, error) {
		out := make([]string, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "good") {
				out[i] = "positive"
			} else {
				out[i] = "negative"
			}
		}
		return out, nil
	}}
}

type stubTensorModel struct {
	forward func(batch model.Batch) ([][]float32, error)
	closed  bool
}

func (m *stubTensorModel) Forward(batch model.Batch) ([][]float32, error) {
	return m.forward(batch)
}

func (m *stubTensorModel) Close() error {
	m.closed = true
	return nil
}

// constantTensor emits the same logit row for every example in the batch.
func constantTensor(row []float32) func(int64) model.TensorModel {
	return func(int64) model.TensorModel {
		return &stubTensorModel{forward: func(batch model.Batch) ([][]float32, error) {
			rows := make([][]float32, batch.Size)
			for i := range rows {
				rows[i] = row
			}
			return rows, nil
		}}
	}
}

func testTokenizer(t *testing.T) *model.Tokenizer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	vocab := "[PAD]\n[UNK]\n[CLS]\ngood\nbad\nmovie\nreally\nawful\n"
	if err := os.WriteFile(path, []byte(vocab), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := model.LoadTokenizer(path, 8)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestEvaluateRuleRawEntriesPerIteration(t *testing.T) {
	taskCfg := sentimentConfig(t)
	evalCfg := &config.Evaluation{Iterations: 3}
	p := &stubProvider{newRule: keywordRule}
	ev := newEvaluator(t, taskCfg, evalCfg, p)

	res, err := ev.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Raw) != 3 {
		t.Fatalf("raw entries = %d, want one per iteration", len(res.Raw))
	}
	for i, scores := range res.Raw {
		for _, name := range []string{"accuracy", "macro_f1"} {
			if _, ok := scores[name]; !ok {
				t.Fatalf("iteration %d is missing %s", i, name)
			}
		}
	}
	for _, name := range []string{"accuracy", "accuracy_se", "macro_f1", "macro_f1_se"} {
		if _, ok := res.Total[name]; !ok {
			t.Fatalf("total is missing %s", name)
		}
	}
	if p.ruleLoads != 3 {
		t.Fatalf("rule model loaded %d times, want a fresh load per iteration", p.ruleLoads)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	taskCfg := sentimentConfig(t)
	ev1 := newEvaluator(t, taskCfg, testingEval(), &stubProvider{newRule: keywordRule})
	ev2 := newEvaluator(t, taskCfg, testingEval(), &stubProvider{newRule: keywordRule})

	res1, err := ev1.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	if err != nil {
		t.Fatal(err)
	}
	res2, err := ev2.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res1, res2) {
		t.Fatalf("reruns diverged:\n%v\n%v", res1, res2)
	}
}

func TestEvaluateWrongFeatureColumn(t *testing.T) {
	taskCfg := sentimentConfig(t)
	taskCfg.FeatureColumns = []string{"body"}
	p := &stubProvider{newRule: keywordRule}
	ev := newEvaluator(t, taskCfg, testingEval(), p)

	_, err := ev.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	var colErr *task.WrongFeatureColumnError
	if !errors.As(err, &colErr) {
		t.Fatalf("err = %v, want WrongFeatureColumnError", err)
	}
	if colErr.Column != "body" {
		t.Fatalf("column = %q", colErr.Column)
	}
	if p.ruleLoads != 0 {
		t.Fatal("no model must be loaded when the feature column is wrong")
	}
}

func TestEvaluateUnsupportedFramework(t *testing.T) {
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), &stubProvider{})
	_, err := ev.Evaluate(context.Background(), config.Model{ID: "m", Framework: "torch"})
	var fwErr *task.UnsupportedFrameworkError
	if !errors.As(err, &fwErr) {
		t.Fatalf("err = %v, want UnsupportedFrameworkError", err)
	}
}

func TestEvaluateNotTrainedAbortsAfterIterationZero(t *testing.T) {
	// Three logits against a two-label task fails the structure check.
	p := &stubProvider{
		labels:    []string{"LABEL_0", "LABEL_1"},
		tok:       testTokenizer(t),
		newTensor: constantTensor([]float32{0.1, 0.2, 0.7}),
	}
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), p)

	_, err := ev.Evaluate(context.Background(), config.Model{ID: "m", Framework: "onnx"})
	var ntErr *task.NotTrainedForTaskError
	if !errors.As(err, &ntErr) {
		t.Fatalf("err = %v, want NotTrainedForTaskError", err)
	}
	if p.tensorLoads != 1 {
		t.Fatalf("model loaded %d times, want the abort before iteration 1", p.tensorLoads)
	}
}

func TestEvaluateTensorEndToEnd(t *testing.T) {
	p := &stubProvider{
		labels:    []string{"LABEL_0", "LABEL_1"},
		tok:       testTokenizer(t),
		newTensor: constantTensor([]float32{0.1, 0.9}),
	}
	evalCfg := testingEval()
	ev := newEvaluator(t, sentimentConfig(t), evalCfg, p)

	res, err := ev.Evaluate(context.Background(), config.Model{ID: "m", Framework: "onnx"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Raw) != evalCfg.NumIterations() {
		t.Fatalf("raw entries = %d, want %d", len(res.Raw), evalCfg.NumIterations())
	}
	// The model always predicts LABEL_1, mapped to "positive" through the
	// synonym table, so accuracy equals the resampled share of positives.
	for i, scores := range res.Raw {
		acc := scores["accuracy"]
		if acc < 0 || acc > 1 {
			t.Fatalf("iteration %d accuracy = %v", i, acc)
		}
	}
	if p.tensorLoads != evalCfg.NumIterations() {
		t.Fatalf("tensor model loaded %d times, want a fresh load per iteration", p.tensorLoads)
	}
}

func TestEvaluateDeviceFallbackIsFatal(t *testing.T) {
	p := &stubProvider{
		labels:    []string{"LABEL_0", "LABEL_1"},
		tok:       testTokenizer(t),
		tensorErr: errors.New("requested execution provider is not available"),
	}
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), p)

	_, err := ev.Evaluate(context.Background(), config.Model{ID: "m", Framework: "onnx"})
	var devErr *task.DeviceFallbackError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want DeviceFallbackError", err)
	}
	var iterErr *task.IterationError
	if errors.As(err, &iterErr) {
		t.Fatal("device misconfiguration must not be wrapped as an iteration failure")
	}
	if p.tensorLoads != 1 {
		t.Fatalf("model load attempted %d times, want no retry", p.tensorLoads)
	}
}

func TestEvaluateIterationFailureAbortsWithoutRetry(t *testing.T) {
	p := &stubProvider{newRule: func(load int) model.RuleModel {
		if load > 1 {
			return &stubRuleModel{predictText: func([]string) ([]string, error) {
				return nil, errors.New("lexicon file corrupted")
			}}
		}
		return keywordRule(load)
	}}
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), p)

	_, err := ev.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	var iterErr *task.IterationError
	if !errors.As(err, &iterErr) {
		t.Fatalf("err = %v, want IterationError", err)
	}
	if iterErr.Iteration != 1 {
		t.Fatalf("failed iteration = %d, want 1", iterErr.Iteration)
	}
	if p.ruleLoads != 2 {
		t.Fatalf("rule model loaded %d times, want no retry after the failure", p.ruleLoads)
	}
}

func TestEvaluateUnknownModelLabel(t *testing.T) {
	p := &stubProvider{
		labels:    []string{"LABEL_0", "LABEL_7"},
		tok:       testTokenizer(t),
		newTensor: constantTensor([]float32{0.1, 0.9}),
	}
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), p)

	_, err := ev.Evaluate(context.Background(), config.Model{ID: "m", Framework: "onnx"})
	if err == nil || !strings.Contains(err.Error(), "LABEL_7") {
		t.Fatalf("err = %v, want a complaint about LABEL_7", err)
	}
	if p.tensorLoads != 0 {
		t.Fatal("no model must be loaded when its labels cannot be mapped")
	}
}

func TestEvaluateTrackResourcesAddsMetrics(t *testing.T) {
	evalCfg := testingEval()
	evalCfg.TrackResources = true
	ev := newEvaluator(t, sentimentConfig(t), evalCfg, &stubProvider{newRule: keywordRule})

	res, err := ev.Evaluate(context.Background(), config.Model{ID: "kw", Framework: "rule"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"inference_ms_per_example", "alloc_kb_per_example"} {
		if _, ok := res.Total[name]; !ok {
			t.Fatalf("total is missing %s", name)
		}
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	ev := newEvaluator(t, sentimentConfig(t), testingEval(), &stubProvider{newRule: keywordRule})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.Evaluate(ctx, config.Model{ID: "kw", Framework: "rule"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMetricListIncludesTrackerEntries(t *testing.T) {
	evalCfg := testingEval()
	evalCfg.TrackResources = true
	ev := newEvaluator(t, sentimentConfig(t), evalCfg, &stubProvider{})
	names := make([]string, 0)
	for _, m := range ev.MetricList() {
		names = append(names, m.Name)
	}
	want := []string{"accuracy", "macro_f1", "inference_ms_per_example", "alloc_kb_per_example"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("metric list = %v, want %v", names, want)
	}
}
