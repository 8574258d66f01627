package task

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/dataset"
	"github.com/kvistgaard/evalbench/internal/metrics"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/scoring"
	"github.com/kvistgaard/evalbench/internal/tracker"
)

// seedBase offsets the per-iteration seeds; iteration idx runs with seed
// seedBase+idx so reruns resample and reinitialise identically.
const seedBase = 703

// Prepared is one bootstrapped dataset after task preprocessing, ready for
// a single iteration. Tensor-framework fields (InputIDs, AttentionMask,
// WordIdx) and rule-framework fields (Texts, TokenSeqs) are populated
// depending on the execution family; Labels always holds the reference
// label ids, one slice per example.
type Prepared struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
	WordIdx       [][]int
	Texts         []string
	TokenSeqs     [][]string
	Labels        [][]int
	SeqLen        int
}

func (p *Prepared) Len() int {
	return len(p.Labels)
}

// Spec is the capability set a concrete task supplies: preprocessing per
// execution framework, prediction extraction for the rule-based path, the
// batch collation strategy for the tensor path, and the trained-for-task
// sanity check run on iteration 0. The evaluator is polymorphic over any
// task implementing these four operations.
type Spec interface {
	Preprocess(ds *dataset.Dataset, fw model.Framework, tok *model.Tokenizer) (*Prepared, error)
	RulePredictions(m model.RuleModel, prep *Prepared, batchSize int) ([][]int, error)
	Collate(prep *Prepared, start, end int) model.Batch
	// TrainedForTask inspects the raw first-iteration predictions: logits
	// on the tensor path, label ids on the rule path (the other argument
	// is nil).
	TrainedForTask(logits [][]float32, labelIDs [][]int) bool
}

// Evaluator runs the full bootstrapped evaluation of models on one task.
type Evaluator struct {
	taskCfg  *config.Task
	evalCfg  *config.Evaluation
	spec     Spec
	metrics  []metrics.Metric
	provider model.Provider
	tracker  *tracker.Tracker
	label2id map[string]int
}

func NewEvaluator(spec Spec, taskCfg *config.Task, evalCfg *config.Evaluation, provider model.Provider) (*Evaluator, error) {
	resolved, err := metrics.Resolve(taskCfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", taskCfg.Name, err)
	}
	label2id, err := taskCfg.Label2ID()
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", taskCfg.Name, err)
	}
	return &Evaluator{
		taskCfg:  taskCfg,
		evalCfg:  evalCfg,
		spec:     spec,
		metrics:  resolved,
		provider: provider,
		tracker:  tracker.New(),
		label2id: label2id,
	}, nil
}

// MetricList is the metric configuration the aggregate is built over: the
// task's metrics plus the resource-tracking entries when tracking is on.
func (e *Evaluator) MetricList() []metrics.Metric {
	list := slices.Clone(e.metrics)
	if e.evalCfg.TrackResources {
		list = append(list, tracker.MetricList()...)
	}
	return list
}

// Evaluate runs all bootstrap iterations of one model on the task and
// aggregates the per-iteration scores. An evaluation either completes
// every iteration or fails as a whole; there is no partial aggregate.
func (e *Evaluator) Evaluate(ctx context.Context, m config.Model) (*scoring.Result, error) {
	modelCfg, err := e.provider.Resolve(m.ID, m.Framework)
	if err != nil {
		return nil, err
	}
	if len(modelCfg.Labels) == 0 {
		modelCfg.Labels = e.taskCfg.ID2Label()
	}

	ds, err := dataset.LoadJSONL(e.taskCfg.Dataset)
	if err != nil {
		return nil, err
	}
	for _, col := range e.taskCfg.FeatureColumns {
		ds, err = ds.FilterEmpty(col)
		if err != nil {
			var colErr *dataset.UnknownColumnError
			if errors.As(err, &colErr) {
				return nil, &WrongFeatureColumnError{Column: colErr.Column}
			}
			return nil, err
		}
	}
	if e.evalCfg.Testing {
		ds = ds.Truncate(e.evalCfg.TestingDatasetLen())
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("task %q: no records left after filtering empty features", e.taskCfg.Name)
	}

	rng := rand.New(rand.NewSource(seedBase))
	numIter := e.evalCfg.NumIterations()

	switch modelCfg.Framework {
	case model.FrameworkONNX:
		return e.evaluateTensor(ctx, modelCfg, ds, rng, numIter)
	case model.FrameworkRule:
		return e.evaluateRule(ctx, modelCfg, ds, rng, numIter)
	default:
		return nil, &UnsupportedFrameworkError{Framework: string(modelCfg.Framework)}
	}
}

func (e *Evaluator) evaluateTensor(ctx context.Context, modelCfg model.Config, ds *dataset.Dataset, rng *rand.Rand, numIter int) (*scoring.Result, error) {
	tok, err := e.provider.Tokenizer(modelCfg)
	if err != nil {
		return nil, err
	}

	prepared, err := e.prepareBootstrap(ds, rng, numIter, model.FrameworkONNX, tok)
	if err != nil {
		return nil, err
	}
	modelCfg.PerToken = prepared[0].WordIdx != nil

	idx2label, err := e.outputMapping(modelCfg)
	if err != nil {
		return nil, err
	}

	raw := make([]scoring.Scores, 0, numIter)
	for idx := 0; idx < numIter; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.progressf("evaluating iteration %d/%d", idx+1, numIter)
		out := e.runTensorIteration(idx, modelCfg, prepared[idx], idx2label)
		if out.fatal != nil {
			return nil, out.fatal
		}
		if out.err != nil {
			return nil, &IterationError{Iteration: idx, Cause: out.err}
		}
		raw = append(raw, out.scores)
	}
	return scoring.Aggregate(e.MetricList(), raw), nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, modelCfg model.Config, ds *dataset.Dataset, rng *rand.Rand, numIter int) (*scoring.Result, error) {
	prepared, err := e.prepareBootstrap(ds, rng, numIter, model.FrameworkRule, nil)
	if err != nil {
		return nil, err
	}

	raw := make([]scoring.Scores, 0, numIter)
	for idx := 0; idx < numIter; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.progressf("evaluating iteration %d/%d", idx+1, numIter)
		out := e.runRuleIteration(idx, modelCfg, prepared[idx])
		if out.fatal != nil {
			return nil, out.fatal
		}
		if out.err != nil {
			return nil, &IterationError{Iteration: idx, Cause: out.err}
		}
		raw = append(raw, out.scores)
	}
	return scoring.Aggregate(e.MetricList(), raw), nil
}

// prepareBootstrap draws numIter resampled datasets from rng and
// preprocesses each one. Sampling and preprocessing happen up front so a
// bad dataset fails the evaluation before the first model load.
func (e *Evaluator) prepareBootstrap(ds *dataset.Dataset, rng *rand.Rand, numIter int, fw model.Framework, tok *model.Tokenizer) ([]*Prepared, error) {
	prepared := make([]*Prepared, numIter)
	for i := range prepared {
		p, err := e.spec.Preprocess(ds.Resample(rng), fw, tok)
		if err != nil {
			return nil, &PreprocessingError{Cause: err}
		}
		prepared[i] = p
	}
	return prepared, nil
}

// outputMapping maps each model output index to a task label id through
// the task's synonym table. A model label the task does not know means the
// model architecture does not match the task.
func (e *Evaluator) outputMapping(cfg model.Config) ([]int, error) {
	mapping := make([]int, len(cfg.Labels))
	for i, name := range cfg.Labels {
		id, ok := e.label2id[name]
		if !ok {
			return nil, fmt.Errorf("model label %q is not a label or synonym of task %q", name, e.taskCfg.Name)
		}
		mapping[i] = id
	}
	return mapping, nil
}

func (e *Evaluator) progressf(format string, args ...any) {
	if e.evalCfg.Progress {
		fmt.Printf("  "+format+"\n", args...)
	}
}
