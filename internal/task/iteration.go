package task

import (
	"fmt"

	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/scoring"
)

// outcome is the explicit result of one bootstrap iteration: scores on
// success, err for a failure of the iteration itself, fatal for
// configuration and environment errors that must abort the evaluation
// without being wrapped as an iteration failure.
type outcome struct {
	scores scoring.Scores
	err    error
	fatal  error
}

// pair is one aligned (predictions, references) list handed to a metric.
type pair struct {
	predictions []int
	references  []int
}

func (e *Evaluator) runTensorIteration(idx int, modelCfg model.Config, prep *Prepared, idx2label []int) outcome {
	seed := int64(seedBase + idx)

	// A fresh model per iteration: no state leaks between bootstrap
	// samples, and the seed makes any randomly initialised components
	// reproducible.
	m, err := e.provider.LoadTensor(modelCfg, seed)
	if err != nil {
		if isDeviceMisconfig(err) {
			return outcome{fatal: &DeviceFallbackError{Cause: err}}
		}
		return outcome{err: err}
	}
	defer m.Close()

	if e.evalCfg.TrackResources {
		e.tracker.Start()
	}

	numLabels := len(modelCfg.Labels)
	batchSize := e.evalCfg.EffectiveBatchSize()
	n := prep.Len()
	logits := make([][]float32, 0, n)
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		rows, err := m.Forward(e.spec.Collate(prep, start, end))
		if err != nil {
			if isDeviceMisconfig(err) {
				return outcome{fatal: &DeviceFallbackError{Cause: err}}
			}
			return outcome{err: err}
		}
		logits = append(logits, rows...)
	}

	if idx == 0 && !e.spec.TrainedForTask(logits, nil) {
		return outcome{fatal: &NotTrainedForTaskError{Task: e.taskCfg.Name, Framework: modelCfg.Framework}}
	}

	pairs := tensorPairs(prep, logits, numLabels, idx2label)
	scores, err := e.computeMetrics(pairs)
	if err != nil {
		return outcome{err: err}
	}

	if e.evalCfg.TrackResources {
		e.tracker.Stop()
		e.tracker.Record(scores, n)
	}
	return outcome{scores: scores}
}

func (e *Evaluator) runRuleIteration(idx int, modelCfg model.Config, prep *Prepared) outcome {
	m, err := e.provider.LoadRule(modelCfg)
	if err != nil {
		return outcome{err: err}
	}
	defer m.Close()

	if e.evalCfg.TrackResources {
		e.tracker.Start()
	}

	labelIDs, err := e.spec.RulePredictions(m, prep, e.evalCfg.EffectiveBatchSize())
	if err != nil {
		return outcome{err: err}
	}

	if idx == 0 && !e.spec.TrainedForTask(nil, labelIDs) {
		return outcome{fatal: &NotTrainedForTaskError{Task: e.taskCfg.Name, Framework: modelCfg.Framework}}
	}

	scores, err := e.computeMetrics(rulePairs(prep, labelIDs))
	if err != nil {
		return outcome{err: err}
	}

	if e.evalCfg.TrackResources {
		e.tracker.Stop()
		e.tracker.Record(scores, prep.Len())
	}
	return outcome{scores: scores}
}

// tensorPairs collapses logits into label ids and aligns them with the
// references. Sequence tasks take the argmax over each example's row;
// per-token tasks slice the row by position and keep only positions that
// map back to a source token.
func tensorPairs(prep *Prepared, logits [][]float32, numLabels int, idx2label []int) []pair {
	var predictions, references []int
	if prep.WordIdx == nil {
		for i, row := range logits {
			predictions = append(predictions, idx2label[argmax(row)])
			references = append(references, prep.Labels[i][0])
		}
	} else {
		for i, row := range logits {
			for pos, w := range prep.WordIdx[i] {
				if w < 0 || w >= len(prep.Labels[i]) {
					continue
				}
				slot := row[pos*numLabels : (pos+1)*numLabels]
				predictions = append(predictions, idx2label[argmax(slot)])
				references = append(references, prep.Labels[i][w])
			}
		}
	}
	return []pair{{predictions: predictions, references: references}}
}

func rulePairs(prep *Prepared, labelIDs [][]int) []pair {
	var predictions, references []int
	for i, ids := range labelIDs {
		for j, id := range ids {
			if j >= len(prep.Labels[i]) {
				break
			}
			predictions = append(predictions, id)
			references = append(references, prep.Labels[i][j])
		}
	}
	return []pair{{predictions: predictions, references: references}}
}

// computeMetrics scores each configured metric against its pair. A single
// pair is replicated so every metric receives an aligned pair of its own.
func (e *Evaluator) computeMetrics(pairs []pair) (scoring.Scores, error) {
	if len(pairs) == 1 && len(e.metrics) > 1 {
		replicated := make([]pair, len(e.metrics))
		for i := range replicated {
			replicated[i] = pairs[0]
		}
		pairs = replicated
	}
	scores := make(scoring.Scores, len(e.metrics))
	for i, m := range e.metrics {
		if i >= len(pairs) {
			break
		}
		value, err := m.Compute(pairs[i].predictions, pairs[i].references)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", m.Name, err)
		}
		scores[m.Name] = value
	}
	return scores, nil
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
