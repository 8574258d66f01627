package metrics

import (
	"fmt"
	"math"
)

// Metric scores an aligned pair of prediction and reference label ids.
// Compute is nil for entries that only name a score recorded elsewhere
// (resource tracking keys).
type Metric struct {
	Name       string
	PrettyName string
	Compute    func(predictions, references []int) (float64, error)
}

type UnknownMetricError struct {
	Name string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", e.Name)
}

var registry = map[string]Metric{
	"accuracy": {
		Name:       "accuracy",
		PrettyName: "Accuracy",
		Compute:    accuracy,
	},
	"macro_f1": {
		Name:       "macro_f1",
		PrettyName: "Macro-average F1-score",
		Compute:    macroF1,
	},
	"micro_f1": {
		Name:       "micro_f1",
		PrettyName: "Micro-average F1-score",
		Compute:    microF1,
	},
	"mcc": {
		Name:       "mcc",
		PrettyName: "Matthews correlation coefficient",
		Compute:    matthewsCorrCoef,
	},
}

// Resolve maps configured metric names to registry entries, preserving
// order. An unknown name is a configuration error.
func Resolve(names []string) ([]Metric, error) {
	resolved := make([]Metric, 0, len(names))
	for _, name := range names {
		m, ok := registry[name]
		if !ok {
			return nil, &UnknownMetricError{Name: name}
		}
		resolved = append(resolved, m)
	}
	return resolved, nil
}

func checkAligned(predictions, references []int) error {
	if len(predictions) != len(references) {
		return fmt.Errorf("got %d predictions for %d references", len(predictions), len(references))
	}
	if len(references) == 0 {
		return fmt.Errorf("no references to score against")
	}
	return nil
}

func accuracy(predictions, references []int) (float64, error) {
	if err := checkAligned(predictions, references); err != nil {
		return 0, err
	}
	correct := 0
	for i := range references {
		if predictions[i] == references[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(references)), nil
}

// classSet collects every class id seen in either slice.
func classSet(predictions, references []int) []int {
	seen := map[int]bool{}
	var classes []int
	for _, s := range [][]int{references, predictions} {
		for _, c := range s {
			if !seen[c] {
				seen[c] = true
				classes = append(classes, c)
			}
		}
	}
	return classes
}

func macroF1(predictions, references []int) (float64, error) {
	if err := checkAligned(predictions, references); err != nil {
		return 0, err
	}
	classes := classSet(predictions, references)
	var sum float64
	for _, c := range classes {
		var tp, fp, fn float64
		for i := range references {
			switch {
			case predictions[i] == c && references[i] == c:
				tp++
			case predictions[i] == c:
				fp++
			case references[i] == c:
				fn++
			}
		}
		if tp > 0 {
			precision := tp / (tp + fp)
			recall := tp / (tp + fn)
			sum += 2 * precision * recall / (precision + recall)
		}
	}
	return sum / float64(len(classes)), nil
}

func microF1(predictions, references []int) (float64, error) {
	if err := checkAligned(predictions, references); err != nil {
		return 0, err
	}
	var tp, fp, fn float64
	for _, c := range classSet(predictions, references) {
		for i := range references {
			switch {
			case predictions[i] == c && references[i] == c:
				tp++
			case predictions[i] == c:
				fp++
			case references[i] == c:
				fn++
			}
		}
	}
	if tp == 0 {
		return 0, nil
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	return 2 * precision * recall / (precision + recall), nil
}

// matthewsCorrCoef implements the multiclass MCC from the confusion matrix:
// (c*s - Σ p_k t_k) / sqrt((s² - Σ p_k²)(s² - Σ t_k²)), 0 when degenerate.
func matthewsCorrCoef(predictions, references []int) (float64, error) {
	if err := checkAligned(predictions, references); err != nil {
		return 0, err
	}
	s := float64(len(references))
	var c float64
	predTotals := map[int]float64{}
	refTotals := map[int]float64{}
	for i := range references {
		if predictions[i] == references[i] {
			c++
		}
		predTotals[predictions[i]]++
		refTotals[references[i]]++
	}
	var dot, predSq, refSq float64
	for k, p := range predTotals {
		dot += p * refTotals[k]
		predSq += p * p
	}
	for _, t := range refTotals {
		refSq += t * t
	}
	denom := math.Sqrt((s*s - predSq) * (s*s - refSq))
	if denom == 0 {
		return 0, nil
	}
	return (c*s - dot) / denom, nil
}
