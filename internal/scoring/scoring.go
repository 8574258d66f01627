package scoring

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/kvistgaard/evalbench/internal/metrics"
)

// Scores maps metric name to scalar value, one record per iteration.
type Scores map[string]float64

// Result pairs the untouched per-iteration records with the aggregate
// totals. Total holds a mean per metric plus a "<name>_se" standard error.
type Result struct {
	Raw   []Scores           `json:"raw"`
	Total map[string]float64 `json:"total"`
}

// Aggregate combines per-iteration score records. Standard error is the
// sample standard deviation over sqrt(n), and 0 when n <= 1. Raw records
// are carried through unmodified.
func Aggregate(metricList []metrics.Metric, raw []Scores) *Result {
	total := make(map[string]float64)
	for _, m := range metricList {
		values := make([]float64, 0, len(raw))
		for _, scores := range raw {
			if v, ok := scores[m.Name]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		total[m.Name] = stat.Mean(values, nil)
		se := 0.0
		if len(values) > 1 {
			se = stat.StdDev(values, nil) / math.Sqrt(float64(len(values)))
		}
		total[m.Name+"_se"] = se
	}
	return &Result{Raw: raw, Total: total}
}

// RenderLog produces the text form of an aggregate, for callers that asked
// for a log instead of the structured mapping. Both shapes come from the
// same Result.
func RenderLog(taskName, modelID string, metricList []metrics.Metric, res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scores for %s on %s:\n", modelID, taskName)
	for _, m := range metricList {
		mean, ok := res.Total[m.Name]
		if !ok {
			continue
		}
		name := m.PrettyName
		if name == "" {
			name = m.Name
		}
		fmt.Fprintf(&b, "  %s: %.2f%% ± %.2f%%\n", name, 100*mean, 100*res.Total[m.Name+"_se"])
	}
	return strings.TrimRight(b.String(), "\n")
}
