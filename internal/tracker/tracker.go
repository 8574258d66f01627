package tracker

import (
	"runtime"
	"time"

	"github.com/kvistgaard/evalbench/internal/metrics"
)

// Fixed score keys for resource usage, recorded per iteration and
// normalized by prepared dataset size.
const (
	KeyLatency = "inference_ms_per_example"
	KeyAlloc   = "alloc_kb_per_example"
)

// MetricList names the tracker scores for aggregation and log rendering.
// These carry no Compute function; the evaluator injects the values.
func MetricList() []metrics.Metric {
	return []metrics.Metric{
		{Name: KeyLatency, PrettyName: "Inference latency (ms/example)"},
		{Name: KeyAlloc, PrettyName: "Allocations (KiB/example)"},
	}
}

// Tracker measures wall-clock time and heap allocation across one inference
// pass. It is owned exclusively by the currently running iteration; Start
// and Stop are never called concurrently.
type Tracker struct {
	startTime  time.Time
	startAlloc uint64
	elapsed    time.Duration
	allocated  uint64
}

func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Start() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	t.startAlloc = ms.TotalAlloc
	t.startTime = time.Now()
}

func (t *Tracker) Stop() {
	t.elapsed = time.Since(t.startTime)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	t.allocated = ms.TotalAlloc - t.startAlloc
}

// Record writes the measured usage into a score record, normalized by the
// number of examples covered by the measurement.
func (t *Tracker) Record(scores map[string]float64, numExamples int) {
	if numExamples <= 0 {
		return
	}
	n := float64(numExamples)
	scores[KeyLatency] = float64(t.elapsed.Milliseconds()) / n
	scores[KeyAlloc] = float64(t.allocated) / 1024 / n
}
