package tracker_test

import (
	"testing"
	"time"

	"github.com/kvistgaard/evalbench/internal/tracker"
)

func TestRecordNormalizesByExamples(t *testing.T) {
	tr := tracker.New()
	tr.Start()
	time.Sleep(15 * time.Millisecond)
	// allocate something measurable
	buf := make([]byte, 1<<20)
	_ = buf[len(buf)-1]
	tr.Stop()

	scores := map[string]float64{}
	tr.Record(scores, 10)

	latency, ok := scores[tracker.KeyLatency]
	if !ok {
		t.Fatal("latency key missing")
	}
	if latency <= 0 {
		t.Errorf("latency per example: got %f", latency)
	}
	if alloc := scores[tracker.KeyAlloc]; alloc <= 0 {
		t.Errorf("alloc per example: got %f", alloc)
	}
}

func TestRecordZeroExamples(t *testing.T) {
	tr := tracker.New()
	tr.Start()
	tr.Stop()

	scores := map[string]float64{}
	tr.Record(scores, 0)
	if len(scores) != 0 {
		t.Errorf("expected no keys recorded, got %v", scores)
	}
}

func TestMetricListKeys(t *testing.T) {
	list := tracker.MetricList()
	if len(list) != 2 {
		t.Fatalf("expected 2 tracker metrics, got %d", len(list))
	}
	if list[0].Name != tracker.KeyLatency || list[1].Name != tracker.KeyAlloc {
		t.Errorf("unexpected metric names: %q, %q", list[0].Name, list[1].Name)
	}
}
