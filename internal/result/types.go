package result

import (
	"time"

	"github.com/kvistgaard/evalbench/internal/scoring"
)

// Record is one finished evaluation of a model on a task. The embedded
// scores keep the per-iteration raw list and the aggregated totals exactly
// as the evaluator produced them.
type Record struct {
	Task      string    `json:"task"`
	Model     string    `json:"model"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
	*scoring.Result
}
