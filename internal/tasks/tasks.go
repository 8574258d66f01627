// Package tasks holds the concrete task specifications the evaluator can
// run: one per supported supertask.
package tasks

import (
	"fmt"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/task"
)

const (
	SupertaskSequenceClassification = "sequence-classification"
	SupertaskTokenClassification    = "token-classification"
)

// ForConfig picks the task specification matching the configured
// supertask.
func ForConfig(cfg *config.Task) (task.Spec, error) {
	label2id, err := cfg.Label2ID()
	if err != nil {
		return nil, err
	}
	switch cfg.Supertask {
	case SupertaskSequenceClassification:
		return &sequenceClassification{cfg: cfg, label2id: label2id}, nil
	case SupertaskTokenClassification:
		return &tokenClassification{cfg: cfg, label2id: label2id}, nil
	default:
		return nil, fmt.Errorf("unsupported supertask %q", cfg.Supertask)
	}
}

// collate flattens a slice of encoded examples into one row-major batch.
func collate(prep *task.Prepared, start, end int) model.Batch {
	size := end - start
	seqLen := prep.SeqLen
	batch := model.Batch{
		InputIDs:      make([]int64, 0, size*seqLen),
		AttentionMask: make([]int64, 0, size*seqLen),
		Size:          int64(size),
		SeqLen:        int64(seqLen),
	}
	for i := start; i < end; i++ {
		batch.InputIDs = append(batch.InputIDs, prep.InputIDs[i]...)
		batch.AttentionMask = append(batch.AttentionMask, prep.AttentionMask[i]...)
	}
	return batch
}

func idsInRange(labelIDs [][]int, numLabels int) bool {
	for _, ids := range labelIDs {
		for _, id := range ids {
			if id < 0 || id >= numLabels {
				return false
			}
		}
	}
	return true
}
