package tasks

import (
	"fmt"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/dataset"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/task"
)

// sequenceClassification assigns one label per text, e.g. sentiment.
type sequenceClassification struct {
	cfg      *config.Task
	label2id map[string]int
}

func (t *sequenceClassification) Preprocess(ds *dataset.Dataset, fw model.Framework, tok *model.Tokenizer) (*task.Prepared, error) {
	prep := &task.Prepared{}
	if fw == model.FrameworkONNX {
		if tok == nil {
			return nil, fmt.Errorf("tensor preprocessing requires a tokenizer")
		}
		prep.SeqLen = tok.MaxLen()
	}
	for _, rec := range ds.Records {
		labelID, ok := t.label2id[rec.Label]
		if !ok {
			return nil, fmt.Errorf("record label %q is not a label or synonym of task %q", rec.Label, t.cfg.Name)
		}
		prep.Labels = append(prep.Labels, []int{labelID})

		switch fw {
		case model.FrameworkONNX:
			ids, mask := tok.Encode(rec.Text)
			prep.InputIDs = append(prep.InputIDs, ids)
			prep.AttentionMask = append(prep.AttentionMask, mask)
		case model.FrameworkRule:
			prep.Texts = append(prep.Texts, rec.Text)
		default:
			return nil, fmt.Errorf("no preprocessing for framework %q", fw)
		}
	}
	return prep, nil
}

func (t *sequenceClassification) RulePredictions(m model.RuleModel, prep *task.Prepared, batchSize int) ([][]int, error) {
	names, err := m.PredictText(prep.Texts, batchSize)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(names))
	for i, name := range names {
		id, ok := t.label2id[name]
		if !ok {
			return nil, fmt.Errorf("model predicted %q, which is not a label or synonym of task %q", name, t.cfg.Name)
		}
		out[i] = []int{id}
	}
	return out, nil
}

func (t *sequenceClassification) Collate(prep *task.Prepared, start, end int) model.Batch {
	return collate(prep, start, end)
}

// TrainedForTask expects one logit per label on the tensor path, and one
// in-range label id per example on the rule path.
func (t *sequenceClassification) TrainedForTask(logits [][]float32, labelIDs [][]int) bool {
	if logits != nil {
		return len(logits) > 0 && len(logits[0]) == t.cfg.NumLabels()
	}
	if len(labelIDs) == 0 {
		return false
	}
	for _, ids := range labelIDs {
		if len(ids) != 1 {
			return false
		}
	}
	return idsInRange(labelIDs, t.cfg.NumLabels())
}
