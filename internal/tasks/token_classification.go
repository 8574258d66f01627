package tasks

import (
	"fmt"

	"github.com/kvistgaard/evalbench/internal/config"
	"github.com/kvistgaard/evalbench/internal/dataset"
	"github.com/kvistgaard/evalbench/internal/model"
	"github.com/kvistgaard/evalbench/internal/task"
)

// tokenClassification assigns one label per token, e.g. named entity
// recognition.
type tokenClassification struct {
	cfg      *config.Task
	label2id map[string]int
}

func (t *tokenClassification) Preprocess(ds *dataset.Dataset, fw model.Framework, tok *model.Tokenizer) (*task.Prepared, error) {
	prep := &task.Prepared{}
	if fw == model.FrameworkONNX {
		if tok == nil {
			return nil, fmt.Errorf("tensor preprocessing requires a tokenizer")
		}
		prep.SeqLen = tok.MaxLen()
	}
	for _, rec := range ds.Records {
		if len(rec.Labels) != len(rec.Tokens) {
			return nil, fmt.Errorf("record has %d labels for %d tokens", len(rec.Labels), len(rec.Tokens))
		}
		labelSeq := make([]int, len(rec.Labels))
		for i, name := range rec.Labels {
			id, ok := t.label2id[name]
			if !ok {
				return nil, fmt.Errorf("record label %q is not a label or synonym of task %q", name, t.cfg.Name)
			}
			labelSeq[i] = id
		}
		prep.Labels = append(prep.Labels, labelSeq)

		switch fw {
		case model.FrameworkONNX:
			ids, mask, wordIdx := tok.EncodeTokens(rec.Tokens)
			prep.InputIDs = append(prep.InputIDs, ids)
			prep.AttentionMask = append(prep.AttentionMask, mask)
			prep.WordIdx = append(prep.WordIdx, wordIdx)
		case model.FrameworkRule:
			prep.TokenSeqs = append(prep.TokenSeqs, rec.Tokens)
		default:
			return nil, fmt.Errorf("no preprocessing for framework %q", fw)
		}
	}
	return prep, nil
}

func (t *tokenClassification) RulePredictions(m model.RuleModel, prep *task.Prepared, batchSize int) ([][]int, error) {
	nameSeqs, err := m.PredictTokens(prep.TokenSeqs, batchSize)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(nameSeqs))
	for i, names := range nameSeqs {
		ids := make([]int, len(names))
		for j, name := range names {
			id, ok := t.label2id[name]
			if !ok {
				return nil, fmt.Errorf("model predicted %q, which is not a label or synonym of task %q", name, t.cfg.Name)
			}
			ids[j] = id
		}
		out[i] = ids
	}
	return out, nil
}

func (t *tokenClassification) Collate(prep *task.Prepared, start, end int) model.Batch {
	return collate(prep, start, end)
}

// TrainedForTask expects per-position logits on the tensor path: a row
// spanning several positions, each numLabels wide. On the rule path every
// token needs an in-range label id.
func (t *tokenClassification) TrainedForTask(logits [][]float32, labelIDs [][]int) bool {
	numLabels := t.cfg.NumLabels()
	if logits != nil {
		if len(logits) == 0 {
			return false
		}
		width := len(logits[0])
		return width > numLabels && width%numLabels == 0
	}
	if len(labelIDs) == 0 {
		return false
	}
	return idsInRange(labelIDs, numLabels)
}
