package model

import (
	"strings"
)

// Framework is the execution family of a model runtime. Tensor models run
// through onnxruntime; rule models are lexicon pipelines evaluated directly
// on the raw records.
type Framework string

const (
	FrameworkONNX Framework = "onnx"
	FrameworkRule Framework = "rule"
)

// Ref is a parsed model identifier. The revision is the part after the last
// '@', as in "models/sentiment@v1.0.0"; it may be a tag or any revision
// string the hub understands.
type Ref struct {
	Path     string
	Revision string
}

func ParseRef(id string) Ref {
	if i := strings.LastIndex(id, "@"); i > 0 {
		return Ref{Path: id[:i], Revision: id[i+1:]}
	}
	return Ref{Path: id, Revision: "main"}
}

func (r Ref) String() string {
	if r.Revision == "main" {
		return r.Path
	}
	return r.Path + "@" + r.Revision
}

// Config is the resolved form of a model identifier: where its files live,
// which execution family it belongs to, and its output label names (empty
// when the model directory carries no labels metadata).
type Config struct {
	ID        string
	Ref       Ref
	Framework Framework
	Dir       string
	Labels    []string
	// PerToken marks models that emit one prediction per input position
	// rather than one per sequence. Set by the evaluator from the task's
	// supertask before loading.
	PerToken bool
}

// Batch is a fixed-size slice of encoded examples, flattened row-major for
// the tensor runtime.
type Batch struct {
	InputIDs      []int64
	AttentionMask []int64
	Size          int64
	SeqLen        int64
}

// TensorModel runs batched forward inference. Forward returns one row of
// logits per example, in batch order: NumLabels values per row for sequence
// models, SeqLen*NumLabels for per-token models. Close must be called on
// every exit path to release runtime resources.
type TensorModel interface {
	Forward(batch Batch) ([][]float32, error)
	Close() error
}

// RuleModel predicts label names directly from raw inputs.
type RuleModel interface {
	PredictText(texts []string, batchSize int) ([]string, error)
	PredictTokens(seqs [][]string, batchSize int) ([][]string, error)
	Close() error
}

// Provider resolves model identifiers and instantiates models. LoadTensor
// takes the per-iteration seed so implementations with randomly initialised
// components stay reproducible across reruns; it must return a fresh
// instance on every call, never a shared one.
type Provider interface {
	Resolve(id, framework string) (Config, error)
	Tokenizer(cfg Config) (*Tokenizer, error)
	LoadTensor(cfg Config, seed int64) (TensorModel, error)
	LoadRule(cfg Config) (RuleModel, error)
}
