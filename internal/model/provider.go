package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kvistgaard/evalbench/internal/config"
)

const defaultMaxSeqLen = 128

// HubProvider resolves model identifiers against the local filesystem first
// and falls back to downloading from the configured hub into the cache
// directory. Cache fills are serialised per model, so concurrent
// evaluations of the same model trigger one fetch and never observe a
// half-downloaded directory.
type HubProvider struct {
	eval *config.Evaluation

	mu       sync.Mutex
	fetching map[string]*sync.Mutex
}

func NewProvider(eval *config.Evaluation) *HubProvider {
	return &HubProvider{eval: eval, fetching: make(map[string]*sync.Mutex)}
}

func (p *HubProvider) refLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.fetching[key]
	if !ok {
		lock = &sync.Mutex{}
		p.fetching[key] = lock
	}
	return lock
}

func (p *HubProvider) Resolve(id, framework string) (Config, error) {
	ref := ParseRef(id)

	dir := ref.Path
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		if p.eval.HubURL == "" {
			return Config{}, fmt.Errorf("model directory %s not found and no hub_url configured", ref.Path)
		}
		key := cacheKey(ref)
		dir = filepath.Join(p.eval.CacheDir, key)

		lock := p.refLock(key)
		lock.Lock()
		_, statErr := os.Stat(dir)
		if statErr != nil {
			statErr = fetchModel(p.eval.HubURL, ref, dir, p.eval.AuthToken)
		}
		lock.Unlock()
		if statErr != nil {
			return Config{}, statErr
		}
	}

	labels, err := loadLabels(filepath.Join(dir, "labels.json"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		ID:        id,
		Ref:       ref,
		Framework: Framework(framework),
		Dir:       dir,
		Labels:    labels,
	}, nil
}

func (p *HubProvider) Tokenizer(cfg Config) (*Tokenizer, error) {
	return LoadTokenizer(filepath.Join(cfg.Dir, "vocab.txt"), defaultMaxSeqLen)
}

// LoadTensor opens a fresh inference session. ONNX weights are fully
// serialized, so the seed is unused here; it is part of the contract for
// implementations that initialise components randomly at load time.
func (p *HubProvider) LoadTensor(cfg Config, seed int64) (TensorModel, error) {
	_ = seed
	return newONNXModel(filepath.Join(cfg.Dir, "model.onnx"), len(cfg.Labels), cfg.PerToken, p.eval.Device)
}

func (p *HubProvider) LoadRule(cfg Config) (RuleModel, error) {
	return loadRulePipeline(filepath.Join(cfg.Dir, "rules.json"))
}

// loadLabels reads the optional labels.json ({"labels": [...]}) giving the
// model's output index to label name mapping.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc.Labels, nil
}

func cacheKey(ref Ref) string {
	return strings.NewReplacer("/", "_", "@", "_", ":", "_").Replace(ref.String())
}
