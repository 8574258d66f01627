package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultIterations = 10
	testingIterations = 2
	defaultBatchSize  = 32
	testingBatchSize  = 2
	testingDatasetLen = 4
)

type Config struct {
	Evaluation Evaluation `yaml:"evaluation"`
	Tasks      []Task     `yaml:"tasks"`
	Models     []Model    `yaml:"models"`
}

// Evaluation holds process-wide run parameters. It is created once per run
// and read-only during evaluation.
type Evaluation struct {
	CacheDir       string  `yaml:"cache_dir"`
	HubURL         string  `yaml:"hub_url"`
	AuthToken      string  `yaml:"auth_token"`
	Device         string  `yaml:"device"`
	Progress       bool    `yaml:"progress"`
	Testing        bool    `yaml:"testing"`
	TrackResources bool    `yaml:"track_resources"`
	LogOnly        bool    `yaml:"log_only"`
	Iterations     int     `yaml:"iterations"`
	BatchSize      int     `yaml:"batch_size"`
	Results        Results `yaml:"results"`
}

type Results struct {
	Dir      string `yaml:"dir"`
	Database string `yaml:"database"`
}

// Task describes one evaluation dataset and how models are scored on it.
// Immutable after Load.
type Task struct {
	Name           string   `yaml:"name"`
	PrettyName     string   `yaml:"pretty_name"`
	Supertask      string   `yaml:"supertask"`
	Dataset        string   `yaml:"dataset"`
	FeatureColumns []string `yaml:"feature_columns"`
	LabelColumn    string   `yaml:"label_column"`
	Metrics        []string `yaml:"metrics"`
	Labels         []Label  `yaml:"labels"`
}

type Label struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

type Model struct {
	ID        string `yaml:"id"`
	Framework string `yaml:"framework"`
}

// NumIterations is the bootstrap iteration count: 2 in testing mode so unit
// tests stay fast, otherwise the configured count (default 10).
func (e *Evaluation) NumIterations() int {
	if e.Testing {
		return testingIterations
	}
	if e.Iterations > 0 {
		return e.Iterations
	}
	return defaultIterations
}

func (e *Evaluation) EffectiveBatchSize() int {
	if e.Testing {
		return testingBatchSize
	}
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return defaultBatchSize
}

// TestingDatasetLen is how many records the dataset is truncated to when
// testing mode is on.
func (e *Evaluation) TestingDatasetLen() int {
	return testingDatasetLen
}

func (t *Task) ID2Label() []string {
	ids := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		ids[i] = l.Name
	}
	return ids
}

// Label2ID maps every label name and synonym to its label index. A synonym
// appearing under two distinct labels is a configuration error.
func (t *Task) Label2ID() (map[string]int, error) {
	m := make(map[string]int)
	for idx, l := range t.Labels {
		for _, syn := range append([]string{l.Name}, l.Synonyms...) {
			if prev, ok := m[syn]; ok && prev != idx {
				return nil, fmt.Errorf("label synonym %q maps to both %q and %q", syn, t.Labels[prev].Name, l.Name)
			}
			m[syn] = idx
		}
	}
	return m, nil
}

func (t *Task) NumLabels() int {
	return len(t.Labels)
}

func (t *Task) DisplayName() string {
	if t.PrettyName != "" {
		return t.PrettyName
	}
	return t.Name
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Tasks) == 0 {
		return fmt.Errorf("no tasks defined")
	}
	for i := range cfg.Tasks {
		t := &cfg.Tasks[i]
		if t.Name == "" {
			return fmt.Errorf("task %d: name is required", i)
		}
		if t.Supertask == "" {
			return fmt.Errorf("task %q: supertask is required", t.Name)
		}
		if t.Dataset == "" {
			return fmt.Errorf("task %q: dataset is required", t.Name)
		}
		if len(t.FeatureColumns) == 0 {
			return fmt.Errorf("task %q: at least one feature column is required", t.Name)
		}
		if t.LabelColumn == "" {
			return fmt.Errorf("task %q: label_column is required", t.Name)
		}
		if len(t.Metrics) == 0 {
			return fmt.Errorf("task %q: at least one metric is required", t.Name)
		}
		if len(t.Labels) == 0 {
			return fmt.Errorf("task %q: at least one label is required", t.Name)
		}
		if _, err := t.Label2ID(); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if m.ID == "" {
			return fmt.Errorf("model %d: id is required", i)
		}
		if m.Framework == "" {
			m.Framework = "onnx"
		}
	}
	if cfg.Evaluation.CacheDir == "" {
		cfg.Evaluation.CacheDir = ".evalbench_cache"
	}
	if cfg.Evaluation.Results.Dir == "" {
		cfg.Evaluation.Results.Dir = "results"
	}
	if cfg.Evaluation.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative")
	}
	return nil
}
