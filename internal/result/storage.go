package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// Path is where one task/model record lives inside a run directory.
func Path(runDir, task, model string) string {
	return filepath.Join(runDir, sanitize(task)+"__"+sanitize(model)+".json")
}

func Write(runDir string, rec *Record) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return os.WriteFile(Path(runDir, rec.Task, rec.Model), data, 0o644)
}

func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", path, err)
	}
	return &rec, nil
}

// Collect loads every record under a run directory, nested task first so
// callers can iterate the benchmark grid.
func Collect(runDir string) (map[string]map[string]*Record, error) {
	out := make(map[string]map[string]*Record)
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		rec, err := Read(path)
		if err != nil || rec.Task == "" {
			return nil
		}
		if out[rec.Task] == nil {
			out[rec.Task] = make(map[string]*Record)
		}
		out[rec.Task][rec.Model] = rec
		return nil
	})
	return out, err
}

// sanitize makes a task or model identifier safe as a file name component.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '@', ':', '\\':
			return '_'
		}
		return r
	}, s)
}
