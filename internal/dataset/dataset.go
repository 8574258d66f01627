package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// Record is one example in a dataset. Which columns are populated depends on
// the task: sequence classification fills text/label, token classification
// fills tokens/labels.
type Record struct {
	Text   string   `json:"text,omitempty"`
	Tokens []string `json:"tokens,omitempty"`
	Label  string   `json:"label,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// Dataset is an ordered, immutable sequence of records. Filtering and
// resampling return new datasets and never mutate the receiver.
type Dataset struct {
	Records []Record
}

type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("column %q does not exist in the dataset schema", e.Column)
}

// LoadJSONL reads a dataset from a JSON-lines file, one record per line.
// Blank lines are skipped.
func LoadJSONL(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing dataset %s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	return &Dataset{Records: records}, nil
}

func (d *Dataset) Len() int {
	return len(d.Records)
}

// columnLen reports the length of a named column in a record, and whether
// the column is part of the schema at all.
func (r *Record) columnLen(column string) (int, bool) {
	switch column {
	case "text":
		return len(r.Text), true
	case "tokens":
		return len(r.Tokens), true
	case "label":
		return len(r.Label), true
	case "labels":
		return len(r.Labels), true
	}
	return 0, false
}

// knownColumn reports whether a column name is part of the record schema.
// The schema is static, so the check does not depend on the records.
func knownColumn(column string) bool {
	switch column {
	case "text", "tokens", "label", "labels":
		return true
	}
	return false
}

// FilterEmpty drops records whose named column is empty. Naming a column
// outside the schema is an error, surfaced before any iteration runs.
func (d *Dataset) FilterEmpty(column string) (*Dataset, error) {
	if !knownColumn(column) {
		return nil, &UnknownColumnError{Column: column}
	}
	kept := make([]Record, 0, len(d.Records))
	for _, rec := range d.Records {
		n, _ := rec.columnLen(column)
		if n > 0 {
			kept = append(kept, rec)
		}
	}
	return &Dataset{Records: kept}, nil
}

// Resample draws len(d) records uniformly with replacement. The draw order
// is fully determined by rng, so a fixed seed reproduces the same sample.
func (d *Dataset) Resample(rng *rand.Rand) *Dataset {
	n := len(d.Records)
	records := make([]Record, n)
	for i := range records {
		records[i] = d.Records[rng.Intn(n)]
	}
	return &Dataset{Records: records}
}

// Truncate returns the first n records, or the whole dataset if shorter.
func (d *Dataset) Truncate(n int) *Dataset {
	if n >= len(d.Records) {
		return d
	}
	return &Dataset{Records: d.Records[:n]}
}
