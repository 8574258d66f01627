package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/kvistgaard/evalbench/internal/result"
)

// Row is one task/model cell of the benchmark grid, flattened for output.
type Row struct {
	Task   string             `json:"task"`
	Model  string             `json:"model"`
	Scores map[string]float64 `json:"scores"`
}

// Generate renders collected evaluation records in the requested format.
func Generate(records map[string]map[string]*result.Record, format string, w io.Writer) error {
	rows := flatten(records)
	switch format {
	case "markdown":
		return writeMarkdown(rows, w)
	case "json":
		return writeJSON(rows, w)
	default:
		return writeTable(rows, w)
	}
}

func flatten(records map[string]map[string]*result.Record) []Row {
	var rows []Row
	for task, byModel := range records {
		for model, rec := range byModel {
			rows = append(rows, Row{Task: task, Model: model, Scores: rec.Total})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Task != rows[j].Task {
			return rows[i].Task < rows[j].Task
		}
		return rows[i].Model < rows[j].Model
	})
	return rows
}

// metricNames collects the mean-score names present across all rows,
// sorted, with the "_se" companions left out of the column set.
func metricNames(rows []Row) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		for name := range r.Scores {
			if strings.HasSuffix(name, "_se") {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cell(r Row, name string) string {
	mean, ok := r.Scores[name]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2f%% ± %.2f%%", 100*mean, 100*r.Scores[name+"_se"])
}

func writeTable(rows []Row, w io.Writer) error {
	names := metricNames(rows)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := append([]string{"TASK", "MODEL"}, upper(names)...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range rows {
		fields := []string{r.Task, r.Model}
		for _, name := range names {
			fields = append(fields, cell(r, name))
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(rows []Row, w io.Writer) error {
	names := metricNames(rows)
	fmt.Fprintf(w, "| Task | Model | %s |\n", strings.Join(names, " | "))
	fmt.Fprintf(w, "|---|---|%s\n", strings.Repeat("---|", len(names)))
	for _, r := range rows {
		fields := []string{r.Task, r.Model}
		for _, name := range names {
			fields = append(fields, cell(r, name))
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(fields, " | "))
	}
	return nil
}

func writeJSON(rows []Row, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = strings.ToUpper(name)
	}
	return out
}
