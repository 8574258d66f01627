package result

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kvistgaard/evalbench/internal/scoring"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	task        TEXT NOT NULL,
	model       TEXT NOT NULL,
	framework   TEXT,
	raw_json    TEXT NOT NULL,
	total_json  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Store keeps evaluation results in SQLite so scores survive across runs
// and can be queried without walking run directories.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a new run and returns its id.
func (s *Store) BeginRun() (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordResult persists one evaluation record under a run.
func (s *Store) RecordResult(runID string, rec *Record) error {
	rawJSON, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw scores: %w", err)
	}
	totalJSON, err := json.Marshal(rec.Total)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO results (run_id, task, model, framework, raw_json, total_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Task, rec.Model, rec.Framework,
		string(rawJSON), string(totalJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return tx.Commit()
}

// RunResults reads every record stored under a run, in insertion order.
func (s *Store) RunResults(runID string) ([]*Record, error) {
	rows, err := s.db.Query(
		`SELECT task, model, framework, raw_json, total_json, created_at
		 FROM results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{Result: &scoring.Result{}}
		var rawJSON, totalJSON, createdStr string
		if err := rows.Scan(&rec.Task, &rec.Model, &rec.Framework, &rawJSON, &totalJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(rawJSON), &rec.Raw); err != nil {
			return nil, fmt.Errorf("unmarshal raw scores: %w", err)
		}
		if err := json.Unmarshal([]byte(totalJSON), &rec.Total); err != nil {
			return nil, fmt.Errorf("unmarshal totals: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestRun returns the id of the most recently started run.
func (s *Store) LatestRun() (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs recorded")
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}
