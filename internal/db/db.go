// Package db persists pipeline run metadata in sqlite: the parameters of each
// run, per-cluster summaries and the paths of written artifacts. The registry
// is optional; the pipeline runs fully in memory without it.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the registry database and applies the connection
// pragmas. Schema creation is handled by MigrateUp.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &DB{conn}, nil
}

// Run is one pipeline execution.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Params     string    `json:"params"` // JSON-encoded pipeline config
	RowCount   int       `json:"row_count"`
}

// ClusterSummary is a per-coarse-cluster digest of one run.
type ClusterSummary struct {
	RunID     string             `json:"run_id"`
	Label     string             `json:"label"`
	CellCount int                `json:"cell_count"`
	Medians   map[string]float64 `json:"medians"` // marker -> median intensity
}

// Artifact is a file written by a run (csv, html, png).
type Artifact struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`
	Path  string `json:"path"`
}

// RecordRun inserts a completed run.
func (db *DB) RecordRun(run *Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, params, row_count) VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Params,
		run.RowCount,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	var run Run
	var started, finished string
	err := db.QueryRow(
		`SELECT run_id, started_at, finished_at, params, row_count FROM runs WHERE run_id = ?`, id,
	).Scan(&run.ID, &started, &finished, &run.Params, &run.RowCount)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}

// RecordClusterSummaries inserts the per-cluster digests for a run.
func (db *DB) RecordClusterSummaries(summaries []ClusterSummary) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO cluster_summaries (run_id, label, cell_count, medians) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range summaries {
		medians, err := json.Marshal(s.Medians)
		if err != nil {
			return fmt.Errorf("encode medians for %s: %w", s.Label, err)
		}
		if _, err := stmt.Exec(s.RunID, s.Label, s.CellCount, string(medians)); err != nil {
			return fmt.Errorf("record summary %s: %w", s.Label, err)
		}
	}
	return tx.Commit()
}

// ListClusterSummaries returns the digests of a run ordered by label.
func (db *DB) ListClusterSummaries(runID string) ([]ClusterSummary, error) {
	rows, err := db.Query(
		`SELECT run_id, label, cell_count, medians FROM cluster_summaries WHERE run_id = ? ORDER BY label`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []ClusterSummary
	for rows.Next() {
		var s ClusterSummary
		var medians string
		if err := rows.Scan(&s.RunID, &s.Label, &s.CellCount, &medians); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if err := json.Unmarshal([]byte(medians), &s.Medians); err != nil {
			return nil, fmt.Errorf("decode medians: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordArtifact registers a file written by a run.
func (db *DB) RecordArtifact(a Artifact) error {
	_, err := db.Exec(`INSERT INTO artifacts (run_id, kind, path) VALUES (?, ?, ?)`, a.RunID, a.Kind, a.Path)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns a run's artifacts ordered by kind.
func (db *DB) ListArtifacts(runID string) ([]Artifact, error) {
	rows, err := db.Query(`SELECT run_id, kind, path FROM artifacts WHERE run_id = ? ORDER BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Kind, &a.Path); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
