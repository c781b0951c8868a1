// Package store persists run checkpoints and the terminology glossary in a
// local SQLite database. Every finalized row of a run is recorded as batches
// complete, so an interrupted run can be resumed with --resume and already
// translated rows are not re-sent to the backend.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/google/uuid"
)

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies the
// schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_file TEXT NOT NULL,
		output_file TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT DEFAULT 'running',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- run_rows stores per-row finalized results for resume support
	CREATE TABLE IF NOT EXISTS run_rows (
		run_id TEXT NOT NULL,
		row_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		target TEXT NOT NULL,
		comments TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, row_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- glossary stores user-defined terminology for consistent translation
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		source_term TEXT NOT NULL UNIQUE,
		target_term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_rows_run ON run_rows(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Run is a checkpoint record for one document run.
type Run struct {
	ID         string
	InputFile  string
	OutputFile string
	Strategy   string
	Status     string
	CreatedAt  time.Time
}

// CreateRun registers a new run checkpoint and returns its id.
func (s *Store) CreateRun(ctx context.Context, inputFile, outputFile, strategyName string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_file, output_file, strategy) VALUES (?, ?, ?, ?)`,
		id, inputFile, outputFile, strategyName)
	return id, err
}

// GetRun retrieves a run checkpoint by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_file, output_file, strategy, status, created_at FROM runs WHERE id = ?`,
		runID).Scan(&r.ID, &r.InputFile, &r.OutputFile, &r.Strategy, &r.Status, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns all run checkpoints, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_file, output_file, strategy, status, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.InputFile, &r.OutputFile, &r.Strategy, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RowRecord is one finalized row stored under a run checkpoint.
type RowRecord struct {
	RowID    string
	Position int
	Target   string
	Comments string
}

// SaveRow persists one finalized row under the run. Re-saving a row id
// replaces the previous record, which keeps resumed runs idempotent.
func (s *Store) SaveRow(ctx context.Context, runID, rowID string, position int, target, comments string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_rows (run_id, row_id, position, target, comments) VALUES (?, ?, ?, ?, ?)`,
		runID, rowID, position, target, comments)
	return err
}

// Rows returns all finalized rows of a run keyed by row id.
func (s *Store) Rows(ctx context.Context, runID string) (map[string]RowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, position, target, comments FROM run_rows WHERE run_id = ?`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]RowRecord)
	for rows.Next() {
		var rec RowRecord
		var comments sql.NullString
		if err := rows.Scan(&rec.RowID, &rec.Position, &rec.Target, &comments); err != nil {
			return nil, err
		}
		rec.Comments = comments.String
		records[rec.RowID] = rec
	}
	return records, rows.Err()
}

// CompleteRun marks a run checkpoint as completed.
func (s *Store) CompleteRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = 'completed', updated_at = ? WHERE id = ?`,
		time.Now(), runID)
	return err
}

// DeleteRun removes a run checkpoint and its rows.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_rows WHERE run_id = ?`, runID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	return err
}

// ClearRuns removes all run checkpoints and returns the number deleted.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_rows`); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GlossaryEntry is a row in the glossary table.
type GlossaryEntry struct {
	ID         string
	SourceTerm string
	TargetTerm string
	CreatedAt  time.Time
}

// AddGlossaryTerm inserts or replaces a glossary entry.
func (s *Store) AddGlossaryTerm(ctx context.Context, sourceTerm, targetTerm string) error {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, source_term, target_term) VALUES (?, ?, ?)`,
		id, normalizeTerm(sourceTerm), strings.TrimSpace(targetTerm))
	return err
}

// GlossaryTerms returns all stored terms as a source-term to target-term
// map, ready to merge into a run glossary.
func (s *Store) GlossaryTerms(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_term, target_term FROM glossary`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// ListGlossaryTerms returns all glossary entries ordered by source term.
func (s *Store) ListGlossaryTerms(ctx context.Context) ([]GlossaryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_term, target_term, created_at FROM glossary ORDER BY source_term`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by id.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeTerm trims whitespace and applies Unicode NFC normalization so
// term lookups are insensitive to composition differences.
func normalizeTerm(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
