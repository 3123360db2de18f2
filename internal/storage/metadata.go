package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// MetadataDB stores run records and per-section checkpoints in SQLite
type MetadataDB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	source_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	sections INTEGER NOT NULL DEFAULT 0,
	duration REAL NOT NULL DEFAULT 0,
	word_count INTEGER NOT NULL DEFAULT 0,
	gdrive_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

CREATE TABLE IF NOT EXISTS chunk_checkpoints (
	run_key TEXT NOT NULL,
	section_index INTEGER NOT NULL,
	section_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_key, section_index)
);
`

// NewMetadataDB opens (or creates) the database at dbPath
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection serializes writers from parallel sections and keeps
	// :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveRun inserts or updates a run record
func (mdb *MetadataDB) SaveRun(ctx context.Context, rec types.RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var finished sql.NullTime
	if !rec.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: rec.FinishedAt, Valid: true}
	}

	query := `
	INSERT INTO runs (run_id, kind, source_path, output_path, status, error, sections, duration, word_count, gdrive_url, created_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		output_path = excluded.output_path,
		status = excluded.status,
		error = excluded.error,
		sections = excluded.sections,
		duration = excluded.duration,
		word_count = excluded.word_count,
		gdrive_url = excluded.gdrive_url,
		finished_at = excluded.finished_at
	`

	_, err := mdb.db.ExecContext(ctx, query,
		rec.RunID, string(rec.Kind), rec.SourcePath, rec.OutputPath, rec.Status, rec.Error,
		rec.Sections, rec.Duration, rec.WordCount, rec.DriveURL, rec.CreatedAt, finished)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `run_id, kind, source_path, output_path, status, error, sections, duration, word_count, gdrive_url, created_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (types.RunRecord, error) {
	var (
		rec      types.RunRecord
		kind     string
		finished sql.NullTime
	)
	err := row.Scan(&rec.RunID, &kind, &rec.SourcePath, &rec.OutputPath, &rec.Status, &rec.Error,
		&rec.Sections, &rec.Duration, &rec.WordCount, &rec.DriveURL, &rec.CreatedAt, &finished)
	if err != nil {
		return types.RunRecord{}, err
	}
	rec.Kind = types.SourceKind(kind)
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	return rec, nil
}

// GetRun retrieves a run by ID
func (mdb *MetadataDB) GetRun(ctx context.Context, runID string) (types.RunRecord, error) {
	row := mdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first
func (mdb *MetadataDB) ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := mdb.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []types.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// SaveSection checkpoints one completed section under runKey
func (mdb *MetadataDB) SaveSection(ctx context.Context, runKey string, section types.Section) error {
	data, err := json.Marshal(section)
	if err != nil {
		return fmt.Errorf("failed to encode section: %w", err)
	}
	_, err = mdb.db.ExecContext(ctx, `
	INSERT INTO chunk_checkpoints (run_key, section_index, section_json, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(run_key, section_index) DO UPDATE SET section_json = excluded.section_json, created_at = excluded.created_at
	`, runKey, section.Index, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadSections returns every checkpointed section for runKey, keyed by index
func (mdb *MetadataDB) LoadSections(ctx context.Context, runKey string) (map[int]types.Section, error) {
	rows, err := mdb.db.QueryContext(ctx, `SELECT section_index, section_json FROM chunk_checkpoints WHERE run_key = ?`, runKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	sections := make(map[int]types.Section)
	for rows.Next() {
		var (
			index int
			data  string
		)
		if err := rows.Scan(&index, &data); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		var s types.Section
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint %d: %w", index, err)
		}
		sections[index] = s
	}
	return sections, rows.Err()
}

// ClearSections drops the checkpoints of a finished run
func (mdb *MetadataDB) ClearSections(ctx context.Context, runKey string) error {
	if _, err := mdb.db.ExecContext(ctx, `DELETE FROM chunk_checkpoints WHERE run_key = ?`, runKey); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
