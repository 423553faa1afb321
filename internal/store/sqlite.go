package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trialscope/internal/enrich"
	"github.com/sells-group/trialscope/internal/model"
)

// SQLiteStore persists run history and the intervention-resolution memo
// using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ enrich.MemoStore = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	params        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	error         TEXT,
	storage_error TEXT,
	warnings      TEXT,
	files         TEXT,
	started_at    DATETIME NOT NULL,
	ended_at      DATETIME
);

CREATE TABLE IF NOT EXISTS resolutions (
	name        TEXT PRIMARY KEY,
	modality    TEXT NOT NULL,
	target      TEXT NOT NULL,
	source      TEXT NOT NULL,
	resolved_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts the full run record. Called on creation and on every
// status transition, so the row always mirrors the registry.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec model.RunRecord) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal params")
	}
	warningsJSON, err := json.Marshal(rec.Warnings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal warnings")
	}
	filesJSON, err := json.Marshal(rec.Files)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal files")
	}

	var endedAt any
	if rec.EndTime != nil {
		endedAt = rec.EndTime.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, params, status, error, storage_error, warnings, files, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			storage_error = excluded.storage_error,
			warnings = excluded.warnings,
			files = excluded.files,
			ended_at = excluded.ended_at`,
		rec.ID, string(paramsJSON), string(rec.Status),
		nullable(rec.Error), nullable(rec.StorageError),
		string(warningsJSON), string(filesJSON),
		rec.StartTime.UTC(), endedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", rec.ID)
}

// GetRun loads one run record.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, params, status, error, storage_error, warnings, files, started_at, ended_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns run history, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, params, status, error, storage_error, warnings, files, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// GetResolution implements enrich.MemoStore.
func (s *SQLiteStore) GetResolution(ctx context.Context, name string) (*enrich.Resolution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT modality, target, source FROM resolutions WHERE name = ?`,
		name,
	)

	var res enrich.Resolution
	var source string
	err := row.Scan(&res.Modality, &res.Target, &source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get resolution")
	}
	res.Source = model.ResolutionSource(source)
	return &res, nil
}

// PutResolution implements enrich.MemoStore.
func (s *SQLiteStore) PutResolution(ctx context.Context, name string, res enrich.Resolution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolutions (name, modality, target, source, resolved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			modality = excluded.modality,
			target = excluded.target,
			source = excluded.source,
			resolved_at = excluded.resolved_at`,
		name, res.Modality, res.Target, string(res.Source), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put resolution")
}

// helpers

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.RunRecord, error) {
	var rec model.RunRecord
	var paramsJSON, warningsJSON, filesJSON string
	var errMsg, storageErr sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(&rec.ID, &paramsJSON, &rec.Status, &errMsg, &storageErr,
		&warningsJSON, &filesJSON, &rec.StartTime, &endedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("sqlite: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
	}
	if err := json.Unmarshal([]byte(filesJSON), &rec.Files); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal files")
	}
	rec.Error = errMsg.String
	rec.StorageError = storageErr.String
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndTime = &t
	}
	return &rec, nil
}
