package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sightglass/evidence-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     TEXT NOT NULL,
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id  TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL REFERENCES analyses(id),
	session_id  TEXT NOT NULL,
	document    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS spans (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time   DATETIME NOT NULL,
	document   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_summaries_analysis_id ON summaries(analysis_id);
CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time);
CREATE INDEX IF NOT EXISTS idx_spans_end_time ON spans(end_time);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, params model.AnalysisParams) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.AnalysisStatusQueued), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}

	return &model.Analysis{
		ID:        id,
		Status:    model.AnalysisStatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis status %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

func (s *SQLiteStore) UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.AnalysisStatusComplete), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis result %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, params, result, created_at, updated_at FROM analyses WHERE id = ?`,
		analysisID,
	)
	return scanAnalysis(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT id, status, params, result, created_at, updated_at FROM analyses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, analysisID string, stored model.StoredSummary) error {
	doc, err := json.Marshal(stored)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (summary_id, analysis_id, session_id, document, created_at) VALUES (?, ?, ?, ?, ?)`,
		stored.Summary.ID, analysisID, stored.Summary.Session.ID, string(doc), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert summary %s", stored.Summary.ID)
}

func (s *SQLiteStore) GetSummary(ctx context.Context, summaryID string) (*model.StoredSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document FROM summaries WHERE summary_id = ?`,
		summaryID,
	)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get summary")
	}

	var stored model.StoredSummary
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	return &stored, nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, analysisID string) ([]model.StoredSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM summaries WHERE analysis_id = ? ORDER BY created_at`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list summaries")
	}
	defer rows.Close()

	var summaries []model.StoredSummary
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		var stored model.StoredSummary
		if err := json.Unmarshal([]byte(doc), &stored); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		summaries = append(summaries, stored)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: list summaries iterate")
}

func (s *SQLiteStore) SaveSpans(ctx context.Context, spans []model.Span) error {
	for _, sp := range spans {
		doc, err := json.Marshal(sp)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal span")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO spans (id, kind, start_time, end_time, document) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), sp.Kind, sp.StartTime.UTC(), sp.EndTime.UTC(), string(doc),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert span")
		}
	}
	return nil
}

func (s *SQLiteStore) ListSpansInWindow(ctx context.Context, window model.TimeRange) ([]model.Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM spans WHERE end_time >= ? AND start_time <= ? ORDER BY start_time`,
		window.Start.UTC(), window.End.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list spans")
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan span")
		}
		var sp model.Span
		if err := json.Unmarshal([]byte(doc), &sp); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal span")
		}
		spans = append(spans, sp)
	}
	return spans, eris.Wrap(rows.Err(), "sqlite: list spans iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scannable) (*model.Analysis, error) {
	var a model.Analysis
	var paramsJSON string
	var resultJSON sql.NullString

	err := row.Scan(&a.ID, &a.Status, &paramsJSON, &resultJSON, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("analysis not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan analysis")
	}

	if err := json.Unmarshal([]byte(paramsJSON), &a.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if resultJSON.Valid {
		a.Result = &model.AnalysisResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), a.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &a, nil
}
