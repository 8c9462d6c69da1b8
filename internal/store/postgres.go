package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sightglass/evidence-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Satisfied by both
// *pgxpool.Pool and pgxmock, which keeps the Postgres store unit-testable
// without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_analysis":        `INSERT INTO analyses (id, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_analysis_status": `UPDATE analyses SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_analysis_result": `UPDATE analyses SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_analysis":           `SELECT id, status, params, result, created_at, updated_at FROM analyses WHERE id = $1`,
	"insert_summary":         `INSERT INTO summaries (summary_id, analysis_id, session_id, document, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_summary":            `SELECT document FROM summaries WHERE summary_id = $1`,
	"insert_span":            `INSERT INTO spans (id, kind, start_time, end_time, document) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     JSONB NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id  TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL REFERENCES analyses(id),
	session_id  TEXT NOT NULL,
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS spans (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ NOT NULL,
	document   JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_summaries_analysis_id ON summaries(analysis_id);
CREATE INDEX IF NOT EXISTS idx_spans_window ON spans(start_time, end_time);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, params model.AnalysisParams) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.AnalysisStatusQueued), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}

	return &model.Analysis{
		ID:        id,
		Status:    model.AnalysisStatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis status %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.AnalysisStatusComplete), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis result %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, params, result, created_at, updated_at FROM analyses WHERE id = $1`,
		analysisID,
	)

	a, err := scanPgAnalysis(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", analysisID)
	}
	return a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT id, status, params, result, created_at, updated_at FROM analyses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanPgAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		analyses = append(analyses, *a)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) SaveSummary(ctx context.Context, analysisID string, stored model.StoredSummary) error {
	doc, err := json.Marshal(stored)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO summaries (summary_id, analysis_id, session_id, document, created_at) VALUES ($1, $2, $3, $4, $5)`,
		stored.Summary.ID, analysisID, stored.Summary.Session.ID, doc, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert summary %s", stored.Summary.ID)
}

func (s *PostgresStore) GetSummary(ctx context.Context, summaryID string) (*model.StoredSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT document FROM summaries WHERE summary_id = $1`,
		summaryID,
	)

	var doc []byte
	err := row.Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get summary")
	}

	var stored model.StoredSummary
	if err := json.Unmarshal(doc, &stored); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal summary")
	}
	return &stored, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context, analysisID string) ([]model.StoredSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document FROM summaries WHERE analysis_id = $1 ORDER BY created_at`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list summaries")
	}
	defer rows.Close()

	var summaries []model.StoredSummary
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		var stored model.StoredSummary
		if err := json.Unmarshal(doc, &stored); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		summaries = append(summaries, stored)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: list summaries iterate")
}

func (s *PostgresStore) SaveSpans(ctx context.Context, spans []model.Span) error {
	for _, sp := range spans {
		doc, err := json.Marshal(sp)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal span")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO spans (id, kind, start_time, end_time, document) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), sp.Kind, sp.StartTime.UTC(), sp.EndTime.UTC(), doc,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert span")
		}
	}
	return nil
}

func (s *PostgresStore) ListSpansInWindow(ctx context.Context, window model.TimeRange) ([]model.Span, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document FROM spans WHERE end_time >= $1 AND start_time <= $2 ORDER BY start_time`,
		window.Start.UTC(), window.End.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list spans")
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan span")
		}
		var sp model.Span
		if err := json.Unmarshal(doc, &sp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal span")
		}
		spans = append(spans, sp)
	}
	return spans, eris.Wrap(rows.Err(), "postgres: list spans iterate")
}

// helpers

func scanPgAnalysis(row pgx.Row) (*model.Analysis, error) {
	var a model.Analysis
	var paramsJSON []byte
	var resultJSON []byte

	err := row.Scan(&a.ID, &a.Status, &paramsJSON, &resultJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan")
	}

	if err := json.Unmarshal(paramsJSON, &a.Params); err != nil {
		return nil, eris.Wrap(err, "unmarshal params")
	}
	if len(resultJSON) > 0 {
		a.Result = &model.AnalysisResult{}
		if err := json.Unmarshal(resultJSON, a.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &a, nil
}

