package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/db"
	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlLatestWatermark = `SELECT pid, date_added FROM applicants WHERE date_added = (SELECT MAX(date_added) FROM applicants)`
	sqlCountApplicants = `SELECT COUNT(*) FROM applicants`
	sqlInsertRun       = `INSERT INTO sync_runs (id, status, started_at) VALUES ($1, $2, $3)`
	sqlFinishRun       = `UPDATE sync_runs SET status = $1, completed_at = $2, result = $3, error = $4 WHERE id = $5`
	sqlGetRun          = `SELECT id, status, started_at, completed_at, result, error FROM sync_runs WHERE id = $1`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"latest_watermark": sqlLatestWatermark,
	"count_applicants": sqlCountApplicants,
	"insert_run":       sqlInsertRun,
	"finish_run":       sqlFinishRun,
	"get_run":          sqlGetRun,
}

var applicantUpsert = db.UpsertConfig{
	Table:        "applicants",
	Columns:      applicantColumns,
	ConflictKeys: []string{"pid"},
	DoNothing:    true,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, retry: defaultMergeRetry()}, nil
}

func defaultMergeRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("postgres", "merge applicants")
	return cfg
}

// WithRetry replaces the retry policy used for merge writes.
func (s *PostgresStore) WithRetry(cfg resilience.RetryConfig) *PostgresStore {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("postgres", "merge applicants")
	}
	s.retry = cfg
	return s
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS applicants (
	pid                      BIGINT PRIMARY KEY,
	university               TEXT,
	program                  TEXT,
	degree                   TEXT,
	status                   TEXT,
	decision_date            DATE,
	date_added               DATE NOT NULL,
	term                     TEXT,
	gpa                      DOUBLE PRECISION,
	gre                      INTEGER,
	gre_v                    INTEGER,
	gre_aw                   DOUBLE PRECISION,
	student_type             TEXT,
	comments                 TEXT,
	url                      TEXT,
	llm_generated_university TEXT,
	llm_generated_program    TEXT,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_applicants_date_added ON applicants(date_added);
CREATE INDEX IF NOT EXISTS idx_applicants_term ON applicants(term);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	result       JSONB,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

// LatestWatermark returns the newest date_added and every pid stored on it.
// An empty table yields a zero Watermark.
func (s *PostgresStore) LatestWatermark(ctx context.Context) (model.Watermark, error) {
	rows, err := s.pool.Query(ctx, sqlLatestWatermark)
	if err != nil {
		return model.Watermark{}, eris.Wrap(err, "postgres: latest watermark")
	}
	defer rows.Close()

	wm := model.Watermark{Known: map[int64]struct{}{}}
	for rows.Next() {
		var pid int64
		var added time.Time
		if err := rows.Scan(&pid, &added); err != nil {
			return model.Watermark{}, eris.Wrap(err, "postgres: scan watermark")
		}
		wm.Date = model.DateOf(added)
		wm.Known[pid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return model.Watermark{}, eris.Wrap(err, "postgres: latest watermark iterate")
	}
	return wm, nil
}

// MergeApplicants inserts records whose pid is not yet stored and leaves
// existing rows untouched. It returns the number of rows written.
func (s *PostgresStore) MergeApplicants(ctx context.Context, recs []model.ApplicantRecord) (int64, error) {
	recs = mergeable(recs)
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = pgApplicantRow(r)
	}

	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.BulkUpsert(ctx, s.pool, applicantUpsert, rows)
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: merge applicants")
	}
	return n, nil
}

func pgApplicantRow(r model.ApplicantRecord) []any {
	var decision *time.Time
	if r.DecisionDate != nil && !r.DecisionDate.IsZero() {
		t := r.DecisionDate.Time
		decision = &t
	}
	return []any{
		r.ExternalID,
		r.Institution,
		r.Program,
		r.Degree,
		string(r.Status),
		decision,
		r.DateAdded.Time,
		nullString(r.Term),
		r.GPA,
		r.GRE,
		r.GREVerbal,
		r.GREAW,
		nullString(string(r.StudentType)),
		r.Comments,
		r.SourceURL,
		nullString(r.LLMUniversity),
		nullString(r.LLMProgram),
	}
}

func (s *PostgresStore) CountApplicants(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, sqlCountApplicants).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count applicants")
	}
	return n, nil
}

func (s *PostgresStore) StartRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if _, err := s.pool.Exec(ctx, sqlInsertRun, id, string(model.RunStatusRunning), now); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, result *model.RunResult, runErr error) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, result, errString(runErr))
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, msg string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		if resultJSON, err = json.Marshal(result); err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
	}

	tag, err := s.pool.Exec(ctx, sqlFinishRun,
		string(status), time.Now().UTC(), resultJSON, nullString(msg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrRunNotFound, runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, sqlGetRun, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, result, error FROM sync_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var resultJSON []byte
	var errMsg *string

	if err := row.Scan(&r.ID, &status, &r.StartedAt, &r.CompletedAt, &resultJSON, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
