package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// ISO text so MAX and equality compare calendar days.
type SQLiteStore struct {
	db    *sql.DB
	retry resilience.RetryConfig
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
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("sqlite", "merge applicants")
	return &SQLiteStore{db: db, retry: retry}, nil
}

// WithRetry replaces the retry policy used for merge writes.
func (s *SQLiteStore) WithRetry(cfg resilience.RetryConfig) *SQLiteStore {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("sqlite", "merge applicants")
	}
	s.retry = cfg
	return s
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS applicants (
	pid                      INTEGER PRIMARY KEY,
	university               TEXT,
	program                  TEXT,
	degree                   TEXT,
	status                   TEXT,
	decision_date            TEXT,
	date_added               TEXT NOT NULL,
	term                     TEXT,
	gpa                      REAL,
	gre                      INTEGER,
	gre_v                    INTEGER,
	gre_aw                   REAL,
	student_type             TEXT,
	comments                 TEXT,
	url                      TEXT,
	llm_generated_university TEXT,
	llm_generated_program    TEXT,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_applicants_date_added ON applicants(date_added);
CREATE INDEX IF NOT EXISTS idx_applicants_term ON applicants(term);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	result       TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status);
`

const sqliteInsertApplicant = `INSERT INTO applicants (
	pid, university, program, degree, status, decision_date, date_added, term,
	gpa, gre, gre_v, gre_aw, student_type, comments, url,
	llm_generated_university, llm_generated_program
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pid) DO NOTHING`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LatestWatermark(ctx context.Context) (model.Watermark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, date_added FROM applicants WHERE date_added = (SELECT MAX(date_added) FROM applicants)`)
	if err != nil {
		return model.Watermark{}, eris.Wrap(err, "sqlite: latest watermark")
	}
	defer rows.Close() //nolint:errcheck

	wm := model.Watermark{Known: map[int64]struct{}{}}
	for rows.Next() {
		var pid int64
		var added string
		if err := rows.Scan(&pid, &added); err != nil {
			return model.Watermark{}, eris.Wrap(err, "sqlite: scan watermark")
		}
		d, err := model.ParseDate(added)
		if err != nil {
			return model.Watermark{}, eris.Wrap(err, "sqlite: watermark date")
		}
		wm.Date = d
		wm.Known[pid] = struct{}{}
	}
	return wm, eris.Wrap(rows.Err(), "sqlite: latest watermark iterate")
}

// MergeApplicants inserts new pids in one transaction and skips existing ones.
func (s *SQLiteStore) MergeApplicants(ctx context.Context, recs []model.ApplicantRecord) (int64, error) {
	recs = mergeable(recs)
	if len(recs) == 0 {
		return 0, nil
	}
	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.mergeTx(ctx, recs)
	})
	return n, eris.Wrap(err, "sqlite: merge applicants")
}

func (s *SQLiteStore) mergeTx(ctx context.Context, recs []model.ApplicantRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertApplicant)
	if err != nil {
		return 0, err
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, r := range recs {
		res, err := stmt.ExecContext(ctx, sqliteApplicantRow(r)...)
		if err != nil {
			return 0, eris.Wrapf(err, "insert pid %d", r.ExternalID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func sqliteApplicantRow(r model.ApplicantRecord) []any {
	var decision any
	if r.DecisionDate != nil && !r.DecisionDate.IsZero() {
		decision = r.DecisionDate.String()
	}
	return []any{
		r.ExternalID,
		r.Institution,
		r.Program,
		r.Degree,
		string(r.Status),
		decision,
		r.DateAdded.String(),
		textOrNull(r.Term),
		floatOrNull(r.GPA),
		intOrNull(r.GRE),
		intOrNull(r.GREVerbal),
		floatOrNull(r.GREAW),
		textOrNull(string(r.StudentType)),
		deref(r.Comments),
		r.SourceURL,
		textOrNull(r.LLMUniversity),
		textOrNull(r.LLMProgram),
	}
}

func textOrNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNull(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func intOrNull(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (s *SQLiteStore) CountApplicants(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applicants`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count applicants")
}

func (s *SQLiteStore) StartRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, result *model.RunResult, runErr error) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, result, errString(runErr))
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, msg string) error {
	var resultJSON any
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		resultJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, completed_at = ?, result = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), resultJSON, textOrNull(msg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, completed_at, result, error FROM sync_runs WHERE id = ?`, runID,
	), runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, result, error FROM sync_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrRunNotFound, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, id string) (*model.Run, error) {
	var r model.Run
	var status string
	var completed sql.NullTime
	var resultJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &status, &r.StartedAt, &completed, &resultJSON, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrRunNotFound, id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = model.RunStatus(status)
	r.Error = errMsg.String
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
