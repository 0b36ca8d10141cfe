package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gradsync/internal/db"
	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, retry: resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}}
	return s, mock
}

func expectUpsert(mock pgxmock.PgxPoolIface, inserted int64) {
	tmp := regexp.QuoteMeta(db.TempTable("applicants"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "` + tmp + `"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTable("applicants")}, applicantColumns).WillReturnResult(inserted)
	mock.ExpectExec(`DELETE FROM "` + tmp + `"`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "applicants" .* ON CONFLICT \("pid"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", inserted))
	mock.ExpectCommit()
}

func TestPostgresStore_LatestWatermark(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	added := time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT pid, date_added FROM applicants WHERE date_added = \(SELECT MAX\(date_added\)`).
		WillReturnRows(pgxmock.NewRows([]string{"pid", "date_added"}).
			AddRow(int64(101), added).
			AddRow(int64(102), added))

	wm, err := s.LatestWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-09-23", wm.Date.String())
	assert.True(t, wm.IsKnown(101))
	assert.True(t, wm.IsKnown(102))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestWatermark_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT pid, date_added FROM applicants`).
		WillReturnRows(pgxmock.NewRows([]string{"pid", "date_added"}))

	wm, err := s.LatestWatermark(context.Background())
	require.NoError(t, err)
	assert.True(t, wm.Date.IsZero())
	assert.Empty(t, wm.Known)
}

func TestPostgresStore_LatestWatermark_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT pid, date_added FROM applicants`).
		WillReturnError(errors.New("relation \"applicants\" does not exist"))

	_, err := s.LatestWatermark(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: latest watermark")
}

func TestPostgresStore_MergeApplicants(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectUpsert(mock, 2)

	gpa := 3.7
	n, err := s.MergeApplicants(context.Background(), []model.ApplicantRecord{
		{ExternalID: 1, DateAdded: model.NewDate(2025, 9, 23), GPA: &gpa},
		{ExternalID: 2, DateAdded: model.NewDate(2025, 9, 23)},
		{ExternalID: 0, DateAdded: model.NewDate(2025, 9, 23)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeApplicants_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.MergeApplicants(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeApplicants_RetriesDeadlock(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	tmp := regexp.QuoteMeta(db.TempTable("applicants"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "` + tmp + `"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTable("applicants")}, applicantColumns).WillReturnResult(1)
	mock.ExpectExec(`DELETE FROM "` + tmp + `"`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "applicants"`).WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()
	expectUpsert(mock, 1)

	n, err := s.MergeApplicants(context.Background(), []model.ApplicantRecord{
		{ExternalID: 9, DateAdded: model.NewDate(2025, 9, 23)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeApplicants_PermanentError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "42501"})

	_, err := s.MergeApplicants(context.Background(), []model.ApplicantRecord{
		{ExternalID: 9, DateAdded: model.NewDate(2025, 9, 23)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: merge applicants")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApplicantRow(t *testing.T) {
	dec := model.NewDate(2025, 9, 20)
	row := pgApplicantRow(model.ApplicantRecord{
		ExternalID:   5,
		Status:       model.StatusAccepted,
		DecisionDate: &dec,
		DateAdded:    model.NewDate(2025, 9, 23),
		StudentType:  model.StudentTypeAmerican,
	})
	require.Len(t, row, len(applicantColumns))
	assert.Equal(t, int64(5), row[0])
	assert.Equal(t, "Accepted", row[4])
	require.IsType(t, &time.Time{}, row[5])
	assert.Equal(t, dec.Time, *row[5].(*time.Time))
	assert.Nil(t, row[7])
	assert.Equal(t, "American", *row[12].(*string))
	assert.Nil(t, row[15])
}

func TestPostgresStore_CountApplicants(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM applicants`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := s.CountApplicants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sync_runs`).
		WithArgs(pgxmock.AnyArg(), "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.StartRun(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sync_runs SET status = \$1`).
		WithArgs("failed", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailRun(context.Background(), "run-1", &model.RunResult{NewRecords: 3}, errors.New("boom"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sync_runs SET status = \$1`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "nope", &model.RunResult{})
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2025, 9, 23, 10, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, status, started_at, completed_at, result, error FROM sync_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "started_at", "completed_at", "result", "error"}).
			AddRow("run-1", "complete", started, &completed, []byte(`{"inserted":7}`), (*string)(nil)))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Result)
	assert.Equal(t, int64(7), run.Result.Inserted)
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sync_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2025, 9, 23, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM sync_runs WHERE true AND status = \$1 ORDER BY started_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("failed", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "started_at", "completed_at", "result", "error"}).
			AddRow("run-2", "failed", started, (*time.Time)(nil), []byte(nil), sptr("robots unavailable")))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "robots unavailable", runs[0].Error)
	assert.Nil(t, runs[0].Result)
	assert.Nil(t, runs[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS applicants`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
