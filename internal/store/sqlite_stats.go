package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/model"
)

const (
	liteUniversity = `COALESCE(NULLIF(llm_generated_university, ''), university)`
	liteProgram    = `COALESCE(NULLIF(llm_generated_program, ''), program)`
)

// Stats runs the aggregate queries sequentially; SQLite LIKE is already
// case-insensitive for ASCII.
func (s *SQLiteStore) Stats(ctx context.Context, q model.StatsQuery) (*model.Stats, error) {
	if q.TopN <= 0 {
		q.TopN = model.DefaultStatsQuery().TopN
	}
	st := &model.Stats{Query: q}

	scalars := []struct {
		name string
		sql  string
		args []any
		dest []any
	}{
		{"term count", `SELECT COUNT(*) FROM applicants WHERE term = ?`,
			[]any{q.Term}, []any{&st.TermApplicants}},
		{"international pct", `SELECT 100.0 * SUM(CASE WHEN student_type = 'International' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0) FROM applicants`,
			nil, []any{&st.InternationalPct}},
		{"averages", `SELECT AVG(gpa), AVG(gre), AVG(gre_v), AVG(gre_aw) FROM applicants`,
			nil, []any{&st.AvgGPA, &st.AvgGRE, &st.AvgGREVerbal, &st.AvgGREAW}},
		{"american gpa", `SELECT AVG(gpa) FROM applicants WHERE term = ? AND student_type = 'American'`,
			[]any{q.Term}, []any{&st.AmericanTermAvgGPA}},
		{"acceptance pct", `SELECT 100.0 * SUM(CASE WHEN status = 'Accepted' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0) FROM applicants WHERE term = ?`,
			[]any{q.Term}, []any{&st.TermAcceptancePct}},
		{"accepted gpa", `SELECT AVG(gpa) FROM applicants WHERE term = ? AND status = 'Accepted'`,
			[]any{q.Term}, []any{&st.AcceptedTermAvgGPA}},
		{"program count", `SELECT COUNT(*) FROM applicants WHERE ` + liteUniversity + ` LIKE '%' || ? || '%' AND ` +
			liteProgram + ` LIKE '%' || ? || '%' AND degree = ?`,
			[]any{q.ProgramUniversity, q.ProgramName, q.ProgramDegree}, []any{&st.ProgramCount}},
		{"accept count", `SELECT COUNT(*) FROM applicants WHERE ` + liteUniversity + ` LIKE '%' || ? || '%' AND ` +
			liteProgram + ` LIKE '%' || ? || '%' AND degree = ? AND term LIKE '%' || ? || '%' AND status = 'Accepted'`,
			[]any{q.AcceptUniversity, q.AcceptProgram, q.AcceptDegree, q.AcceptTermYear}, []any{&st.AcceptCount}},
	}
	for _, sc := range scalars {
		if err := s.db.QueryRowContext(ctx, sc.sql, sc.args...).Scan(sc.dest...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: stats %s", sc.name)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+liteUniversity+` AS uni, COUNT(*) AS n FROM applicants GROUP BY uni ORDER BY n DESC, uni LIMIT ?`, q.TopN)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats top universities")
	}
	for rows.Next() {
		var uc model.UniversityCount
		var uni *string
		if err := rows.Scan(&uni, &uc.Applications); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan top university")
		}
		if uni != nil {
			uc.University = *uni
		}
		st.TopUniversities = append(st.TopUniversities, uc)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats top universities iterate")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT status, AVG(gpa) FROM applicants WHERE status IN ('Accepted', 'Rejected') GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats gpa by status")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var sg model.StatusGPA
		var status string
		if err := rows.Scan(&status, &sg.AvgGPA); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gpa by status")
		}
		sg.Status = model.ParseStatus(status)
		st.GPAByStatus = append(st.GPAByStatus, sg)
	}
	return st, eris.Wrap(rows.Err(), "sqlite: stats gpa by status iterate")
}
