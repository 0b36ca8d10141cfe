package store

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gradsync/internal/model"
)

// Normalized names fall back to the scraped ones when enrichment left them empty.
const (
	pgUniversity = `COALESCE(NULLIF(llm_generated_university, ''), university)`
	pgProgram    = `COALESCE(NULLIF(llm_generated_program, ''), program)`
)

const (
	pgStatTermCount = `SELECT COUNT(*) FROM applicants WHERE term = $1`

	pgStatInternationalPct = `SELECT (100.0 * COUNT(*) FILTER (WHERE student_type = 'International') / NULLIF(COUNT(*), 0))::float8
FROM applicants`

	pgStatAverages = `SELECT AVG(gpa)::float8, AVG(gre)::float8, AVG(gre_v)::float8, AVG(gre_aw)::float8 FROM applicants`

	pgStatAmericanGPA = `SELECT AVG(gpa)::float8 FROM applicants WHERE term = $1 AND student_type = 'American'`

	pgStatAcceptancePct = `SELECT (100.0 * COUNT(*) FILTER (WHERE status = 'Accepted') / NULLIF(COUNT(*), 0))::float8
FROM applicants WHERE term = $1`

	pgStatAcceptedGPA = `SELECT AVG(gpa)::float8 FROM applicants WHERE term = $1 AND status = 'Accepted'`

	pgStatProgramCount = `SELECT COUNT(*) FROM applicants
WHERE ` + pgUniversity + ` ILIKE '%' || $1 || '%' AND ` + pgProgram + ` ILIKE '%' || $2 || '%' AND degree = $3`

	pgStatAcceptCount = `SELECT COUNT(*) FROM applicants
WHERE ` + pgUniversity + ` ILIKE '%' || $1 || '%' AND ` + pgProgram + ` ILIKE '%' || $2 || '%' AND degree = $3
AND term LIKE '%' || $4 || '%' AND status = 'Accepted'`

	pgStatTopUniversities = `SELECT ` + pgUniversity + ` AS uni, COUNT(*) AS n FROM applicants
GROUP BY uni ORDER BY n DESC, uni LIMIT $1`

	pgStatGPAByStatus = `SELECT status, AVG(gpa)::float8 FROM applicants
WHERE status IN ('Accepted', 'Rejected') GROUP BY status ORDER BY status`
)

// Stats runs the aggregate queries concurrently. Each query writes its own
// fields of the result.
func (s *PostgresStore) Stats(ctx context.Context, q model.StatsQuery) (*model.Stats, error) {
	if q.TopN <= 0 {
		q.TopN = model.DefaultStatsQuery().TopN
	}
	st := &model.Stats{Query: q}

	g, gctx := errgroup.WithContext(ctx)
	scalar := func(name, sql string, dest []any, args ...any) {
		g.Go(func() error {
			if err := s.pool.QueryRow(gctx, sql, args...).Scan(dest...); err != nil {
				return eris.Wrapf(err, "postgres: stats %s", name)
			}
			return nil
		})
	}

	scalar("term count", pgStatTermCount, []any{&st.TermApplicants}, q.Term)
	scalar("international pct", pgStatInternationalPct, []any{&st.InternationalPct})
	scalar("averages", pgStatAverages, []any{&st.AvgGPA, &st.AvgGRE, &st.AvgGREVerbal, &st.AvgGREAW})
	scalar("american gpa", pgStatAmericanGPA, []any{&st.AmericanTermAvgGPA}, q.Term)
	scalar("acceptance pct", pgStatAcceptancePct, []any{&st.TermAcceptancePct}, q.Term)
	scalar("accepted gpa", pgStatAcceptedGPA, []any{&st.AcceptedTermAvgGPA}, q.Term)
	scalar("program count", pgStatProgramCount, []any{&st.ProgramCount},
		q.ProgramUniversity, q.ProgramName, q.ProgramDegree)
	scalar("accept count", pgStatAcceptCount, []any{&st.AcceptCount},
		q.AcceptUniversity, q.AcceptProgram, q.AcceptDegree, q.AcceptTermYear)

	g.Go(func() error {
		rows, err := s.pool.Query(gctx, pgStatTopUniversities, q.TopN)
		if err != nil {
			return eris.Wrap(err, "postgres: stats top universities")
		}
		defer rows.Close()
		for rows.Next() {
			var uc model.UniversityCount
			var uni *string
			if err := rows.Scan(&uni, &uc.Applications); err != nil {
				return eris.Wrap(err, "postgres: scan top university")
			}
			if uni != nil {
				uc.University = *uni
			}
			st.TopUniversities = append(st.TopUniversities, uc)
		}
		return eris.Wrap(rows.Err(), "postgres: stats top universities iterate")
	})

	g.Go(func() error {
		rows, err := s.pool.Query(gctx, pgStatGPAByStatus)
		if err != nil {
			return eris.Wrap(err, "postgres: stats gpa by status")
		}
		defer rows.Close()
		for rows.Next() {
			var sg model.StatusGPA
			var status string
			if err := rows.Scan(&status, &sg.AvgGPA); err != nil {
				return eris.Wrap(err, "postgres: scan gpa by status")
			}
			sg.Status = model.ParseStatus(status)
			st.GPAByStatus = append(st.GPAByStatus, sg)
		}
		return eris.Wrap(rows.Err(), "postgres: stats gpa by status iterate")
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}
