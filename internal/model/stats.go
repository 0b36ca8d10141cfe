package model

// StatsQuery parameterizes the aggregate statistics.
type StatsQuery struct {
	Term string `json:"term"` // e.g. "Fall 2025"

	// Count of applications matching a university/program/degree.
	ProgramUniversity string `json:"program_university"`
	ProgramName       string `json:"program_name"`
	ProgramDegree     string `json:"program_degree"`

	// Count of acceptances matching a university/program/degree in a term year.
	AcceptUniversity string `json:"accept_university"`
	AcceptProgram    string `json:"accept_program"`
	AcceptDegree     string `json:"accept_degree"`
	AcceptTermYear   string `json:"accept_term_year"`

	TopN int `json:"top_n"`
}

// DefaultStatsQuery returns the parameters of the standard report.
func DefaultStatsQuery() StatsQuery {
	return StatsQuery{
		Term:              "Fall 2025",
		ProgramUniversity: "johns hopkins",
		ProgramName:       "computer science",
		ProgramDegree:     "Masters",
		AcceptUniversity:  "georgetown",
		AcceptProgram:     "computer science",
		AcceptDegree:      "PhD",
		AcceptTermYear:    "2025",
		TopN:              3,
	}
}

// Stats are read-only aggregates over the applicants table. Averages and
// percentages are nil when no rows contribute.
type Stats struct {
	Query StatsQuery `json:"query"`

	TermApplicants     int64    `json:"term_applicants"`
	InternationalPct   *float64 `json:"international_pct"`
	AvgGPA             *float64 `json:"avg_gpa"`
	AvgGRE             *float64 `json:"avg_gre"`
	AvgGREVerbal       *float64 `json:"avg_gre_v"`
	AvgGREAW           *float64 `json:"avg_gre_aw"`
	AmericanTermAvgGPA *float64 `json:"american_term_avg_gpa"`
	TermAcceptancePct  *float64 `json:"term_acceptance_pct"`
	AcceptedTermAvgGPA *float64 `json:"accepted_term_avg_gpa"`
	ProgramCount       int64    `json:"program_count"`
	AcceptCount        int64    `json:"accept_count"`

	TopUniversities []UniversityCount `json:"top_universities"`
	GPAByStatus     []StatusGPA       `json:"gpa_by_status"`
}

// UniversityCount is one row of the most-applied-to ranking.
type UniversityCount struct {
	University   string `json:"university"`
	Applications int64  `json:"applications"`
}

// StatusGPA is the average GPA for one decision status.
type StatusGPA struct {
	Status Status   `json:"status"`
	AvgGPA *float64 `json:"avg_gpa"`
}
