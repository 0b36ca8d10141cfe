//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gradsync/internal/model"
)

func fp(f float64) *float64 { return &f }

func TestFormatStats(t *testing.T) {
	s := &model.Stats{
		Query:             model.DefaultStatsQuery(),
		TermApplicants:    120,
		InternationalPct:  fp(41.666),
		AvgGPA:            fp(3.712),
		TermAcceptancePct: fp(25),
		ProgramCount:      9,
		AcceptCount:       2,
		TopUniversities: []model.UniversityCount{
			{University: "Johns Hopkins University", Applications: 14},
			{University: "MIT", Applications: 9},
		},
		GPAByStatus: []model.StatusGPA{
			{Status: model.StatusAccepted, AvgGPA: fp(3.81)},
			{Status: model.StatusRejected},
		},
	}

	var buf bytes.Buffer
	formatStats(&buf, s)
	output := buf.String()

	assert.Contains(t, output, "Applicants for Fall 2025:")
	assert.Contains(t, output, "120")
	assert.Contains(t, output, "41.67%")
	assert.Contains(t, output, "3.71")
	assert.Contains(t, output, "25.00%")
	assert.Contains(t, output, "johns hopkins computer science Masters applications:")
	assert.Contains(t, output, "georgetown computer science PhD acceptances, 2025:")
	assert.Contains(t, output, "Top 2 universities:")
	assert.Contains(t, output, "1.  Johns Hopkins University")
	assert.Contains(t, output, "Accepted  3.81")
	assert.Contains(t, output, "Rejected  n/a")
}

func TestFormatStats_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, &model.Stats{Query: model.DefaultStatsQuery()})
	output := buf.String()

	assert.Contains(t, output, "n/a")
	assert.NotContains(t, output, "Top")
	assert.NotContains(t, output, "by decision")
}
