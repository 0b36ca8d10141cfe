// Package model defines the records that flow through the admissions sync pipeline.
package model

import (
	"encoding/json"
	"strings"
)

// Status is the decision reported on an admissions-result posting.
type Status string

const (
	StatusAccepted   Status = "Accepted"
	StatusRejected   Status = "Rejected"
	StatusInterview  Status = "Interview"
	StatusWaitlisted Status = "Wait listed"
	StatusOther      Status = "Other"
)

// statusPriority is the fixed order in which decision keywords are tested.
// A cell that mentions several keywords resolves to the earliest entry here.
var statusPriority = []Status{
	StatusAccepted,
	StatusRejected,
	StatusInterview,
	StatusWaitlisted,
}

// ClassifyStatus returns the first status keyword contained in text, in
// priority order. Text without any keyword is StatusOther.
func ClassifyStatus(text string) Status {
	for _, s := range statusPriority {
		if strings.Contains(text, string(s)) {
			return s
		}
	}
	return StatusOther
}

// ParseStatus maps a stored status string back to a Status. Unknown values
// become StatusOther.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusAccepted, StatusRejected, StatusInterview, StatusWaitlisted:
		return Status(s)
	default:
		return StatusOther
	}
}

// StudentType is the applicant's self-reported origin category.
type StudentType string

const (
	StudentTypeUnknown       StudentType = ""
	StudentTypeInternational StudentType = "International"
	StudentTypeAmerican      StudentType = "American"
	StudentTypeOtherURM      StudentType = "Other URM"
)

// ParseStudentType matches text exactly against the known categories.
// Anything else is StudentTypeUnknown.
func ParseStudentType(text string) StudentType {
	switch StudentType(text) {
	case StudentTypeInternational, StudentTypeAmerican, StudentTypeOtherURM:
		return StudentType(text)
	default:
		return StudentTypeUnknown
	}
}

// ApplicantRecord is one observed admissions-result posting.
//
// ExternalID is the identity of the record; the store never holds two rows
// with the same ExternalID. Optional metrics are nil when the posting did not
// report them.
type ApplicantRecord struct {
	ExternalID   int64       `json:"pid"`
	Institution  string      `json:"university"`
	Program      string      `json:"program"`
	Degree       string      `json:"degree"`
	Status       Status      `json:"status"`
	DecisionDate *Date       `json:"decision_date"`
	DateAdded    Date        `json:"date_added"`
	Term         string      `json:"term,omitempty"`
	GPA          *float64    `json:"gpa"`
	GRE          *int        `json:"gre"`
	GREVerbal    *int        `json:"gre_v"`
	GREAW        *float64    `json:"gre_aw"`
	StudentType  StudentType `json:"student_type,omitempty"`
	Comments     *string     `json:"comments"`
	SourceURL    string      `json:"url"`

	// Set by the enrichment step; empty until then.
	LLMUniversity string `json:"llm-generated-university,omitempty"`
	LLMProgram    string `json:"llm-generated-program,omitempty"`
}

type applicantFields ApplicantRecord

// UnmarshalJSON accepts us_or_international as an alias for student_type,
// the key used by older exports of the dataset.
func (r *ApplicantRecord) UnmarshalJSON(b []byte) error {
	var aux struct {
		applicantFields
		USOrInternational StudentType `json:"us_or_international"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = ApplicantRecord(aux.applicantFields)
	if r.StudentType == StudentTypeUnknown {
		r.StudentType = aux.USOrInternational
	}
	return nil
}

// Enriched reports whether normalized institution/program names are present.
func (r *ApplicantRecord) Enriched() bool {
	return r.LLMUniversity != "" || r.LLMProgram != ""
}
