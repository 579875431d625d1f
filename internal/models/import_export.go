package models

import "time"

// ImportRowError describes why a single spreadsheet row was skipped
type ImportRowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// GradeImportSummary is the outcome of a bulk grade import. Skipped rows are
// counted and reported, never silently dropped.
type GradeImportSummary struct {
	TotalRows      int              `json:"total_rows"`
	Created        int              `json:"created"`
	Updated        int              `json:"updated"`
	Skipped        int              `json:"skipped"`
	Errors         []ImportRowError `json:"errors,omitempty"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// GradeImportRow is one parsed spreadsheet row before roster resolution.
// Exactly one of Points and Percentage is set; the other is derived from the
// test's point scale.
type GradeImportRow struct {
	Row        int
	StudentID  string
	Name       string
	Points     *float64
	Percentage *float64
}

// DisplayKey names the row's student for error messages
func (r *GradeImportRow) DisplayKey() string {
	if r.StudentID != "" {
		return r.StudentID
	}
	return r.Name
}
