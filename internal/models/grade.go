package models

import (
	"fmt"
	"time"
)

// GradeStatus tracks whether a grade is still reviewable or final
type GradeStatus string

const (
	GradePreliminary GradeStatus = "preliminary"
	GradeCommitted   GradeStatus = "committed"
)

// GradeRecord is the persisted grade for one student on one test. The record
// stores a percentage on the 0-100 scale only; raw points live in the review
// history. There is at most one record per (test, student) pair and re-runs
// overwrite it in place.
type GradeRecord struct {
	ID          string      `json:"id" gorm:"primaryKey;size:130"`
	TestID      string      `json:"test_id" gorm:"size:64;uniqueIndex:idx_grades_test_student"`
	StudentID   string      `json:"student_id" gorm:"size:64;uniqueIndex:idx_grades_test_student"`
	StudentName string      `json:"student_name" gorm:"size:120"`
	Percentage  float64     `json:"percentage"`
	Status      GradeStatus `json:"status" gorm:"size:20;default:preliminary"`
	GradedAt    time.Time   `json:"graded_at"`
	CommittedAt *time.Time  `json:"committed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (GradeRecord) TableName() string {
	return "grade_records"
}

// GradeRecordID derives the stable record key for a (test, student) pair
func GradeRecordID(testID, studentID string) string {
	return fmt.Sprintf("%s-%s", testID, studentID)
}

// ReviewHistoryEntry records one analysis outcome for audit and re-runs.
// Entries are keyed by (test, student) when the student matched, else by the
// normalized detected name; a re-run updates the existing entry instead of
// appending a duplicate.
type ReviewHistoryEntry struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TestID         string    `json:"test_id" gorm:"size:64;index:idx_history_test"`
	StudentID      *string   `json:"student_id,omitempty" gorm:"size:64;index:idx_history_student"`
	NameKey        string    `json:"name_key" gorm:"size:120;index:idx_history_name"`
	StudentName    string    `json:"student_name" gorm:"size:120"`
	RawPoints      float64   `json:"raw_points"`
	RawPercent     float64   `json:"raw_percent"`
	TotalPoints    float64   `json:"total_points"`
	TotalQuestions int       `json:"total_questions"`
	AnsweredCount  int       `json:"answered_count"`
	Coverage       float64   `json:"coverage"` // fraction of questions with supporting evidence
	StudentFound   bool      `json:"student_found"`
	UploadedAt     time.Time `json:"uploaded_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ReviewHistoryEntry) TableName() string {
	return "review_history"
}
