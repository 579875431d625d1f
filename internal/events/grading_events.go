package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// EventType represents different types of notification events
type EventType string

const (
	// Grading events
	EventGradeCommitted       EventType = "grading.grade_committed"
	EventBatchCompleted       EventType = "grading.batch_completed"
	EventManualReviewRequired EventType = "grading.review_required"
)

// RemarkBand classifies a committed percentage for the notification text
type RemarkBand string

const (
	RemarkExcellent    RemarkBand = "excellent"
	RemarkGood         RemarkBand = "good"
	RemarkSatisfactory RemarkBand = "satisfactory"
	RemarkNeedsSupport RemarkBand = "needs_support"
)

// BandForPercentage maps a 0-100 percentage onto its remark band
func BandForPercentage(percentage float64) RemarkBand {
	switch {
	case percentage >= 90:
		return RemarkExcellent
	case percentage >= 70:
		return RemarkGood
	case percentage >= 50:
		return RemarkSatisfactory
	default:
		return RemarkNeedsSupport
	}
}

// NotificationEvent is the base event structure for all notification events
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// GradeCommittedEvent is published exactly once per committed grade.
// Preliminary and bulk-imported grades never produce one.
type GradeCommittedEvent struct {
	TestID      string     `json:"test_id"`
	TestTitle   string     `json:"test_title"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Percentage  float64    `json:"percentage"`
	Band        RemarkBand `json:"band"`
	CommittedAt time.Time  `json:"committed_at"`
}

// BatchCompletedEvent summarizes a finished multi-student grading run
type BatchCompletedEvent struct {
	TestID         string    `json:"test_id"`
	TestTitle      string    `json:"test_title"`
	StudentsGraded int       `json:"students_graded"`
	Unmatched      int       `json:"unmatched"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ManualReviewRequiredEvent flags a sheet that graded but could not be
// attributed to a roster student
type ManualReviewRequiredEvent struct {
	TestID       string    `json:"test_id"`
	TestTitle    string    `json:"test_title"`
	DetectedName string    `json:"detected_name"`
	Percentage   float64   `json:"percentage"`
	FlaggedAt    time.Time `json:"flagged_at"`
}

// Event factory functions

func NewGradeCommittedEvent(testID, testTitle, studentID, studentName string, percentage float64, committedAt time.Time) *NotificationEvent {
	return &NotificationEvent{
		ID:        generateEventID(),
		Type:      EventGradeCommitted,
		Timestamp: time.Now(),
		Source:    "grading-service",
		Version:   "1.0",
		Data: GradeCommittedEvent{
			TestID:      testID,
			TestTitle:   testTitle,
			StudentID:   studentID,
			StudentName: studentName,
			Percentage:  percentage,
			Band:        BandForPercentage(percentage),
			CommittedAt: committedAt,
		},
	}
}

func NewBatchCompletedEvent(testID, testTitle string, studentsGraded, unmatched int) *NotificationEvent {
	return &NotificationEvent{
		ID:        generateEventID(),
		Type:      EventBatchCompleted,
		Timestamp: time.Now(),
		Source:    "grading-service",
		Version:   "1.0",
		Data: BatchCompletedEvent{
			TestID:         testID,
			TestTitle:      testTitle,
			StudentsGraded: studentsGraded,
			Unmatched:      unmatched,
			CompletedAt:    time.Now(),
		},
	}
}

func NewManualReviewRequiredEvent(testID, testTitle, detectedName string, percentage float64) *NotificationEvent {
	return &NotificationEvent{
		ID:        generateEventID(),
		Type:      EventManualReviewRequired,
		Timestamp: time.Now(),
		Source:    "grading-service",
		Version:   "1.0",
		Data: ManualReviewRequiredEvent{
			TestID:       testID,
			TestTitle:    testTitle,
			DetectedName: detectedName,
			Percentage:   percentage,
			FlaggedAt:    time.Now(),
		},
	}
}

func generateEventID() string {
	return watermill.NewUUID()
}
