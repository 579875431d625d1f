package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/smart-student/grading-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type GradeFilters struct {
	Status    *models.GradeStatus `json:"status"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
	SortBy    string              `json:"sort_by"`    // "graded_at", "student_name", "percentage"
	SortOrder string              `json:"sort_order"` // "asc", "desc"
}

type HistoryFilters struct {
	StudentID *string    `json:"student_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`
	SortOrder string     `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type GradeStats struct {
	Total          int     `json:"total"`
	Committed      int     `json:"committed"`
	Preliminary    int     `json:"preliminary"`
	AveragePercent float64 `json:"average_percent"`
	BestPercent    float64 `json:"best_percent"`
	WorstPercent   float64 `json:"worst_percent"`
}

// ===== REPOSITORY INTERFACES =====

// GradeRepository persists grade records. Upsert is the only write path for
// pipeline results: at most one record per (test, student), overwritten in
// place on re-runs.
type GradeRepository interface {
	Upsert(ctx context.Context, record *models.GradeRecord) (created bool, err error)
	Save(ctx context.Context, record *models.GradeRecord) error
	GetByTestAndStudent(ctx context.Context, testID, studentID string) (*models.GradeRecord, error)
	ListByTest(ctx context.Context, testID string, filters GradeFilters) ([]*models.GradeRecord, int64, error)
	Delete(ctx context.Context, testID, studentID string) error
	Stats(ctx context.Context, testID string) (*GradeStats, error)
}

// ReviewHistoryRepository persists analysis audit entries, keyed by
// (test, student) when matched and by normalized name otherwise
type ReviewHistoryRepository interface {
	Upsert(ctx context.Context, entry *models.ReviewHistoryEntry) error
	ListByTest(ctx context.Context, testID string, filters HistoryFilters) ([]*models.ReviewHistoryEntry, int64, error)
	GetByNameKey(ctx context.Context, testID, nameKey string) (*models.ReviewHistoryEntry, error)
	AssignStudent(ctx context.Context, testID, nameKey, studentID string) error
}

// TestDefinitionRepository reads test definitions. The grading service never
// authors tests; definitions arrive from the content system.
type TestDefinitionRepository interface {
	GetByID(ctx context.Context, id string) (*models.TestDefinition, error)
	ListByCourse(ctx context.Context, courseID string, limit, offset int) ([]*models.TestDefinition, int64, error)
}

// Repository aggregates all repositories behind one injection point
type Repository interface {
	Grades() GradeRepository
	History() ReviewHistoryRepository
	TestDefinitions() TestDefinitionRepository
	WithTransaction(ctx context.Context, fn func(Repository) error) error
}

// IsNotFoundError reports whether an error is the driver's missing-row error
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
