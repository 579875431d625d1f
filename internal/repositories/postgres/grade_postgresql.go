package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"gorm.io/gorm"
)

type GradePostgreSQL struct {
	db *gorm.DB
}

func NewGradePostgreSQL(db *gorm.DB) repositories.GradeRepository {
	return &GradePostgreSQL{db: db}
}

// Upsert writes the record for its (test, student) pair, overwriting an
// existing one in place. A committed record being re-graded drops back to
// the incoming status; callers decide whether that is allowed.
func (g *GradePostgreSQL) Upsert(ctx context.Context, record *models.GradeRecord) (bool, error) {
	record.ID = models.GradeRecordID(record.TestID, record.StudentID)

	created := false
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.GradeRecord
		err := tx.Where("test_id = ? AND student_id = ?", record.TestID, record.StudentID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(record).Error
		}
		if err != nil {
			return err
		}

		record.CreatedAt = existing.CreatedAt
		return tx.Save(record).Error
	})
	return created, err
}

func (g *GradePostgreSQL) Save(ctx context.Context, record *models.GradeRecord) error {
	return g.db.WithContext(ctx).Save(record).Error
}

func (g *GradePostgreSQL) GetByTestAndStudent(ctx context.Context, testID, studentID string) (*models.GradeRecord, error) {
	var record models.GradeRecord
	if err := g.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (g *GradePostgreSQL) ListByTest(ctx context.Context, testID string, filters repositories.GradeFilters) ([]*models.GradeRecord, int64, error) {
	var records []*models.GradeRecord
	var total int64

	query := g.db.WithContext(ctx).Model(&models.GradeRecord{}).Where("test_id = ?", testID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, "student_name")
	query = applyPagination(query, filters.Limit, filters.Offset)

	if err := query.Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (g *GradePostgreSQL) Delete(ctx context.Context, testID, studentID string) error {
	return g.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Delete(&models.GradeRecord{}).Error
}

func (g *GradePostgreSQL) Stats(ctx context.Context, testID string) (*repositories.GradeStats, error) {
	var records []*models.GradeRecord
	if err := g.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Find(&records).Error; err != nil {
		return nil, err
	}

	stats := &repositories.GradeStats{Total: len(records)}
	if len(records) == 0 {
		return stats, nil
	}

	sum := 0.0
	stats.WorstPercent = records[0].Percentage
	for _, record := range records {
		sum += record.Percentage
		if record.Status == models.GradeCommitted {
			stats.Committed++
		} else {
			stats.Preliminary++
		}
		if record.Percentage > stats.BestPercent {
			stats.BestPercent = record.Percentage
		}
		if record.Percentage < stats.WorstPercent {
			stats.WorstPercent = record.Percentage
		}
	}
	stats.AveragePercent = sum / float64(len(records))
	return stats, nil
}

// applySort orders by a whitelisted column, falling back to the default
func applySort(query *gorm.DB, sortBy, sortOrder, defaultColumn string) *gorm.DB {
	column := defaultColumn
	switch sortBy {
	case "graded_at", "student_name", "percentage", "uploaded_at":
		column = sortBy
	}
	order := "asc"
	if sortOrder == "desc" {
		order = "desc"
	}
	return query.Order(column + " " + order)
}

func applyPagination(query *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// touchUpdatedAt is a shared helper for update-in-place writes
func touchUpdatedAt(values map[string]interface{}) map[string]interface{} {
	values["updated_at"] = time.Now()
	return values
}
