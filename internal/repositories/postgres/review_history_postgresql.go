package postgres

import (
	"context"
	"errors"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"gorm.io/gorm"
)

type ReviewHistoryPostgreSQL struct {
	db *gorm.DB
}

func NewReviewHistoryPostgreSQL(db *gorm.DB) repositories.ReviewHistoryRepository {
	return &ReviewHistoryPostgreSQL{db: db}
}

// Upsert updates the entry for the same student on the same test in place.
// Matched students key by student ID, unmatched sheets by normalized name;
// a re-upload is an update, never a duplicate row.
func (r *ReviewHistoryPostgreSQL) Upsert(ctx context.Context, entry *models.ReviewHistoryEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.findExisting(tx, entry)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(entry).Error
		}
		if err != nil {
			return err
		}

		entry.ID = existing.ID
		return tx.Save(entry).Error
	})
}

func (r *ReviewHistoryPostgreSQL) findExisting(tx *gorm.DB, entry *models.ReviewHistoryEntry) (*models.ReviewHistoryEntry, error) {
	var existing models.ReviewHistoryEntry

	if entry.StudentID != nil {
		err := tx.Where("test_id = ? AND student_id = ?", entry.TestID, *entry.StudentID).
			First(&existing).Error
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return &existing, err
		}
	}

	err := tx.Where("test_id = ? AND student_id IS NULL AND name_key = ?", entry.TestID, entry.NameKey).
		First(&existing).Error
	return &existing, err
}

func (r *ReviewHistoryPostgreSQL) ListByTest(ctx context.Context, testID string, filters repositories.HistoryFilters) ([]*models.ReviewHistoryEntry, int64, error) {
	var entries []*models.ReviewHistoryEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ReviewHistoryEntry{}).Where("test_id = ?", testID)
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.DateFrom != nil {
		query = query.Where("uploaded_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("uploaded_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, "uploaded_at")
	query = applyPagination(query, filters.Limit, filters.Offset)

	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *ReviewHistoryPostgreSQL) GetByNameKey(ctx context.Context, testID, nameKey string) (*models.ReviewHistoryEntry, error) {
	var entry models.ReviewHistoryEntry
	if err := r.db.WithContext(ctx).
		Where("test_id = ? AND name_key = ?", testID, nameKey).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// AssignStudent re-keys an unmatched entry once a teacher links it manually
func (r *ReviewHistoryPostgreSQL) AssignStudent(ctx context.Context, testID, nameKey, studentID string) error {
	result := r.db.WithContext(ctx).Model(&models.ReviewHistoryEntry{}).
		Where("test_id = ? AND name_key = ? AND student_id IS NULL", testID, nameKey).
		Updates(touchUpdatedAt(map[string]interface{}{
			"student_id":    studentID,
			"student_found": true,
		}))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
