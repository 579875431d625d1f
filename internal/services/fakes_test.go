package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory repositories.Repository for service tests
type fakeRepository struct {
	grades  *fakeGradeRepo
	history *fakeHistoryRepo
	defs    *fakeDefinitionRepo
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		grades:  &fakeGradeRepo{records: make(map[string]*models.GradeRecord)},
		history: &fakeHistoryRepo{entries: make(map[string]*models.ReviewHistoryEntry)},
		defs:    &fakeDefinitionRepo{defs: make(map[string]*models.TestDefinition)},
	}
}

func (r *fakeRepository) Grades() repositories.GradeRepository { return r.grades }

func (r *fakeRepository) History() repositories.ReviewHistoryRepository { return r.history }

func (r *fakeRepository) TestDefinitions() repositories.TestDefinitionRepository { return r.defs }
func (r *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

type fakeGradeRepo struct {
	records map[string]*models.GradeRecord
}

func (r *fakeGradeRepo) Upsert(ctx context.Context, record *models.GradeRecord) (bool, error) {
	record.ID = models.GradeRecordID(record.TestID, record.StudentID)
	_, existed := r.records[record.ID]
	copied := *record
	r.records[record.ID] = &copied
	return !existed, nil
}

func (r *fakeGradeRepo) Save(ctx context.Context, record *models.GradeRecord) error {
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *fakeGradeRepo) GetByTestAndStudent(ctx context.Context, testID, studentID string) (*models.GradeRecord, error) {
	record, ok := r.records[models.GradeRecordID(testID, studentID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *fakeGradeRepo) ListByTest(ctx context.Context, testID string, filters repositories.GradeFilters) ([]*models.GradeRecord, int64, error) {
	var out []*models.GradeRecord
	for _, record := range r.records {
		if record.TestID == testID {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, int64(len(out)), nil
}

func (r *fakeGradeRepo) Delete(ctx context.Context, testID, studentID string) error {
	delete(r.records, models.GradeRecordID(testID, studentID))
	return nil
}

func (r *fakeGradeRepo) Stats(ctx context.Context, testID string) (*repositories.GradeStats, error) {
	stats := &repositories.GradeStats{}
	sum := 0.0
	for _, record := range r.records {
		if record.TestID != testID {
			continue
		}
		stats.Total++
		sum += record.Percentage
		if record.Status == models.GradeCommitted {
			stats.Committed++
		} else {
			stats.Preliminary++
		}
	}
	if stats.Total > 0 {
		stats.AveragePercent = sum / float64(stats.Total)
	}
	return stats, nil
}

type fakeHistoryRepo struct {
	entries map[string]*models.ReviewHistoryEntry
}

func historyKey(testID string, studentID *string, nameKey string) string {
	if studentID != nil {
		return fmt.Sprintf("%s|id:%s", testID, *studentID)
	}
	return fmt.Sprintf("%s|name:%s", testID, nameKey)
}

func (r *fakeHistoryRepo) Upsert(ctx context.Context, entry *models.ReviewHistoryEntry) error {
	copied := *entry
	r.entries[historyKey(entry.TestID, entry.StudentID, entry.NameKey)] = &copied
	return nil
}

func (r *fakeHistoryRepo) ListByTest(ctx context.Context, testID string, filters repositories.HistoryFilters) ([]*models.ReviewHistoryEntry, int64, error) {
	var out []*models.ReviewHistoryEntry
	for _, entry := range r.entries {
		if entry.TestID != testID {
			continue
		}
		if filters.StudentID != nil && (entry.StudentID == nil || *entry.StudentID != *filters.StudentID) {
			continue
		}
		copied := *entry
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *fakeHistoryRepo) GetByNameKey(ctx context.Context, testID, nameKey string) (*models.ReviewHistoryEntry, error) {
	for _, entry := range r.entries {
		if entry.TestID == testID && entry.NameKey == nameKey {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeHistoryRepo) AssignStudent(ctx context.Context, testID, nameKey, studentID string) error {
	for key, entry := range r.entries {
		if entry.TestID == testID && entry.NameKey == nameKey && entry.StudentID == nil {
			entry.StudentID = &studentID
			entry.StudentFound = true
			delete(r.entries, key)
			r.entries[historyKey(testID, &studentID, nameKey)] = entry
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeDefinitionRepo struct {
	defs map[string]*models.TestDefinition
}

func (r *fakeDefinitionRepo) GetByID(ctx context.Context, id string) (*models.TestDefinition, error) {
	def, ok := r.defs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return def, nil
}

func (r *fakeDefinitionRepo) ListByCourse(ctx context.Context, courseID string, limit, offset int) ([]*models.TestDefinition, int64, error) {
	var out []*models.TestDefinition
	for _, def := range r.defs {
		if def.CourseID == courseID {
			out = append(out, def)
		}
	}
	return out, int64(len(out)), nil
}
