package postgres

import (
	"context"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"gorm.io/gorm"
)

type TestDefinitionPostgreSQL struct {
	db *gorm.DB
}

func NewTestDefinitionPostgreSQL(db *gorm.DB) repositories.TestDefinitionRepository {
	return &TestDefinitionPostgreSQL{db: db}
}

func (t *TestDefinitionPostgreSQL) GetByID(ctx context.Context, id string) (*models.TestDefinition, error) {
	var def models.TestDefinition
	if err := t.db.WithContext(ctx).First(&def, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &def, nil
}

func (t *TestDefinitionPostgreSQL) ListByCourse(ctx context.Context, courseID string, limit, offset int) ([]*models.TestDefinition, int64, error) {
	var defs []*models.TestDefinition
	var total int64

	query := t.db.WithContext(ctx).Model(&models.TestDefinition{}).Where("course_id = ?", courseID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query.Order("created_at desc"), limit, offset)
	if err := query.Find(&defs).Error; err != nil {
		return nil, 0, err
	}
	return defs, total, nil
}
