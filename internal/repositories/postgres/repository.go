package postgres

import (
	"context"

	"github.com/smart-student/grading-service/internal/repositories"
	"gorm.io/gorm"
)

// Repository is the postgres-backed aggregate of all repositories
type Repository struct {
	db      *gorm.DB
	grades  repositories.GradeRepository
	history repositories.ReviewHistoryRepository
	tests   repositories.TestDefinitionRepository
}

// NewRepository wires the per-entity repositories around one gorm handle
func NewRepository(db *gorm.DB) repositories.Repository {
	return &Repository{
		db:      db,
		grades:  NewGradePostgreSQL(db),
		history: NewReviewHistoryPostgreSQL(db),
		tests:   NewTestDefinitionPostgreSQL(db),
	}
}

func (r *Repository) Grades() repositories.GradeRepository {
	return r.grades
}

func (r *Repository) History() repositories.ReviewHistoryRepository {
	return r.history
}

func (r *Repository) TestDefinitions() repositories.TestDefinitionRepository {
	return r.tests
}

// WithTransaction runs fn against a repository bound to one transaction
func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
