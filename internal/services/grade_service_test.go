package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/smart-student/grading-service/internal/events"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func seedDefinition(repo *fakeRepository) *models.TestDefinition {
	def := &models.TestDefinition{
		ID:        "hist-2-unit3",
		Title:     "Historia Unidad 3",
		SectionID: "8b",
		Questions: datatypes.NewJSONType([]models.Question{
			{Ordinal: 1, Type: models.TrueFalse},
			{Ordinal: 2, Type: models.TrueFalse},
		}),
		TotalPoints: 40,
	}
	repo.defs.defs[def.ID] = def
	return def
}

func seedGrade(repo *fakeRepository, testID, studentID string, percentage float64) *models.GradeRecord {
	record := &models.GradeRecord{
		TestID:      testID,
		StudentID:   studentID,
		StudentName: "María Pérez",
		Percentage:  percentage,
		Status:      models.GradePreliminary,
		GradedAt:    time.Now(),
	}
	_, _ = repo.grades.Upsert(context.Background(), record)
	return record
}

func sectionRoster() roster.Provider {
	return roster.NewStaticProvider([]models.StudentRecord{
		{ID: "stu-1", Name: "María Pérez", SectionID: "8b"},
		{ID: "stu-2", Name: "Juan Soto", SectionID: "8b"},
	})
}

func TestGradeService_Commit(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	t.Run("commit publishes exactly one event", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedGrade(repo, "hist-2-unit3", "stu-1", 85)
		publisher := events.NewMockEventPublisher(logger)
		service := NewGradeService(repo, sectionRoster(), publisher, logger)

		record, err := service.Commit(ctx, "hist-2-unit3", "stu-1")
		require.NoError(t, err)
		assert.Equal(t, models.GradeCommitted, record.Status)
		require.NotNil(t, record.CommittedAt)

		published := publisher.GetPublishedEvents()
		require.Len(t, published, 1)
		assert.Equal(t, events.EventGradeCommitted, published[0].Type)

		// a second commit is rejected and publishes nothing further
		_, err = service.Commit(ctx, "hist-2-unit3", "stu-1")
		assert.ErrorIs(t, err, ErrGradeAlreadyCommitted)
		assert.Len(t, publisher.GetPublishedEvents(), 1)
	})

	t.Run("missing grade", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		_, err := service.Commit(ctx, "hist-2-unit3", "ghost")
		assert.ErrorIs(t, err, ErrGradeNotFound)
	})
}

func TestGradeService_OverridePoints(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	t.Run("points derive the stored percentage", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo) // 40 points total
		seedGrade(repo, "hist-2-unit3", "stu-1", 85)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		record, err := service.OverridePoints(ctx, "hist-2-unit3", "stu-1", 30)
		require.NoError(t, err)
		assert.Equal(t, 75.0, record.Percentage)

		stored, err := repo.grades.GetByTestAndStudent(ctx, "hist-2-unit3", "stu-1")
		require.NoError(t, err)
		assert.Equal(t, 75.0, stored.Percentage)
	})

	t.Run("points are clamped to the scale", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedGrade(repo, "hist-2-unit3", "stu-1", 10)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		record, err := service.OverridePoints(ctx, "hist-2-unit3", "stu-1", 999)
		require.NoError(t, err)
		assert.Equal(t, 100.0, record.Percentage)

		record, err = service.OverridePoints(ctx, "hist-2-unit3", "stu-1", -5)
		require.NoError(t, err)
		assert.Equal(t, 0.0, record.Percentage)
	})

	t.Run("committed grades are immutable", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		record := seedGrade(repo, "hist-2-unit3", "stu-1", 85)
		record.Status = models.GradeCommitted
		require.NoError(t, repo.grades.Save(ctx, record))
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		_, err := service.OverridePoints(ctx, "hist-2-unit3", "stu-1", 20)
		assert.ErrorIs(t, err, ErrGradeAlreadyCommitted)
	})
}

func TestGradeService_LinkStudent(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	seedUnmatched := func(repo *fakeRepository) {
		entry := &models.ReviewHistoryEntry{
			TestID:         "hist-2-unit3",
			NameKey:        "maria perez",
			StudentName:    "Maria Perez",
			RawPoints:      34,
			RawPercent:     85,
			TotalPoints:    40,
			TotalQuestions: 2,
			StudentFound:   false,
			UploadedAt:     time.Now(),
		}
		require.NoError(t, repo.history.Upsert(ctx, entry))
	}

	t.Run("linking materializes the grade", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedUnmatched(repo)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		record, err := service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stu-1")
		require.NoError(t, err)
		assert.Equal(t, "stu-1", record.StudentID)
		assert.Equal(t, 85.0, record.Percentage)
		assert.Equal(t, models.GradePreliminary, record.Status)

		entry, err := repo.history.GetByNameKey(ctx, "hist-2-unit3", "maria perez")
		require.NoError(t, err)
		require.NotNil(t, entry.StudentID)
		assert.Equal(t, "stu-1", *entry.StudentID)
		assert.True(t, entry.StudentFound)
	})

	t.Run("re-linking the same student is a no-op", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedUnmatched(repo)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		first, err := service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stu-1")
		require.NoError(t, err)

		again, err := service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stu-1")
		require.NoError(t, err)
		assert.Equal(t, first.StudentID, again.StudentID)
		assert.Equal(t, first.Percentage, again.Percentage)
	})

	t.Run("sheet already linked to someone else", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedUnmatched(repo)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		_, err := service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stu-1")
		require.NoError(t, err)

		var ruleErr *BusinessRuleError
		_, err = service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stu-2")
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, "link_student", ruleErr.Rule)
	})

	t.Run("student outside the roster", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		seedUnmatched(repo)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		_, err := service.LinkStudent(ctx, "hist-2-unit3", "maria perez", "stranger")
		assert.ErrorIs(t, err, ErrStudentUnmatched)
	})

	t.Run("unknown sheet", func(t *testing.T) {
		repo := newFakeRepository()
		seedDefinition(repo)
		service := NewGradeService(repo, sectionRoster(), events.NewMockEventPublisher(logger), logger)

		_, err := service.LinkStudent(ctx, "hist-2-unit3", "nadie", "stu-1")
		assert.ErrorIs(t, err, ErrHistoryNotFound)
	})
}
