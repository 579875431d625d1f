package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smart-student/grading-service/internal/events"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"github.com/smart-student/grading-service/internal/roster"
)

// GradeService manages the lifecycle of grade records after a run:
// review, manual correction, late student linking and the final commit.
type GradeService interface {
	GetGrade(ctx context.Context, testID, studentID string) (*models.GradeRecord, error)
	ListGrades(ctx context.Context, testID string, filters repositories.GradeFilters) ([]*models.GradeRecord, int64, error)
	ListHistory(ctx context.Context, testID string, filters repositories.HistoryFilters) ([]*models.ReviewHistoryEntry, int64, error)
	Stats(ctx context.Context, testID string) (*repositories.GradeStats, error)
	Commit(ctx context.Context, testID, studentID string) (*models.GradeRecord, error)
	OverridePoints(ctx context.Context, testID, studentID string, points float64) (*models.GradeRecord, error)
	LinkStudent(ctx context.Context, testID, nameKey, studentID string) (*models.GradeRecord, error)
}

type gradeService struct {
	repo      repositories.Repository
	roster    roster.Provider
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewGradeService(repo repositories.Repository, rosterProvider roster.Provider, publisher events.EventPublisher, logger *slog.Logger) GradeService {
	return &gradeService{
		repo:      repo,
		roster:    rosterProvider,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *gradeService) GetGrade(ctx context.Context, testID, studentID string) (*models.GradeRecord, error) {
	record, err := s.repo.Grades().GetByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGradeNotFound
		}
		return nil, fmt.Errorf("load grade: %w", err)
	}
	return record, nil
}

func (s *gradeService) ListGrades(ctx context.Context, testID string, filters repositories.GradeFilters) ([]*models.GradeRecord, int64, error) {
	return s.repo.Grades().ListByTest(ctx, testID, filters)
}

func (s *gradeService) ListHistory(ctx context.Context, testID string, filters repositories.HistoryFilters) ([]*models.ReviewHistoryEntry, int64, error) {
	return s.repo.History().ListByTest(ctx, testID, filters)
}

func (s *gradeService) Stats(ctx context.Context, testID string) (*repositories.GradeStats, error) {
	return s.repo.Grades().Stats(ctx, testID)
}

// Commit flips a preliminary grade to committed and announces it. Committing
// twice is rejected, so downstream consumers see exactly one event per grade.
func (s *gradeService) Commit(ctx context.Context, testID, studentID string) (*models.GradeRecord, error) {
	record, err := s.GetGrade(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.GradeCommitted {
		return nil, ErrGradeAlreadyCommitted
	}

	now := time.Now()
	record.Status = models.GradeCommitted
	record.CommittedAt = &now
	if err := s.repo.Grades().Save(ctx, record); err != nil {
		return nil, fmt.Errorf("commit grade: %w", err)
	}

	def, err := s.repo.TestDefinitions().GetByID(ctx, testID)
	title := ""
	if err == nil {
		title = def.Title
	}

	s.logger.Info("grade committed",
		"test_id", testID,
		"student_id", studentID,
		"percentage", record.Percentage)

	if err := s.publisher.PublishNotificationEvent(ctx, events.NewGradeCommittedEvent(
		testID, title, studentID, record.StudentName, record.Percentage, now)); err != nil {
		s.logger.Warn("failed to publish grade committed event",
			"test_id", testID,
			"student_id", studentID,
			"error", err)
	}

	return record, nil
}

// OverridePoints replaces a grade with a manually awarded raw score. Points
// are clamped to the test's total; the stored grade keeps only the derived
// percentage while the raw value lands in the review history.
func (s *gradeService) OverridePoints(ctx context.Context, testID, studentID string, points float64) (*models.GradeRecord, error) {
	record, err := s.GetGrade(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.GradeCommitted {
		return nil, ErrGradeAlreadyCommitted
	}

	def, err := s.repo.TestDefinitions().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test definition: %w", err)
	}

	total := def.EffectiveTotalPoints()
	if total <= 0 {
		return nil, ErrRubricMissing
	}
	if points < 0 {
		points = 0
	}
	if points > total {
		points = total
	}

	record.Percentage = math.Round(points / total * 100)
	if err := s.repo.Grades().Save(ctx, record); err != nil {
		return nil, fmt.Errorf("override grade: %w", err)
	}

	s.updateHistoryPoints(ctx, testID, studentID, points, record.Percentage, total)

	s.logger.Info("grade overridden",
		"test_id", testID,
		"student_id", studentID,
		"points", points,
		"percentage", record.Percentage)
	return record, nil
}

func (s *gradeService) updateHistoryPoints(ctx context.Context, testID, studentID string, points, percentage, total float64) {
	filters := repositories.HistoryFilters{StudentID: &studentID, Limit: 1}
	entries, _, err := s.repo.History().ListByTest(ctx, testID, filters)
	if err != nil || len(entries) == 0 {
		s.logger.Warn("no review history to update after override",
			"test_id", testID,
			"student_id", studentID)
		return
	}
	entry := entries[0]
	entry.RawPoints = points
	entry.RawPercent = percentage
	entry.TotalPoints = total
	if err := s.repo.History().Upsert(ctx, entry); err != nil {
		s.logger.Warn("failed to update review history after override",
			"test_id", testID,
			"student_id", studentID,
			"error", err)
	}
}

// LinkStudent attaches a roster student to an unmatched graded sheet and
// materializes its grade record from the recorded analysis.
func (s *gradeService) LinkStudent(ctx context.Context, testID, nameKey, studentID string) (*models.GradeRecord, error) {
	entry, err := s.repo.History().GetByNameKey(ctx, testID, nameKey)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("load review history: %w", err)
	}
	if entry.StudentID != nil && *entry.StudentID != studentID {
		return nil, NewBusinessRuleError("link_student", "sheet is already linked to another student", map[string]interface{}{
			"test_id":  testID,
			"name_key": nameKey,
		})
	}

	alreadyLinked := entry.StudentID != nil
	if alreadyLinked {
		// re-linking the same student is a no-op
		record, err := s.GetGrade(ctx, testID, studentID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrGradeNotFound) {
			return nil, err
		}
		// the grade record is gone, rebuild it from the history entry
	}

	student, err := s.findStudent(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	if !alreadyLinked {
		if err := s.repo.History().AssignStudent(ctx, testID, nameKey, studentID); err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrHistoryNotFound
			}
			return nil, fmt.Errorf("assign student: %w", err)
		}
	}

	record := &models.GradeRecord{
		TestID:      testID,
		StudentID:   studentID,
		StudentName: student.Name,
		Percentage:  entry.RawPercent,
		Status:      models.GradePreliminary,
		GradedAt:    entry.UploadedAt,
	}
	if _, err := s.repo.Grades().Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("persist linked grade: %w", err)
	}

	s.logger.Info("unmatched sheet linked to student",
		"test_id", testID,
		"name_key", nameKey,
		"student_id", studentID)
	return record, nil
}

func (s *gradeService) findStudent(ctx context.Context, testID, studentID string) (*models.StudentRecord, error) {
	def, err := s.repo.TestDefinitions().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test definition: %w", err)
	}
	students, err := s.roster.Students(ctx, def.SectionID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	for i := range students {
		if students[i].ID == studentID {
			return &students[i], nil
		}
	}
	return nil, ErrStudentUnmatched
}
