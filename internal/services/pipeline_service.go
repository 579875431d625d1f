package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/smart-student/grading-service/internal/document"
	"github.com/smart-student/grading-service/internal/events"
	"github.com/smart-student/grading-service/internal/extraction"
	"github.com/smart-student/grading-service/internal/identify"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"github.com/smart-student/grading-service/internal/roster"
	"github.com/smart-student/grading-service/internal/scoring"
	"github.com/smart-student/grading-service/internal/validator"
	"github.com/smart-student/grading-service/internal/vision"
)

// RunRequest describes one grading run over an uploaded document
type RunRequest struct {
	TestID   string
	Document document.Document
	// Batch enables the identify-then-grade two-pass mode for documents
	// holding several students' sheets
	Batch bool
	// Progress, when set, is called after each student with (done, total)
	Progress func(done, total int)
}

// StudentResult is the outcome for one student's sheet within a run
type StudentResult struct {
	Group models.PageGroup    `json:"group"`
	Score *models.ScoreResult `json:"score,omitempty"`
	Grade *models.GradeRecord `json:"grade,omitempty"`
	Error string              `json:"error,omitempty"`
}

// RunResult is the full outcome of a grading run
type RunResult struct {
	RunID     string          `json:"run_id"`
	TestID    string          `json:"test_id"`
	Results   []StudentResult `json:"results"`
	Unmatched int             `json:"unmatched"`
	Cancelled bool            `json:"cancelled"`
}

// RunState is the lifecycle phase of an observable run
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
	RunFailed    RunState = "failed"
)

// RunStatus is the observable progress of a run
type RunStatus struct {
	ID          string     `json:"id"`
	TestID      string     `json:"test_id"`
	State       RunState   `json:"state"`
	Current     int        `json:"current"`
	Total       int        `json:"total"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// GradingPipeline orchestrates a full run: prepare, identify, extract,
// score, persist. Students are processed strictly sequentially and
// cancellation takes effect between students; grades already written stay
// written.
type GradingPipeline interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	GetRun(ctx context.Context, runID string) (*RunStatus, error)
}

type gradingPipeline struct {
	repo      repositories.Repository
	roster    roster.Provider
	preparer  *document.Preparer
	extractor *extraction.Engine
	scorer    *scoring.Scorer
	vision    vision.Client
	publisher events.EventPublisher
	defCheck  *validator.DefinitionValidator
	logger    *slog.Logger
	runs      *runRegistry
}

func NewGradingPipeline(
	repo repositories.Repository,
	rosterProvider roster.Provider,
	preparer *document.Preparer,
	extractor *extraction.Engine,
	scorer *scoring.Scorer,
	visionClient vision.Client,
	publisher events.EventPublisher,
	logger *slog.Logger,
) GradingPipeline {
	return &gradingPipeline{
		repo:      repo,
		roster:    rosterProvider,
		preparer:  preparer,
		extractor: extractor,
		scorer:    scorer,
		vision:    visionClient,
		publisher: publisher,
		defCheck:  validator.NewDefinitionValidator(),
		logger:    logger,
		runs:      newRunRegistry(),
	}
}

func (s *gradingPipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	def, err := s.repo.TestDefinitions().GetByID(ctx, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test definition: %w", err)
	}
	if len(def.QuestionList()) == 0 {
		return nil, ErrRubricMissing
	}
	if issues := s.defCheck.Validate(def); len(issues) > 0 {
		s.logger.Warn("test definition is not gradable",
			"test_id", def.ID,
			"issues", issues.Error())
		return nil, issues
	}

	pages, err := s.preparer.Prepare(ctx, req.Document)
	if err != nil {
		return nil, err
	}

	matcher := s.buildMatcher(ctx, def.SectionID)
	groups := s.groupPages(ctx, pages, req, matcher)

	runID := watermill.NewUUID()
	s.runs.start(runID, req.TestID, len(groups))

	result := &RunResult{RunID: runID, TestID: req.TestID}

	for i := range groups {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("run cancelled between students",
				"run_id", runID,
				"graded", i,
				"total", len(groups))
			result.Cancelled = true
			s.runs.finish(runID, RunCancelled, "")
			return result, nil
		}

		result.Results = append(result.Results, s.gradeStudent(ctx, def, groups[i], runID))
		s.runs.progress(runID, i+1)
		if req.Progress != nil {
			req.Progress(i+1, len(groups))
		}
	}

	for _, r := range result.Results {
		if r.Group.Student == nil {
			result.Unmatched++
		}
	}

	if req.Batch {
		if err := s.publisher.PublishNotificationEvent(ctx, events.NewBatchCompletedEvent(
			def.ID, def.Title, len(result.Results)-result.Unmatched, result.Unmatched)); err != nil {
			s.logger.Warn("failed to publish batch completed event", "run_id", runID, "error", err)
		}
	}

	s.runs.finish(runID, RunCompleted, "")
	return result, nil
}

func (s *gradingPipeline) GetRun(ctx context.Context, runID string) (*RunStatus, error) {
	if status, ok := s.runs.get(runID); ok {
		return status, nil
	}
	return nil, ErrRunNotFound
}

// buildMatcher loads the roster for the test's section. A roster outage
// degrades to unmatched groups rather than failing the run.
func (s *gradingPipeline) buildMatcher(ctx context.Context, sectionID string) *identify.Matcher {
	students, err := s.roster.Students(ctx, sectionID)
	if err != nil {
		s.logger.Warn("roster unavailable, grading without student matching",
			"section_id", sectionID,
			"error", err)
		students = nil
	}
	return identify.NewMatcher(students)
}

// groupPages partitions pages per student. Batch mode runs the identify-only
// vision pass; when that pass is unavailable the document is treated as one
// student's sheet.
func (s *gradingPipeline) groupPages(ctx context.Context, pages []models.PageImage, req RunRequest, matcher *identify.Matcher) []models.PageGroup {
	if !req.Batch {
		return []models.PageGroup{identify.SingleGroup(pages, req.Document.Filename, matcher)}
	}

	identities, err := s.vision.IdentifyPages(ctx, pages)
	if err != nil {
		if errors.Is(err, vision.ErrUnavailable) {
			s.logger.Warn("identify pass unavailable, treating document as a single sheet", "error", err)
			return []models.PageGroup{identify.SingleGroup(pages, req.Document.Filename, matcher)}
		}
		s.logger.Warn("identify pass failed, treating document as a single sheet", "error", err)
		return []models.PageGroup{identify.SingleGroup(pages, req.Document.Filename, matcher)}
	}
	return identify.GroupPages(pages, identities, matcher)
}

// gradeStudent runs extraction and scoring for one group and persists the
// outcome. Errors grade nothing but never abort the remaining students.
func (s *gradingPipeline) gradeStudent(ctx context.Context, def *models.TestDefinition, group models.PageGroup, runID string) StudentResult {
	result := StudentResult{Group: group}

	answers, err := s.extractor.Extract(ctx, group, def)
	if err != nil {
		s.logger.Error("extraction failed",
			"run_id", runID,
			"student", group.DisplayName(),
			"error", err)
		result.Error = err.Error()
		return result
	}

	score, err := s.scorer.Score(def, answers)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Score = score

	entry := s.historyEntry(def, group, score, answers)
	if err := s.repo.History().Upsert(ctx, entry); err != nil {
		s.logger.Error("failed to record review history",
			"run_id", runID,
			"student", group.DisplayName(),
			"error", err)
	}

	if group.Student == nil {
		s.logger.Info("sheet graded without roster match",
			"run_id", runID,
			"detected_name", group.DetectedName,
			"percentage", score.Percentage)
		if err := s.publisher.PublishNotificationEvent(ctx, events.NewManualReviewRequiredEvent(
			def.ID, def.Title, group.DetectedName, score.Percentage)); err != nil {
			s.logger.Warn("failed to publish review required event", "run_id", runID, "error", err)
		}
		return result
	}

	record := &models.GradeRecord{
		TestID:      def.ID,
		StudentID:   group.Student.ID,
		StudentName: group.Student.Name,
		Percentage:  score.Percentage,
		Status:      models.GradePreliminary,
		GradedAt:    time.Now(),
	}
	if _, err := s.repo.Grades().Upsert(ctx, record); err != nil {
		s.logger.Error("failed to persist grade",
			"run_id", runID,
			"student_id", group.Student.ID,
			"error", err)
		result.Error = err.Error()
		return result
	}
	result.Grade = record
	return result
}

// historyEntry assembles the audit entry for one graded sheet
func (s *gradingPipeline) historyEntry(def *models.TestDefinition, group models.PageGroup, score *models.ScoreResult, answers []models.ExtractedAnswer) *models.ReviewHistoryEntry {
	withEvidence := 0
	for _, a := range answers {
		if a.Evidence != "" {
			withEvidence++
		}
	}
	coverage := 0.0
	if len(answers) > 0 {
		coverage = float64(withEvidence) / float64(len(answers))
	}

	entry := &models.ReviewHistoryEntry{
		TestID:         def.ID,
		NameKey:        identify.NormalizeName(group.DisplayName()),
		StudentName:    group.DisplayName(),
		RawPoints:      score.RawPoints,
		RawPercent:     score.Percentage,
		TotalPoints:    score.TotalPoints,
		TotalQuestions: len(score.Questions),
		AnsweredCount:  score.AnsweredCount(),
		Coverage:       coverage,
		StudentFound:   group.Student != nil,
		UploadedAt:     time.Now(),
	}
	if group.Student != nil {
		id := group.Student.ID
		entry.StudentID = &id
		entry.NameKey = identify.NormalizeName(group.Student.Name)
	}
	return entry
}

// ===== RUN REGISTRY =====

// runRegistry tracks run progress in memory. Run status is operational
// telemetry for the upload UI, not durable state.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*RunStatus)}
}

func (r *runRegistry) start(id, testID string, total int) *RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := &RunStatus{
		ID:        id,
		TestID:    testID,
		State:     RunRunning,
		Total:     total,
		StartedAt: time.Now(),
	}
	r.runs[id] = status
	return status
}

func (r *runRegistry) progress(id string, current int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.runs[id]; ok {
		status.Current = current
	}
}

func (r *runRegistry) finish(id string, state RunState, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.runs[id]; ok {
		status.State = state
		status.Error = errMsg
		now := time.Now()
		status.CompletedAt = &now
	}
}

func (r *runRegistry) get(id string) (*RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.runs[id]
	if !ok {
		return nil, false
	}
	copied := *status
	return &copied, true
}
