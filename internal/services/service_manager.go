package services

import (
	"log/slog"

	"github.com/smart-student/grading-service/internal/document"
	"github.com/smart-student/grading-service/internal/events"
	"github.com/smart-student/grading-service/internal/extraction"
	"github.com/smart-student/grading-service/internal/repositories"
	"github.com/smart-student/grading-service/internal/roster"
	"github.com/smart-student/grading-service/internal/scoring"
	"github.com/smart-student/grading-service/internal/vision"
)

// ServiceManager is the single injection point the HTTP layer depends on
type ServiceManager interface {
	Pipeline() GradingPipeline
	Grades() GradeService
	ImportExport() ImportExportService
}

type serviceManager struct {
	pipeline     GradingPipeline
	grades       GradeService
	importExport ImportExportService
}

// ServiceManagerDeps carries everything the services need. All fields are
// required; wiring happens once in main.
type ServiceManagerDeps struct {
	Repo      repositories.Repository
	Roster    roster.Provider
	Preparer  *document.Preparer
	Extractor *extraction.Engine
	Scorer    *scoring.Scorer
	Vision    vision.Client
	Publisher events.EventPublisher
	Logger    *slog.Logger
}

func NewServiceManager(deps ServiceManagerDeps) ServiceManager {
	return &serviceManager{
		pipeline: NewGradingPipeline(
			deps.Repo,
			deps.Roster,
			deps.Preparer,
			deps.Extractor,
			deps.Scorer,
			deps.Vision,
			deps.Publisher,
			deps.Logger,
		),
		grades:       NewGradeService(deps.Repo, deps.Roster, deps.Publisher, deps.Logger),
		importExport: NewImportExportService(deps.Repo, deps.Roster, deps.Logger),
	}
}

func (m *serviceManager) Pipeline() GradingPipeline { return m.pipeline }

func (m *serviceManager) Grades() GradeService { return m.grades }

func (m *serviceManager) ImportExport() ImportExportService { return m.importExport }
