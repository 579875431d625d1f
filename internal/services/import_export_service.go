package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"github.com/smart-student/grading-service/internal/roster"
	"github.com/xuri/excelize/v2"
)

// ImportExportService moves grades in and out of the service as spreadsheet
// files, for teachers who correct sheets by hand or keep a parallel planilla
type ImportExportService interface {
	ImportGradesFromFile(ctx context.Context, file multipart.File, filename, testID string) (*models.GradeImportSummary, error)
	ImportGradesFromCSV(ctx context.Context, reader io.Reader, testID string) (*models.GradeImportSummary, error)
	ImportGradesFromExcel(ctx context.Context, reader io.Reader, testID string) (*models.GradeImportSummary, error)

	ExportGradesToExcel(ctx context.Context, testID string) ([]byte, error)
	ExportGradesToCSV(ctx context.Context, testID string) ([]byte, error)
	ExportTemplate(ctx context.Context, testID string) ([]byte, error)
}

type importExportService struct {
	repo   repositories.Repository
	roster roster.Provider
	logger *slog.Logger
}

func NewImportExportService(repo repositories.Repository, rosterProvider roster.Provider, logger *slog.Logger) ImportExportService {
	return &importExportService{
		repo:   repo,
		roster: rosterProvider,
		logger: logger,
	}
}

// ===== IMPORT OPERATIONS =====

func (s *importExportService) ImportGradesFromFile(ctx context.Context, file multipart.File, filename, testID string) (*models.GradeImportSummary, error) {
	s.logger.Info("Starting grade import", "filename", filename, "test_id", testID)

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return s.ImportGradesFromCSV(ctx, file, testID)
	case ".xlsx", ".xlsm":
		return s.ImportGradesFromExcel(ctx, file, testID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrImportFileUnsupported, ext)
	}
}

func (s *importExportService) ImportGradesFromCSV(ctx context.Context, reader io.Reader, testID string) (*models.GradeImportSummary, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return s.importRows(ctx, records, testID)
}

func (s *importExportService) ImportGradesFromExcel(ctx context.Context, reader io.Reader, testID string) (*models.GradeImportSummary, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("file", "Excel file has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	return s.importRows(ctx, rows, testID)
}

// importRows is the shared row pipeline for both file formats. Exported
// files carry banner rows above the header, so the header row is discovered
// by content rather than assumed to be first.
func (s *importExportService) importRows(ctx context.Context, rows [][]string, testID string) (*models.GradeImportSummary, error) {
	start := time.Now()

	def, err := s.repo.TestDefinitions().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test definition: %w", err)
	}
	total := def.EffectiveTotalPoints()

	headerIndex, columns := findHeaderRow(rows)
	if headerIndex < 0 {
		return nil, NewValidationError("headers", "no header row found: need at least an id or student column", nil)
	}

	students, err := s.roster.Students(ctx, def.SectionID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	byID := make(map[string]*models.StudentRecord, len(students))
	byName := make(map[string]*models.StudentRecord, len(students))
	for i := range students {
		byID[students[i].ID] = &students[i]
		byName[strings.ToLower(strings.TrimSpace(students[i].Name))] = &students[i]
	}

	summary := &models.GradeImportSummary{}

	for i := headerIndex + 1; i < len(rows); i++ {
		rowNumber := i + 1
		parsed, rowErr := parseGradeRow(rows[i], columns, rowNumber)
		if rowErr != nil {
			summary.Errors = append(summary.Errors, *rowErr)
			summary.Skipped++
			summary.TotalRows++
			continue
		}
		if parsed == nil {
			continue // blank row
		}
		summary.TotalRows++

		student := resolveStudent(parsed, byID, byName)
		if student == nil {
			summary.Errors = append(summary.Errors, models.ImportRowError{
				Row:     rowNumber,
				Message: fmt.Sprintf("student not found in roster: %s", parsed.DisplayKey()),
			})
			summary.Skipped++
			continue
		}

		percentage, rowErr := resolvePercentage(parsed, total, rowNumber)
		if rowErr != nil {
			summary.Errors = append(summary.Errors, *rowErr)
			summary.Skipped++
			continue
		}

		record := &models.GradeRecord{
			TestID:      testID,
			StudentID:   student.ID,
			StudentName: student.Name,
			Percentage:  percentage,
			Status:      models.GradePreliminary,
			GradedAt:    time.Now(),
		}
		created, err := s.repo.Grades().Upsert(ctx, record)
		if err != nil {
			summary.Errors = append(summary.Errors, models.ImportRowError{
				Row:     rowNumber,
				Message: fmt.Sprintf("failed to save grade: %v", err),
			})
			summary.Skipped++
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	summary.ProcessingTime = time.Since(start)
	s.logger.Info("Grade import finished",
		"test_id", testID,
		"total_rows", summary.TotalRows,
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped)
	return summary, nil
}

// gradeColumns maps the recognized columns to their positions in the header
type gradeColumns struct {
	ID         int
	Name       int
	Points     int
	Percentage int
}

var columnAliases = map[string]func(*gradeColumns, int){
	"id":         func(c *gradeColumns, i int) { c.ID = i },
	"student id": func(c *gradeColumns, i int) { c.ID = i },
	"student":    func(c *gradeColumns, i int) { c.Name = i },
	"name":       func(c *gradeColumns, i int) { c.Name = i },
	"nombre":     func(c *gradeColumns, i int) { c.Name = i },
	"estudiante": func(c *gradeColumns, i int) { c.Name = i },
	"points":     func(c *gradeColumns, i int) { c.Points = i },
	"puntos":     func(c *gradeColumns, i int) { c.Points = i },
	"puntaje":    func(c *gradeColumns, i int) { c.Points = i },
	"percentage": func(c *gradeColumns, i int) { c.Percentage = i },
	"porcentaje": func(c *gradeColumns, i int) { c.Percentage = i },
	"%":          func(c *gradeColumns, i int) { c.Percentage = i },
}

// findHeaderRow scans the leading rows for one that names at least an id or
// student column plus a score column
func findHeaderRow(rows [][]string) (int, gradeColumns) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		columns := gradeColumns{ID: -1, Name: -1, Points: -1, Percentage: -1}
		for col, cell := range rows[i] {
			key := strings.ToLower(strings.TrimSpace(cell))
			if set, ok := columnAliases[key]; ok {
				set(&columns, col)
			}
		}
		if (columns.ID >= 0 || columns.Name >= 0) && (columns.Points >= 0 || columns.Percentage >= 0) {
			return i, columns
		}
	}
	return -1, gradeColumns{}
}

// parseGradeRow reads one data row. Blank rows return (nil, nil); when both
// score columns are filled the percentage wins, since exported files carry a
// derived points column next to the stored percentage.
func parseGradeRow(row []string, columns gradeColumns, rowNumber int) (*models.GradeImportRow, *models.ImportRowError) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	parsed := &models.GradeImportRow{
		Row:       rowNumber,
		StudentID: cell(columns.ID),
		Name:      cell(columns.Name),
	}
	pointsRaw := cell(columns.Points)
	percentRaw := cell(columns.Percentage)

	if parsed.StudentID == "" && parsed.Name == "" && pointsRaw == "" && percentRaw == "" {
		return nil, nil
	}
	if parsed.StudentID == "" && parsed.Name == "" {
		return nil, &models.ImportRowError{Row: rowNumber, Message: "row has a score but no student"}
	}

	if pointsRaw != "" {
		v, err := parseNumber(pointsRaw)
		if err != nil {
			return nil, &models.ImportRowError{Row: rowNumber, Message: fmt.Sprintf("invalid points value %q", pointsRaw)}
		}
		parsed.Points = &v
	}
	if percentRaw != "" {
		v, err := parseNumber(percentRaw)
		if err != nil {
			return nil, &models.ImportRowError{Row: rowNumber, Message: fmt.Sprintf("invalid percentage value %q", percentRaw)}
		}
		parsed.Percentage = &v
	}

	if parsed.Points != nil && parsed.Percentage != nil {
		parsed.Points = nil
	}
	if parsed.Points == nil && parsed.Percentage == nil {
		return nil, &models.ImportRowError{Row: rowNumber, Message: "row has neither points nor percentage"}
	}
	return parsed, nil
}

// parseNumber accepts decimal comma and a trailing percent sign, both common
// in hand-edited planillas
func parseNumber(raw string) (float64, error) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return strconv.ParseFloat(cleaned, 64)
}

func resolveStudent(row *models.GradeImportRow, byID, byName map[string]*models.StudentRecord) *models.StudentRecord {
	if row.StudentID != "" {
		if student, ok := byID[row.StudentID]; ok {
			return student
		}
	}
	if row.Name != "" {
		if student, ok := byName[strings.ToLower(strings.TrimSpace(row.Name))]; ok {
			return student
		}
	}
	return nil
}

func resolvePercentage(row *models.GradeImportRow, totalPoints float64, rowNumber int) (float64, *models.ImportRowError) {
	if row.Percentage != nil {
		p := *row.Percentage
		if p < 0 || p > 100 {
			return 0, &models.ImportRowError{Row: rowNumber, Message: fmt.Sprintf("percentage %.2f out of range 0-100", p)}
		}
		return math.Round(p), nil
	}
	points := *row.Points
	if points < 0 || points > totalPoints {
		return 0, &models.ImportRowError{Row: rowNumber, Message: fmt.Sprintf("points %.2f out of range 0-%.2f", points, totalPoints)}
	}
	if totalPoints <= 0 {
		return 0, &models.ImportRowError{Row: rowNumber, Message: "test has no point scale, import percentage instead"}
	}
	return math.Round(points / totalPoints * 100), nil
}

// ===== EXPORT OPERATIONS =====

var exportHeaders = []string{"ID", "Student", "Points", "Percentage"}

func (s *importExportService) ExportGradesToExcel(ctx context.Context, testID string) ([]byte, error) {
	def, grades, err := s.loadForExport(ctx, testID)
	if err != nil {
		return nil, err
	}
	return s.writeWorkbook(def.Title, grades, def.EffectiveTotalPoints())
}

// ExportTemplate produces the same workbook with the roster pre-filled and
// the score columns empty, for use as a hand-grading planilla
func (s *importExportService) ExportTemplate(ctx context.Context, testID string) ([]byte, error) {
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

	grades := make([]*models.GradeRecord, 0, len(students))
	for i := range students {
		grades = append(grades, &models.GradeRecord{
			StudentID:   students[i].ID,
			StudentName: students[i].Name,
		})
	}
	return s.writeWorkbook(def.Title, grades, -1)
}

func (s *importExportService) ExportGradesToCSV(ctx context.Context, testID string) ([]byte, error) {
	def, grades, err := s.loadForExport(ctx, testID)
	if err != nil {
		return nil, err
	}
	total := def.EffectiveTotalPoints()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	for _, grade := range grades {
		record := []string{
			grade.StudentID,
			grade.StudentName,
			formatPoints(grade.Percentage, total),
			strconv.FormatFloat(grade.Percentage, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *importExportService) loadForExport(ctx context.Context, testID string) (*models.TestDefinition, []*models.GradeRecord, error) {
	def, err := s.repo.TestDefinitions().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrTestNotFound
		}
		return nil, nil, fmt.Errorf("load test definition: %w", err)
	}

	grades, _, err := s.repo.Grades().ListByTest(ctx, testID, repositories.GradeFilters{
		SortBy:    "student_name",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list grades: %w", err)
	}
	return def, grades, nil
}

// writeWorkbook lays out the grade sheet: two banner rows, a blank spacer,
// the header row, then one row per student. totalPoints < 0 leaves the score
// columns empty (template mode).
func (s *importExportService) writeWorkbook(title string, grades []*models.GradeRecord, totalPoints float64) ([]byte, error) {
	f := excelize.NewFile()
	sheetName := "Grades"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	f.SetCellValue(sheetName, "A1", title)
	f.SetCellValue(sheetName, "A2", fmt.Sprintf("Exported %s", time.Now().Format("2006-01-02 15:04")))

	headerRow := 4
	for i, header := range exportHeaders {
		cell := fmt.Sprintf("%c%d", 'A'+i, headerRow)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, grade := range grades {
		row := headerRow + 1 + rowIndex
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), grade.StudentID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), grade.StudentName)
		if totalPoints >= 0 {
			f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), formatPoints(grade.Percentage, totalPoints))
			f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), grade.Percentage)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// formatPoints derives display points from the stored percentage
func formatPoints(percentage, totalPoints float64) string {
	if totalPoints <= 0 {
		return ""
	}
	points := percentage / 100 * totalPoints
	return strconv.FormatFloat(math.Round(points*100)/100, 'f', -1, 64)
}
