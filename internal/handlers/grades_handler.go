package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/repositories"
	"github.com/smart-student/grading-service/internal/services"
	"github.com/smart-student/grading-service/internal/utils"
	"github.com/smart-student/grading-service/internal/validator"
)

// GradesHandler exposes grade record management: review, commit, manual
// overrides, late student linking and spreadsheet import/export.
type GradesHandler struct {
	BaseHandler
	grades       services.GradeService
	importExport services.ImportExportService
	validator    *validator.Validator
}

type OverridePointsRequest struct {
	Points float64 `json:"points" validate:"min=0"`
}

type LinkStudentRequest struct {
	NameKey   string `json:"name_key" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

func NewGradesHandler(
	grades services.GradeService,
	importExport services.ImportExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *GradesHandler {
	return &GradesHandler{
		BaseHandler:  NewBaseHandler(logger),
		grades:       grades,
		importExport: importExport,
		validator:    validator,
	}
}

// GetGrade returns one student's grade for a test
// @Summary Get grade
// @Tags grades
// @Produce json
// @Param test_id path string true "Test ID"
// @Param student_id path string true "Student ID"
// @Success 200 {object} SuccessResponse{data=models.GradeRecord}
// @Failure 404 {object} ErrorResponse
// @Router /grades/{test_id}/{student_id} [get]
func (h *GradesHandler) GetGrade(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	record, err := h.grades.GetGrade(c.Request.Context(), testID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: record})
}

// ListGrades returns all grades for a test
// @Summary List grades
// @Tags grades
// @Produce json
// @Param test_id path string true "Test ID"
// @Success 200 {object} PaginatedResponse
// @Router /grades/{test_id} [get]
func (h *GradesHandler) ListGrades(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	limit, offset := ParsePagination(c)
	filters := repositories.GradeFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "student_name"),
		SortOrder: c.DefaultQuery("sort_order", "asc"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.GradeStatus(raw)
		filters.Status = &status
	}

	records, total, err := h.grades.ListGrades(c.Request.Context(), testID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:   records,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// ListHistory returns the review history for a test
// @Summary List review history
// @Tags grades
// @Produce json
// @Param test_id path string true "Test ID"
// @Success 200 {object} PaginatedResponse
// @Router /grades/{test_id}/history [get]
func (h *GradesHandler) ListHistory(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	limit, offset := ParsePagination(c)
	filters := repositories.HistoryFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "uploaded_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if raw := c.Query("student_id"); raw != "" {
		filters.StudentID = &raw
	}

	entries, total, err := h.grades.ListHistory(c.Request.Context(), testID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:   entries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetStats returns aggregate grade statistics for a test
// @Summary Grade statistics
// @Tags grades
// @Produce json
// @Param test_id path string true "Test ID"
// @Success 200 {object} SuccessResponse{data=repositories.GradeStats}
// @Router /grades/{test_id}/stats [get]
func (h *GradesHandler) GetStats(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	stats, err := h.grades.Stats(c.Request.Context(), testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: stats})
}

// CommitGrade finalizes a preliminary grade
// @Summary Commit grade
// @Tags grades
// @Produce json
// @Param test_id path string true "Test ID"
// @Param student_id path string true "Student ID"
// @Success 200 {object} SuccessResponse{data=models.GradeRecord}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /grades/{test_id}/{student_id}/commit [post]
func (h *GradesHandler) CommitGrade(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Committing grade", "test_id", testID, "student_id", studentID)

	record, err := h.grades.Commit(c.Request.Context(), testID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Grade committed", record)
}

// OverridePoints replaces a grade with a manually awarded score
// @Summary Override grade
// @Tags grades
// @Accept json
// @Produce json
// @Param test_id path string true "Test ID"
// @Param student_id path string true "Student ID"
// @Param override body OverridePointsRequest true "Manual points"
// @Success 200 {object} SuccessResponse{data=models.GradeRecord}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /grades/{test_id}/{student_id} [put]
func (h *GradesHandler) OverridePoints(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	var req OverridePointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	record, err := h.grades.OverridePoints(c.Request.Context(), testID, studentID, req.Points)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Grade overridden", record)
}

// LinkStudent attaches a roster student to an unmatched graded sheet
// @Summary Link student
// @Tags grades
// @Accept json
// @Produce json
// @Param test_id path string true "Test ID"
// @Param link body LinkStudentRequest true "Name key and student"
// @Success 200 {object} SuccessResponse{data=models.GradeRecord}
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /grades/{test_id}/link [post]
func (h *GradesHandler) LinkStudent(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	var req LinkStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Linking student to sheet",
		"test_id", testID,
		"name_key", req.NameKey,
		"student_id", req.StudentID)

	record, err := h.grades.LinkStudent(c.Request.Context(), testID, req.NameKey, req.StudentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Student linked", record)
}

// ImportGrades bulk-loads grades from an uploaded spreadsheet
// @Summary Import grades
// @Tags grades
// @Accept multipart/form-data
// @Produce json
// @Param test_id path string true "Test ID"
// @Param file formData file true "Spreadsheet (.xlsx or .csv)"
// @Success 200 {object} SuccessResponse{data=models.GradeImportSummary}
// @Failure 400 {object} ErrorResponse
// @Router /grades/{test_id}/import [post]
func (h *GradesHandler) ImportGrades(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing file",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Importing grades", "test_id", testID, "filename", fileHeader.Filename)

	file, err := fileHeader.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Cannot open uploaded file", err)
		return
	}
	defer file.Close()

	summary, err := h.importExport.ImportGradesFromFile(c.Request.Context(), file, fileHeader.Filename, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Import finished", summary)
}

// ExportGrades streams the grade sheet as an Excel workbook or CSV
// @Summary Export grades
// @Tags grades
// @Produce application/octet-stream
// @Param test_id path string true "Test ID"
// @Param format query string false "xlsx or csv" default(xlsx)
// @Param template query bool false "Export an empty planilla instead"
// @Success 200 {file} binary
// @Router /grades/{test_id}/export [get]
func (h *GradesHandler) ExportGrades(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	format := c.DefaultQuery("format", "xlsx")
	template := c.Query("template") == "true"

	var (
		data        []byte
		err         error
		contentType string
		extension   string
	)
	switch {
	case template:
		data, err = h.importExport.ExportTemplate(c.Request.Context(), testID)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		extension = "xlsx"
	case format == "csv":
		data, err = h.importExport.ExportGradesToCSV(c.Request.Context(), testID)
		contentType = "text/csv"
		extension = "csv"
	default:
		data, err = h.importExport.ExportGradesToExcel(c.Request.Context(), testID)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		extension = "xlsx"
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("grades-%s-%s.%s", testID, time.Now().Format("20060102"), extension)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func (h *GradesHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrGradeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Grade not found",
		})
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Test not found",
		})
	case errors.Is(err, services.ErrHistoryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "No graded sheet found for that name",
		})
	case errors.Is(err, services.ErrGradeAlreadyCommitted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Grade is already committed",
		})
	case errors.Is(err, services.ErrStudentUnmatched):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Student is not in the section roster",
		})
	case errors.Is(err, services.ErrRubricMissing):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Test has no point scale",
		})
	case errors.Is(err, services.ErrImportFileUnsupported):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Unsupported file format",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
