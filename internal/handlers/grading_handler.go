package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smart-student/grading-service/internal/document"
	"github.com/smart-student/grading-service/internal/services"
	"github.com/smart-student/grading-service/internal/utils"
)

// GradingHandler exposes the grading pipeline: upload a scanned document,
// run the analysis, observe run progress.
type GradingHandler struct {
	BaseHandler
	pipeline services.GradingPipeline
}

func NewGradingHandler(pipeline services.GradingPipeline, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler: NewBaseHandler(logger),
		pipeline:    pipeline,
	}
}

// RunGrading accepts a scanned answer-sheet document and grades it
// @Summary Run grading
// @Description Uploads a scanned document and grades every sheet in it
// @Tags grading
// @Accept multipart/form-data
// @Produce json
// @Param test_id formData string true "Test ID"
// @Param file formData file true "Scanned document (PDF or image)"
// @Param batch formData bool false "Treat the document as multiple students' sheets"
// @Success 200 {object} SuccessResponse{data=services.RunResult}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /grading/runs [post]
func (h *GradingHandler) RunGrading(c *gin.Context) {
	testID := c.PostForm("test_id")
	if testID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing test_id",
		})
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

	batch, _ := strconv.ParseBool(c.DefaultPostForm("batch", "false"))

	h.LogRequest(c, "Starting grading run",
		"test_id", testID,
		"filename", fileHeader.Filename,
		"size", fileHeader.Size,
		"batch", batch)

	file, err := fileHeader.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Cannot open uploaded file", err)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Cannot read uploaded file", err)
		return
	}

	doc := document.Document{Filename: fileHeader.Filename}
	// image uploads are already page rasters; everything else goes through
	// the configured page renderer
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".png", ".jpg", ".jpeg":
		doc.Pages = [][]byte{raw}
	default:
		doc.Raw = raw
	}

	result, err := h.pipeline.Run(c.Request.Context(), services.RunRequest{
		TestID:   testID,
		Document: doc,
		Batch:    batch,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Grading run completed", result)
}

// GetRun returns the progress of a grading run
// @Summary Get run status
// @Tags grading
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} SuccessResponse{data=services.RunStatus}
// @Failure 404 {object} ErrorResponse
// @Router /grading/runs/{id} [get]
func (h *GradingHandler) GetRun(c *gin.Context) {
	runID := ParseStringIDParam(c, "id")
	if runID == "" {
		return
	}

	status, err := h.pipeline.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: status})
}

func (h *GradingHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Test definition is not gradable",
			Details: validationErrors,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Test not found",
		})
	case errors.Is(err, services.ErrRunNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Run not found",
		})
	case errors.Is(err, services.ErrRubricMissing):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Test has no questions to grade against",
		})
	case errors.Is(err, services.ErrDocumentUnreadable):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Document could not be read",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrVisionUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Vision analysis is temporarily unavailable",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
