package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/smart-student/grading-service/internal/services"
	"github.com/smart-student/grading-service/internal/utils"
	"github.com/smart-student/grading-service/internal/validator"
)

type HandlerManager struct {
	gradingHandler *GradingHandler
	gradesHandler  *GradesHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		gradingHandler: NewGradingHandler(serviceManager.Pipeline(), logger),
		gradesHandler:  NewGradesHandler(serviceManager.Grades(), serviceManager.ImportExport(), validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Grading run routes
		grading := v1.Group("/grading")
		{
			grading.POST("/runs", hm.gradingHandler.RunGrading)
			grading.GET("/runs/:id", hm.gradingHandler.GetRun)
		}

		// Grade record routes
		grades := v1.Group("/grades")
		{
			grades.GET("/:test_id", hm.gradesHandler.ListGrades)
			grades.GET("/:test_id/history", hm.gradesHandler.ListHistory)
			grades.GET("/:test_id/stats", hm.gradesHandler.GetStats)
			grades.GET("/:test_id/export", hm.gradesHandler.ExportGrades)
			grades.POST("/:test_id/import", hm.gradesHandler.ImportGrades)
			grades.POST("/:test_id/link", hm.gradesHandler.LinkStudent)
			grades.GET("/:test_id/:student_id", hm.gradesHandler.GetGrade)
			grades.PUT("/:test_id/:student_id", hm.gradesHandler.OverridePoints)
			grades.POST("/:test_id/:student_id/commit", hm.gradesHandler.CommitGrade)
		}
	}
}
