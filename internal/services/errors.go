package services

import (
	"errors"
	"fmt"

	"github.com/smart-student/grading-service/internal/document"
	apperrors "github.com/smart-student/grading-service/internal/errors"
	"github.com/smart-student/grading-service/internal/scoring"
	"github.com/smart-student/grading-service/internal/vision"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Pipeline errors. Document and vision failures originate in their own
	// packages; the aliases keep handler error mapping in one place.
	ErrDocumentUnreadable   = document.ErrUnreadable
	ErrVisionUnavailable    = vision.ErrUnavailable
	ErrStudentUnmatched     = errors.New("no roster student matched the detected header")
	ErrInvalidDetectedValue = errors.New("detected value outside the answer vocabulary")
	ErrRubricMissing        = scoring.ErrNoQuestions
	ErrRunNotFound          = errors.New("grading run not found")
	ErrRunCancelled         = errors.New("grading run cancelled")

	// Grade record errors
	ErrTestNotFound          = errors.New("test definition not found")
	ErrGradeNotFound         = errors.New("grade record not found")
	ErrGradeAlreadyCommitted = errors.New("grade record already committed")
	ErrHistoryNotFound       = errors.New("review history entry not found")

	// Import errors
	ErrImportRowInvalid      = errors.New("import row carries neither points nor percentage")
	ErrImportFileUnsupported = errors.New("unsupported import file format")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrGradeNotFound) ||
		errors.Is(err, ErrHistoryNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrGradeAlreadyCommitted)
}
