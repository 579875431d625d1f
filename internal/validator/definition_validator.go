package validator

import (
	"fmt"

	"github.com/smart-student/grading-service/internal/errors"
	"github.com/smart-student/grading-service/internal/models"
)

// DefinitionValidator checks a test definition for internal coherence before
// it is used as a grading rubric
type DefinitionValidator struct{}

// NewDefinitionValidator creates a new definition validator
func NewDefinitionValidator() *DefinitionValidator {
	return &DefinitionValidator{}
}

// Validate checks the whole definition: at least one question, per-question
// key coherence, and weight ranges
func (v *DefinitionValidator) Validate(def *models.TestDefinition) ValidationErrors {
	var errs ValidationErrors

	questions := def.QuestionList()
	if len(questions) == 0 {
		errs = append(errs, *errors.NewValidationError("questions", "must contain at least one question", nil))
		return errs
	}

	for i, q := range questions {
		if err := v.ValidateQuestion(&q); err != nil {
			errs = append(errs, *errors.NewValidationError(
				fmt.Sprintf("questions[%d]", i), err.Error(), q.Ordinal))
		}
		if q.Ordinal != i+1 {
			errs = append(errs, *errors.NewValidationError(
				fmt.Sprintf("questions[%d].ordinal", i),
				fmt.Sprintf("must equal the 1-based position %d", i+1), q.Ordinal))
		}
	}

	for qt, weight := range def.WeightMap() {
		if weight < 0 || weight > 100 {
			errs = append(errs, *errors.NewValidationError(
				fmt.Sprintf("weights[%s]", qt), "must be between 0 and 100", weight))
		}
	}

	if def.TotalPoints < 0 {
		errs = append(errs, *errors.NewValidationError("total_points", "must be zero or positive", def.TotalPoints))
	}

	return errs
}

// ValidateQuestion checks a single question against its type
func (v *DefinitionValidator) ValidateQuestion(q *models.Question) error {
	switch q.Type {
	case models.TrueFalse:
		if q.Answer == nil {
			return fmt.Errorf("true/false question %d has no keyed answer", q.Ordinal)
		}
	case models.SingleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("single-choice question %d needs at least two options", q.Ordinal)
		}
		if q.CorrectIndex == nil || *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("single-choice question %d has no valid correct index", q.Ordinal)
		}
	case models.MultipleSelect:
		if len(q.Options) < 2 {
			return fmt.Errorf("multiple-select question %d needs at least two options", q.Ordinal)
		}
		if len(q.CorrectLetters()) == 0 {
			return fmt.Errorf("multiple-select question %d has no option flagged correct", q.Ordinal)
		}
	case models.Development:
		// nothing machine-keyed to check
	default:
		return fmt.Errorf("unsupported question type: %s", q.Type)
	}
	return nil
}
