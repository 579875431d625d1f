package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smart-student/grading-service/internal/models"
)

// Validator combines struct-tag validation with definition-level checks
type Validator struct {
	structValidator     *validator.Validate
	definitionValidator *DefinitionValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:     structValidator,
		definitionValidator: NewDefinitionValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// ValidateDefinition checks a test definition for internal coherence
func (v *Validator) ValidateDefinition(def *models.TestDefinition) ValidationErrors {
	return v.definitionValidator.Validate(def)
}

// Validate performs complete validation (struct + definition rules when applicable)
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		return err
	}

	if def, ok := s.(*models.TestDefinition); ok {
		if errors := v.ValidateDefinition(def); len(errors) > 0 {
			return errors
		}
	}

	return nil
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", validateQuestionType)
	validate.RegisterValidation("grade_status", validateGradeStatus)
	validate.RegisterValidation("weight_range", validateWeightRange)
	validate.RegisterValidation("percentage", validatePercentage)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validation functions

func validateQuestionType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, validType := range models.AllQuestionTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

func validateGradeStatus(fl validator.FieldLevel) bool {
	switch models.GradeStatus(fl.Field().String()) {
	case models.GradePreliminary, models.GradeCommitted:
		return true
	}
	return false
}

func validateWeightRange(fl validator.FieldLevel) bool {
	value := fl.Field().Float()
	return value >= 0 && value <= 100
}

func validatePercentage(fl validator.FieldLevel) bool {
	value := fl.Field().Float()
	return value >= 0 && value <= 100
}
