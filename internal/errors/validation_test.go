package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("total_points", "must not be negative", -10)

	assert.Equal(t, "total_points", err.Field)
	assert.Equal(t, "must not be negative", err.Message)
	assert.Equal(t, -10, err.Value)
	assert.Equal(t, "validation error on field 'total_points': must not be negative", err.Error())
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("test_id", "is required", nil))
	assert.Equal(t, "validation failed: test_id is required", errs.Error())

	errs = append(errs, *NewValidationError("questions", "at least one question is required", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("percentage", "must be between 0 and 100", "max", 120)

	assert.Equal(t, "max", err.Rule)
	assert.Equal(t, "percentage", err.Field)
	assert.Equal(t, 120, err.Value)
}
