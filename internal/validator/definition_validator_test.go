package validator

import (
	"testing"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func keyedQuestion(ordinal int, answer bool) models.Question {
	return models.Question{Ordinal: ordinal, Type: models.TrueFalse, Answer: &answer}
}

func definitionWith(questions ...models.Question) *models.TestDefinition {
	return &models.TestDefinition{
		ID:          "hist-2-unit3",
		Title:       "Historia Unidad 3",
		Questions:   datatypes.NewJSONType(questions),
		TotalPoints: 40,
	}
}

func TestDefinitionValidator(t *testing.T) {
	v := NewDefinitionValidator()

	t.Run("coherent definition passes", func(t *testing.T) {
		idx := 1
		def := definitionWith(
			keyedQuestion(1, true),
			models.Question{Ordinal: 2, Type: models.SingleChoice, CorrectIndex: &idx, Options: []models.Option{
				{Text: "Valparaíso"}, {Text: "Santiago"},
			}},
			models.Question{Ordinal: 3, Type: models.MultipleSelect, Options: []models.Option{
				{Text: "Argentina", Correct: true}, {Text: "Brasil"},
			}},
			models.Question{Ordinal: 4, Type: models.Development},
		)
		assert.Empty(t, v.Validate(def))
	})

	t.Run("no questions at all", func(t *testing.T) {
		errs := v.Validate(definitionWith())
		require.Len(t, errs, 1)
		assert.Equal(t, "questions", errs[0].Field)
	})

	t.Run("true/false without a keyed answer", func(t *testing.T) {
		def := definitionWith(models.Question{Ordinal: 1, Type: models.TrueFalse})
		errs := v.Validate(def)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Message, "keyed answer")
	})

	t.Run("single choice with an out-of-range key", func(t *testing.T) {
		idx := 5
		def := definitionWith(models.Question{
			Ordinal: 1, Type: models.SingleChoice, CorrectIndex: &idx,
			Options: []models.Option{{Text: "a"}, {Text: "b"}},
		})
		errs := v.Validate(def)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Message, "correct index")
	})

	t.Run("multiple select with nothing flagged", func(t *testing.T) {
		def := definitionWith(models.Question{
			Ordinal: 1, Type: models.MultipleSelect,
			Options: []models.Option{{Text: "a"}, {Text: "b"}},
		})
		errs := v.Validate(def)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Message, "flagged correct")
	})

	t.Run("ordinals must match position", func(t *testing.T) {
		def := definitionWith(keyedQuestion(1, true), keyedQuestion(3, false))
		errs := v.Validate(def)
		require.Len(t, errs, 1)
		assert.Equal(t, "questions[1].ordinal", errs[0].Field)
	})

	t.Run("weight out of range", func(t *testing.T) {
		def := definitionWith(keyedQuestion(1, true))
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse: 150,
		})
		errs := v.Validate(def)
		require.Len(t, errs, 1)
		assert.Equal(t, "weights[tf]", errs[0].Field)
	})
}
