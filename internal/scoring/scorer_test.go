package scoring

import (
	"testing"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func boolPtr(v bool) *bool    { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func choiceOptions(n int) []models.Option {
	options := make([]models.Option, n)
	for i := range options {
		options[i] = models.Option{Text: string(rune('a' + i))}
	}
	return options
}

// historyTest builds the rubric used throughout: 4 tf, 4 mc and 2 ms
// questions over 100 points, weighted 40/40/20
func historyTest() *models.TestDefinition {
	questions := []models.Question{
		{Ordinal: 1, Type: models.TrueFalse, Answer: boolPtr(true)},
		{Ordinal: 2, Type: models.TrueFalse, Answer: boolPtr(false)},
		{Ordinal: 3, Type: models.TrueFalse, Answer: boolPtr(true)},
		{Ordinal: 4, Type: models.TrueFalse, Answer: boolPtr(false)},
		{Ordinal: 5, Type: models.SingleChoice, Options: choiceOptions(4), CorrectIndex: intPtr(0)},
		{Ordinal: 6, Type: models.SingleChoice, Options: choiceOptions(4), CorrectIndex: intPtr(1)},
		{Ordinal: 7, Type: models.SingleChoice, Options: choiceOptions(4), CorrectIndex: intPtr(2)},
		{Ordinal: 8, Type: models.SingleChoice, Options: choiceOptions(4), CorrectIndex: intPtr(3)},
		{Ordinal: 9, Type: models.MultipleSelect, Options: []models.Option{
			{Text: "a", Correct: true}, {Text: "b"}, {Text: "c", Correct: true},
		}},
		{Ordinal: 10, Type: models.MultipleSelect, Options: []models.Option{
			{Text: "a"}, {Text: "b", Correct: true}, {Text: "c"},
		}},
	}
	return &models.TestDefinition{
		ID:          "hist-2-unit3",
		Title:       "Historia Unidad 3",
		Questions:   datatypes.NewJSONType(questions),
		TotalPoints: 100,
		Weights: datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse:      40,
			models.SingleChoice:   40,
			models.MultipleSelect: 20,
		}),
	}
}

func answered(ordinal int, qt models.QuestionType, value string) models.ExtractedAnswer {
	return models.ExtractedAnswer{
		Ordinal:  ordinal,
		Type:     qt,
		Detected: strPtr(value),
		Evidence: "mark at " + value,
		Source:   models.SourceNativeText,
	}
}

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer(utils.NewDevelopmentLogger())

	t.Run("full marks", func(t *testing.T) {
		answers := []models.ExtractedAnswer{
			answered(1, models.TrueFalse, "V"),
			answered(2, models.TrueFalse, "F"),
			answered(3, models.TrueFalse, "V"),
			answered(4, models.TrueFalse, "F"),
			answered(5, models.SingleChoice, "A"),
			answered(6, models.SingleChoice, "B"),
			answered(7, models.SingleChoice, "C"),
			answered(8, models.SingleChoice, "D"),
			answered(9, models.MultipleSelect, "A,C"),
			answered(10, models.MultipleSelect, "B"),
		}

		result, err := scorer.Score(historyTest(), answers)
		require.NoError(t, err)
		assert.Equal(t, 100.0, result.Percentage)
		assert.Equal(t, 100.0, result.RawPoints)
		assert.Equal(t, 10, result.CorrectCount())
	})

	t.Run("mixed sheet", func(t *testing.T) {
		// 3/4 tf, 2/4 mc, 1/2 ms: 30 + 20 + 10 = 60 points
		answers := []models.ExtractedAnswer{
			answered(1, models.TrueFalse, "V"),
			answered(2, models.TrueFalse, "F"),
			answered(3, models.TrueFalse, "F"), // wrong
			answered(4, models.TrueFalse, "F"),
			answered(5, models.SingleChoice, "A"),
			answered(6, models.SingleChoice, "B"),
			answered(7, models.SingleChoice, "A"), // wrong
			answered(9, models.MultipleSelect, "A,C"),
		}

		result, err := scorer.Score(historyTest(), answers)
		require.NoError(t, err)
		assert.Equal(t, 60.0, result.RawPoints)
		assert.Equal(t, 60.0, result.Percentage)
	})

	t.Run("unanswered is not incorrect", func(t *testing.T) {
		result, err := scorer.Score(historyTest(), nil)
		require.NoError(t, err)

		assert.Equal(t, 0.0, result.Percentage)
		for _, qs := range result.Questions {
			assert.Equal(t, models.VerdictUnanswered, qs.Verdict)
		}
		for _, breakdown := range result.ByType {
			assert.Zero(t, breakdown.Incorrect)
		}
	})

	t.Run("invalid detected value scores as unanswered", func(t *testing.T) {
		answers := []models.ExtractedAnswer{
			answered(1, models.TrueFalse, "X"),
			answered(5, models.SingleChoice, "Z"),
		}

		result, err := scorer.Score(historyTest(), answers)
		require.NoError(t, err)
		assert.Equal(t, models.VerdictUnanswered, result.Questions[0].Verdict)
		assert.Equal(t, models.VerdictUnanswered, result.Questions[4].Verdict)
		assert.Equal(t, 0.0, result.RawPoints)
	})

	t.Run("multiple select demands the exact set", func(t *testing.T) {
		cases := map[string]models.Verdict{
			"A,C":   models.VerdictCorrect,
			"A":     models.VerdictIncorrect, // missing one
			"A,B,C": models.VerdictIncorrect, // one stray
			"B":     models.VerdictIncorrect,
		}
		for detected, want := range cases {
			result, err := scorer.Score(historyTest(), []models.ExtractedAnswer{
				answered(9, models.MultipleSelect, detected),
			})
			require.NoError(t, err)
			assert.Equal(t, want, result.Questions[8].Verdict, "detected %q", detected)
		}
	})

	t.Run("development answers need a minimum of text", func(t *testing.T) {
		def := &models.TestDefinition{
			ID: "essay-1",
			Questions: datatypes.NewJSONType([]models.Question{
				{Ordinal: 1, Type: models.Development, Prompt: "Explain the causes"},
			}),
			TotalPoints: 10,
		}

		result, err := scorer.Score(def, []models.ExtractedAnswer{
			answered(1, models.Development, "Because the economy collapsed"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.VerdictCorrect, result.Questions[0].Verdict)

		result, err = scorer.Score(def, []models.ExtractedAnswer{
			answered(1, models.Development, "ok"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.VerdictUnanswered, result.Questions[0].Verdict)
	})

	t.Run("no questions", func(t *testing.T) {
		_, err := scorer.Score(&models.TestDefinition{ID: "empty"}, nil)
		assert.ErrorIs(t, err, ErrNoQuestions)
	})
}

func TestPointsPerQuestion(t *testing.T) {
	logger := utils.NewDevelopmentLogger()

	t.Run("weighted pools", func(t *testing.T) {
		perQuestion := PointsPerQuestion(historyTest(), logger)
		assert.Equal(t, 10.0, perQuestion[models.TrueFalse])
		assert.Equal(t, 10.0, perQuestion[models.SingleChoice])
		assert.Equal(t, 10.0, perQuestion[models.MultipleSelect])
	})

	t.Run("inactive types drop out of the pools", func(t *testing.T) {
		// des is weighted but has no questions, so the three active types
		// renormalize over 75: tf and mc get 8.33 per question, ms 16.67
		def := historyTest()
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse:      25,
			models.SingleChoice:   25,
			models.MultipleSelect: 25,
			models.Development:    25,
		})

		perQuestion := PointsPerQuestion(def, logger)
		assert.InDelta(t, 100.0/3/4, perQuestion[models.TrueFalse], 0.01)
		assert.InDelta(t, 100.0/3/4, perQuestion[models.SingleChoice], 0.01)
		assert.InDelta(t, 100.0/3/2, perQuestion[models.MultipleSelect], 0.01)
		assert.NotContains(t, perQuestion, models.Development)

		scorer := NewScorer(logger)
		answers := []models.ExtractedAnswer{
			answered(1, models.TrueFalse, "V"),
			answered(2, models.TrueFalse, "F"),
			answered(3, models.TrueFalse, "V"),
			answered(4, models.TrueFalse, "F"),
			answered(5, models.SingleChoice, "A"),
			answered(6, models.SingleChoice, "B"),
			answered(7, models.SingleChoice, "C"),
			answered(8, models.SingleChoice, "D"),
		}
		result, err := scorer.Score(def, answers)
		require.NoError(t, err)
		assert.Equal(t, 67.0, result.RawPoints)
		assert.Equal(t, 67.0, result.Percentage)
	})

	t.Run("missing weight assumes the default", func(t *testing.T) {
		def := historyTest()
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse:    40,
			models.SingleChoice: 40,
			// ms weight omitted: assumed 25, sum 105
		})

		perQuestion := PointsPerQuestion(def, logger)
		assert.InDelta(t, 100*40.0/105/4, perQuestion[models.TrueFalse], 0.001)
		assert.InDelta(t, 100*25.0/105/2, perQuestion[models.MultipleSelect], 0.001)
	})

	t.Run("explicit zero weight assumes the default too", func(t *testing.T) {
		def := historyTest()
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse:      0,
			models.SingleChoice:   50,
			models.MultipleSelect: 50,
		})

		// tf is active, so its zero becomes 25 and the sum renormalizes to 125
		perQuestion := PointsPerQuestion(def, logger)
		assert.InDelta(t, 100*25.0/125/4, perQuestion[models.TrueFalse], 0.001)
		assert.InDelta(t, 100*50.0/125/4, perQuestion[models.SingleChoice], 0.001)
		assert.InDelta(t, 100*50.0/125/2, perQuestion[models.MultipleSelect], 0.001)
	})

	t.Run("all-zero weights still split equally", func(t *testing.T) {
		def := historyTest()
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64{
			models.TrueFalse:      0,
			models.SingleChoice:   0,
			models.MultipleSelect: 0,
		})

		// every zero defaults to the same weight, so the split stays equal
		perQuestion := PointsPerQuestion(def, logger)
		assert.InDelta(t, 100.0/3/4, perQuestion[models.TrueFalse], 0.001)
		assert.InDelta(t, 100.0/3/2, perQuestion[models.MultipleSelect], 0.001)
	})

	t.Run("no rubric at all scores one point per question", func(t *testing.T) {
		def := historyTest()
		def.TotalPoints = 0
		def.Weights = datatypes.NewJSONType(map[models.QuestionType]float64(nil))

		perQuestion := PointsPerQuestion(def, logger)
		assert.Equal(t, 1.0, perQuestion[models.TrueFalse])
		assert.Equal(t, 1.0, perQuestion[models.SingleChoice])
		assert.Equal(t, 1.0, perQuestion[models.MultipleSelect])
	})
}
