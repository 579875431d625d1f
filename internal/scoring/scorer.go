package scoring

import (
	"errors"
	"math"
	"strings"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
)

// ErrNoQuestions means the test definition carries nothing to grade against
var ErrNoQuestions = errors.New("test definition has no questions to grade against")

// Scorer is the pure scoring engine: extracted answers in, verdicts and a
// percentage out. It performs no I/O beyond logging invalid detections.
type Scorer struct {
	logger utils.Logger
}

// NewScorer creates a scorer
func NewScorer(logger utils.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Score grades one sheet's answers against the definition. Unanswered
// questions earn zero without counting as incorrect; a detected value outside
// the type's vocabulary is logged and scored as unanswered, never as a wrong
// answer the student did not give.
func (s *Scorer) Score(def *models.TestDefinition, answers []models.ExtractedAnswer) (*models.ScoreResult, error) {
	questions := def.QuestionList()
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	perQuestion := PointsPerQuestion(def, s.logger)
	byOrdinal := make(map[int]models.ExtractedAnswer, len(answers))
	for _, a := range answers {
		byOrdinal[a.Ordinal] = a
	}

	result := &models.ScoreResult{
		ByType: make(map[models.QuestionType]models.TypeBreakdown),
	}

	raw := 0.0
	for _, q := range questions {
		answer := byOrdinal[q.Ordinal]
		verdict := s.verdict(&q, answer)

		points := 0.0
		if verdict == models.VerdictCorrect {
			points = perQuestion[q.Type]
			raw += points
		}

		result.Questions = append(result.Questions, models.QuestionScore{
			Ordinal:  q.Ordinal,
			Type:     q.Type,
			Verdict:  verdict,
			Points:   points,
			Detected: answer.Detected,
			Evidence: answer.Evidence,
		})

		breakdown := result.ByType[q.Type]
		breakdown.Total++
		switch verdict {
		case models.VerdictCorrect:
			breakdown.Correct++
		case models.VerdictIncorrect:
			breakdown.Incorrect++
		default:
			breakdown.Unanswered++
		}
		result.ByType[q.Type] = breakdown
	}

	total := def.EffectiveTotalPoints()
	if raw > total {
		raw = total
	}

	result.TotalPoints = total
	// whole-point raw score; the percentage comes from the unrounded sum so
	// rounding is applied once, not twice
	result.RawPoints = math.Round(raw)
	if total > 0 {
		result.Percentage = math.Round(raw / total * 100)
	}
	return result, nil
}

// verdict decides the outcome for a single question
func (s *Scorer) verdict(q *models.Question, answer models.ExtractedAnswer) models.Verdict {
	if !answer.Answered() {
		return models.VerdictUnanswered
	}
	detected := strings.TrimSpace(*answer.Detected)

	switch q.Type {
	case models.TrueFalse:
		return s.verdictTrueFalse(q, detected)
	case models.SingleChoice:
		return s.verdictSingleChoice(q, detected)
	case models.MultipleSelect:
		return s.verdictMultipleSelect(q, detected)
	case models.Development:
		if len(detected) >= 5 {
			return models.VerdictCorrect
		}
		return models.VerdictUnanswered
	}
	return models.VerdictUnanswered
}

func (s *Scorer) verdictTrueFalse(q *models.Question, detected string) models.Verdict {
	value := strings.ToUpper(detected)
	if value != "V" && value != "F" {
		s.logInvalid(q, detected, "expected V or F")
		return models.VerdictUnanswered
	}
	if q.Answer == nil {
		return models.VerdictUnanswered
	}
	expected := "F"
	if *q.Answer {
		expected = "V"
	}
	if value == expected {
		return models.VerdictCorrect
	}
	return models.VerdictIncorrect
}

func (s *Scorer) verdictSingleChoice(q *models.Question, detected string) models.Verdict {
	letter := strings.ToUpper(detected)
	if len(letter) != 1 || letter[0] < 'A' || int(letter[0]-'A') >= len(q.Options) {
		s.logInvalid(q, detected, "not a valid option letter")
		return models.VerdictUnanswered
	}
	correct, err := q.CorrectLetter()
	if err != nil {
		return models.VerdictUnanswered
	}
	if letter == correct {
		return models.VerdictCorrect
	}
	return models.VerdictIncorrect
}

// verdictMultipleSelect requires exact set equality with the keyed options.
// There is no partial credit: one stray or missing selection scores zero.
func (s *Scorer) verdictMultipleSelect(q *models.Question, detected string) models.Verdict {
	selected := make(map[string]bool)
	for _, part := range strings.FieldsFunc(detected, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	}) {
		letter := strings.ToUpper(strings.TrimSpace(part))
		if len(letter) != 1 || letter[0] < 'A' || int(letter[0]-'A') >= len(q.Options) {
			s.logInvalid(q, detected, "selection outside the option range")
			return models.VerdictUnanswered
		}
		selected[letter] = true
	}
	if len(selected) == 0 {
		return models.VerdictUnanswered
	}

	correct := q.CorrectLetters()
	if len(selected) != len(correct) {
		return models.VerdictIncorrect
	}
	for letter := range correct {
		if !selected[letter] {
			return models.VerdictIncorrect
		}
	}
	return models.VerdictCorrect
}

func (s *Scorer) logInvalid(q *models.Question, detected, reason string) {
	s.logger.Warn("detected value outside the answer vocabulary, scoring as unanswered",
		"ordinal", q.Ordinal,
		"question_type", q.Type,
		"detected", detected,
		"reason", reason)
}
