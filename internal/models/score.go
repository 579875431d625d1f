package models

// Verdict is the per-question outcome. Unanswered is distinct from incorrect
// and never counts against the student beyond earning zero points.
type Verdict string

const (
	VerdictCorrect    Verdict = "correct"
	VerdictIncorrect  Verdict = "incorrect"
	VerdictUnanswered Verdict = "unanswered"
)

// QuestionScore is the scored outcome for one question
type QuestionScore struct {
	Ordinal  int          `json:"ordinal"`
	Type     QuestionType `json:"type"`
	Verdict  Verdict      `json:"verdict"`
	Points   float64      `json:"points"`
	Detected *string      `json:"detected,omitempty"`
	Evidence string       `json:"evidence,omitempty"`
}

// TypeBreakdown aggregates outcomes per question type
type TypeBreakdown struct {
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// ScoreResult is the full scoring outcome for one student's sheet
type ScoreResult struct {
	Questions   []QuestionScore                `json:"questions"`
	ByType      map[QuestionType]TypeBreakdown `json:"by_type"`
	RawPoints   float64                        `json:"raw_points"`
	TotalPoints float64                        `json:"total_points"`
	Percentage  float64                        `json:"percentage"`
}

// AnsweredCount returns how many questions carried a detected value
func (r *ScoreResult) AnsweredCount() int {
	count := 0
	for _, q := range r.Questions {
		if q.Verdict != VerdictUnanswered {
			count++
		}
	}
	return count
}

// CorrectCount returns how many questions were scored correct
func (r *ScoreResult) CorrectCount() int {
	count := 0
	for _, q := range r.Questions {
		if q.Verdict == VerdictCorrect {
			count++
		}
	}
	return count
}
