package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// QuestionType identifies how a question is answered and scored
type QuestionType string

const (
	TrueFalse      QuestionType = "tf"
	SingleChoice   QuestionType = "mc"
	MultipleSelect QuestionType = "ms"
	Development    QuestionType = "des"
)

// AllQuestionTypes lists every supported question type in rubric order
var AllQuestionTypes = []QuestionType{TrueFalse, SingleChoice, MultipleSelect, Development}

// Option is a selectable alternative of a choice question
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// Question is a tagged union over QuestionType. Which fields are meaningful
// depends on Type:
//   - tf:  Answer holds the expected truth value
//   - mc:  Options holds the alternatives, CorrectIndex the single key
//   - ms:  Options holds the alternatives, each flagged Correct or not
//   - des: Prompt holds the writing prompt, nothing is auto-keyed
type Question struct {
	Ordinal      int          `json:"ordinal"` // 1-based position in the test
	Type         QuestionType `json:"type"`
	Text         string       `json:"text"`
	Answer       *bool        `json:"answer,omitempty"`
	Options      []Option     `json:"options,omitempty"`
	CorrectIndex *int         `json:"correct_index,omitempty"`
	Prompt       string       `json:"prompt,omitempty"`
}

// OptionLetter returns the display letter for a 0-based option index ("A"...)
func OptionLetter(index int) string {
	return string(rune('A' + index))
}

// CorrectLetter returns the keyed option letter for a single-choice question
func (q *Question) CorrectLetter() (string, error) {
	if q.Type != SingleChoice {
		return "", fmt.Errorf("question %d is not single-choice", q.Ordinal)
	}
	if q.CorrectIndex == nil || *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
		return "", fmt.Errorf("question %d has no valid correct index", q.Ordinal)
	}
	return OptionLetter(*q.CorrectIndex), nil
}

// CorrectLetters returns the set of keyed option letters for a multiple-select question
func (q *Question) CorrectLetters() map[string]bool {
	letters := make(map[string]bool)
	if q.Type != MultipleSelect {
		return letters
	}
	for i, opt := range q.Options {
		if opt.Correct {
			letters[OptionLetter(i)] = true
		}
	}
	return letters
}

// TestDefinition is the machine-readable description of a test: its ordered
// questions plus the rubric (total points and per-type weights)
type TestDefinition struct {
	ID          string                                       `json:"id" gorm:"primaryKey;size:64"`
	Title       string                                       `json:"title" gorm:"size:200" validate:"required,max=200"`
	CourseID    string                                       `json:"course_id" gorm:"size:64;index"`
	SectionID   string                                       `json:"section_id" gorm:"size:64;index"`
	Subject     string                                       `json:"subject" gorm:"size:100"`
	Topic       string                                       `json:"topic" gorm:"size:200"`
	Questions   datatypes.JSONType[[]Question]               `json:"questions"`
	TotalPoints float64                                      `json:"total_points" validate:"gte=0"`
	Weights     datatypes.JSONType[map[QuestionType]float64] `json:"weights"`
	CreatedAt   time.Time                                    `json:"created_at"`
	UpdatedAt   time.Time                                    `json:"updated_at"`
}

func (TestDefinition) TableName() string {
	return "test_definitions"
}

// QuestionList returns the ordered questions of the test
func (t *TestDefinition) QuestionList() []Question {
	return t.Questions.Data()
}

// WeightMap returns the configured per-type weights (possibly empty)
func (t *TestDefinition) WeightMap() map[QuestionType]float64 {
	return t.Weights.Data()
}

// EffectiveTotalPoints resolves the point scale: a zero or negative total
// falls back to one point per question
func (t *TestDefinition) EffectiveTotalPoints() float64 {
	if t.TotalPoints > 0 {
		return t.TotalPoints
	}
	return float64(len(t.QuestionList()))
}

// TypeCounts returns how many questions of each type the test contains
func (t *TestDefinition) TypeCounts() map[QuestionType]int {
	counts := make(map[QuestionType]int)
	for _, q := range t.QuestionList() {
		counts[q.Type]++
	}
	return counts
}
