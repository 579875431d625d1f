package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smart-student/grading-service/internal/models"
)

// The vision model returns a loosely structured JSON envelope: field names
// vary between runs (q/questionNum, val/detected) and the payload is often
// wrapped in markdown fences. Everything here normalizes that envelope into
// typed answers; a malformed response degrades to "no answers detected",
// never to an error that would fail the run.

type looseAnswer struct {
	Q           *int    `json:"q"`
	QuestionNum *int    `json:"questionNum"`
	Ordinal     *int    `json:"ordinal"`
	Type        string  `json:"type"`
	Evidence    string  `json:"evidence"`
	Val         *string `json:"val"`
	Detected    *string `json:"detected"`
	Value       *string `json:"value"`
}

type looseEnvelope struct {
	Answers        []looseAnswer `json:"answers"`
	StudentName    string        `json:"studentName"`
	Rut            string        `json:"rut"`
	Registration   string        `json:"registration"`
	QuestionsFound int           `json:"questionsFound"`
	Confidence     float64       `json:"confidence"`
}

type loosePageIdentity struct {
	PageIndex     *int   `json:"pageIndex"`
	Page          *int   `json:"page"`
	StudentName   string `json:"studentName"`
	Name          string `json:"name"`
	Rut           string `json:"rut"`
	Registration  string `json:"registration"`
	FirstQuestion *int   `json:"firstQuestion"`
	Student       *struct {
		Name string `json:"name"`
		Rut  string `json:"rut"`
	} `json:"student"`
}

// extractJSON strips markdown fences and trims to the outermost JSON object
func extractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return raw[start : end+1], nil
}

// decodeEnvelope parses a model response into the loose envelope
func decodeEnvelope(raw string) (*looseEnvelope, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var env looseEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// ordinal resolves the question number across its alias fields
func (a *looseAnswer) ordinal() int {
	switch {
	case a.Q != nil:
		return *a.Q
	case a.QuestionNum != nil:
		return *a.QuestionNum
	case a.Ordinal != nil:
		return *a.Ordinal
	}
	return 0
}

// detected resolves the detected value across its alias fields
func (a *looseAnswer) detected() *string {
	for _, v := range []*string{a.Detected, a.Val, a.Value} {
		if v != nil && strings.TrimSpace(*v) != "" {
			trimmed := strings.TrimSpace(*v)
			return &trimmed
		}
	}
	return nil
}

// normalizeAnswers converts the loose envelope into typed extracted answers,
// dropping entries with no usable ordinal
func normalizeAnswers(env *looseEnvelope, source models.AnswerSource) []models.ExtractedAnswer {
	answers := make([]models.ExtractedAnswer, 0, len(env.Answers))
	for _, la := range env.Answers {
		ordinal := la.ordinal()
		if ordinal <= 0 {
			continue
		}
		answers = append(answers, models.ExtractedAnswer{
			Ordinal:  ordinal,
			Type:     models.QuestionType(strings.ToLower(strings.TrimSpace(la.Type))),
			Detected: la.detected(),
			Evidence: strings.TrimSpace(la.Evidence),
			Source:   source,
		})
	}
	return answers
}

// registration resolves the registration number across its alias fields
func (e *looseEnvelope) registration() string {
	if e.Rut != "" {
		return e.Rut
	}
	return e.Registration
}

func (id *loosePageIdentity) pageIndex(fallback int) int {
	switch {
	case id.PageIndex != nil:
		return *id.PageIndex
	case id.Page != nil:
		return *id.Page
	}
	return fallback
}

func (id *loosePageIdentity) name() string {
	if id.Student != nil && id.Student.Name != "" {
		return id.Student.Name
	}
	if id.StudentName != "" {
		return id.StudentName
	}
	return id.Name
}

func (id *loosePageIdentity) registrationNumber() string {
	if id.Student != nil && id.Student.Rut != "" {
		return id.Student.Rut
	}
	if id.Rut != "" {
		return id.Rut
	}
	return id.Registration
}
