package models

// AnswerSource identifies which extraction strategy produced an answer
type AnswerSource string

const (
	SourceNativeText    AnswerSource = "native-text"
	SourceVision        AnswerSource = "vision"
	SourceVisionRecheck AnswerSource = "vision-recheck"
	SourceEssayExtract  AnswerSource = "essay-extract"
)

// ExtractedAnswer is one detected answer for a question ordinal. Detected is
// nil when the question was left blank or the evidence did not support a
// value; a nil Detected is "unanswered", never "incorrect".
type ExtractedAnswer struct {
	Ordinal  int          `json:"ordinal"`
	Type     QuestionType `json:"type,omitempty"`
	Detected *string      `json:"detected,omitempty"`
	Evidence string       `json:"evidence,omitempty"`
	Source   AnswerSource `json:"source,omitempty"`
}

// Answered reports whether the answer carries an actual detected value
func (a *ExtractedAnswer) Answered() bool {
	return a.Detected != nil && *a.Detected != ""
}
