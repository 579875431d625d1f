package extraction

import (
	"strings"

	"github.com/smart-student/grading-service/internal/models"
)

// The vision model sometimes reports a value for a question whose evidence
// says the opposite ("EMPTY, both boxes blank"). Trusting the value over
// the evidence is how hallucinated answers get graded, so the guard runs on
// every vision response before anything else sees it: evidence describing an
// empty question forces the detected value back to nil. A false negative
// costs a manual review; a false positive costs a wrong grade.

// emptyEvidenceMarkers are substrings that mark evidence as describing an
// unanswered question
var emptyEvidenceMarkers = []string{
	"no mark",
	"no answer",
	"no visible",
	"sin marca",
	"sin respuesta",
	"both blank",
	"ambos vacios",
	"ambos en blanco",
	"weak_mark",
}

// EvidenceIndicatesEmpty reports whether an evidence string describes a
// question that was actually left blank
func EvidenceIndicatesEmpty(evidence string) bool {
	trimmed := strings.TrimSpace(evidence)
	if strings.HasPrefix(strings.ToUpper(trimmed), "EMPTY") {
		return true
	}
	folded := strings.ToLower(foldEvidence(trimmed))
	for _, marker := range emptyEvidenceMarkers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}

// Sanitize applies the anti-hallucination guard to a batch of answers,
// forcing Detected to nil wherever the evidence indicates an empty question
func Sanitize(answers []models.ExtractedAnswer) []models.ExtractedAnswer {
	for i := range answers {
		if answers[i].Detected != nil && EvidenceIndicatesEmpty(answers[i].Evidence) {
			answers[i].Detected = nil
		}
	}
	return answers
}

var evidenceFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
)

func foldEvidence(s string) string {
	return evidenceFolder.Replace(s)
}
