package extraction

import (
	"context"
	"errors"
	"sort"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
	"github.com/smart-student/grading-service/internal/vision"
)

// minEssayLength is the shortest detected text accepted as a development
// answer before the dedicated extraction endpoint is consulted
const minEssayLength = 5

// Engine runs the layered answer extraction for one student's page group.
// Strategy order is fixed: native-text heuristics, full vision analysis,
// targeted re-verification, essay text extraction. Reconciliation lets the
// first strategy that produced an evidenced value win; later strategies only
// fill gaps.
type Engine struct {
	vision vision.Client
	text   TextStrategy
	logger utils.Logger
}

// NewEngine builds an extraction engine around a vision client
func NewEngine(client vision.Client, logger utils.Logger) *Engine {
	return &Engine{
		vision: client,
		logger: logger,
	}
}

// Extract produces one answer per question of the definition, in ordinal
// order. Questions nothing could resolve come back with a nil Detected:
// unanswered, never failed. Vision outages degrade to whatever the text
// heuristics found.
func (e *Engine) Extract(ctx context.Context, group models.PageGroup, def *models.TestDefinition) ([]models.ExtractedAnswer, error) {
	questions := def.QuestionList()
	resolved := make(map[int]models.ExtractedAnswer, len(questions))

	// 1. native-text heuristics, page by page
	for _, page := range group.Pages {
		merge(resolved, e.text.Extract(page, questions))
	}

	// 2. full vision analysis when gaps remain
	if len(missingOrdinals(resolved, questions)) > 0 {
		analysis, err := e.vision.Analyze(ctx, vision.AnalyzeRequest{
			Pages:     group.Pages,
			Questions: questions,
			Title:     def.Title,
			Subject:   def.Subject,
			Topic:     def.Topic,
		})
		switch {
		case errors.Is(err, vision.ErrUnavailable):
			e.logger.Warn("vision unavailable, keeping text-only extraction", "error", err)
		case err != nil:
			return nil, err
		default:
			merge(resolved, Sanitize(analysis.Answers))
		}
	}

	// 3. targeted re-verification: a solid prefix followed by silence usually
	// means the later questions were cropped or skimmed, so ask once more for
	// just the missing ordinals before accepting "no answer"
	if missing := missingOrdinals(resolved, questions); len(missing) > 0 && hasAnsweredPrefix(resolved, missing) {
		analysis, err := e.vision.Analyze(ctx, vision.AnalyzeRequest{
			Pages:         group.Pages,
			Questions:     questions,
			Title:         def.Title,
			Subject:       def.Subject,
			Topic:         def.Topic,
			FocusOrdinals: missing,
		})
		switch {
		case errors.Is(err, vision.ErrUnavailable):
			e.logger.Warn("vision unavailable for re-verification", "ordinals", missing)
		case err != nil:
			return nil, err
		default:
			merge(resolved, Sanitize(analysis.Answers))
		}
	}

	// 4. development questions with trivial text go through the dedicated
	// essay extraction endpoint
	e.extractEssays(ctx, group, questions, resolved)

	return orderedAnswers(resolved, questions), nil
}

// extractEssays fills development answers whose detected text is missing or
// too short to credit
func (e *Engine) extractEssays(ctx context.Context, group models.PageGroup, questions []models.Question, resolved map[int]models.ExtractedAnswer) {
	for _, q := range questions {
		if q.Type != models.Development {
			continue
		}
		if current, ok := resolved[q.Ordinal]; ok && current.Answered() && len(*current.Detected) >= minEssayLength {
			continue
		}

		for _, page := range group.Pages {
			result, err := e.vision.ExtractEssayText(ctx, vision.EssayRequest{
				Page:    page,
				Ordinal: q.Ordinal,
				Prompt:  q.Prompt,
			})
			if err != nil {
				e.logger.Warn("essay extraction failed",
					"ordinal", q.Ordinal,
					"page", page.Index,
					"error", err)
				continue
			}
			if !result.Success || len(result.ExtractedText) < minEssayLength {
				continue
			}

			text := result.ExtractedText
			resolved[q.Ordinal] = models.ExtractedAnswer{
				Ordinal:  q.Ordinal,
				Type:     q.Type,
				Detected: &text,
				Evidence: "extracted handwritten text",
				Source:   models.SourceEssayExtract,
			}
			break
		}
	}
}

// merge applies the reconciliation rule: an incoming answer is accepted only
// for ordinals that hold no evidenced value yet
func merge(resolved map[int]models.ExtractedAnswer, incoming []models.ExtractedAnswer) {
	for _, answer := range incoming {
		current, ok := resolved[answer.Ordinal]
		if ok && current.Answered() && current.Evidence != "" {
			continue
		}
		if !ok || answer.Answered() {
			resolved[answer.Ordinal] = answer
		}
	}
}

// missingOrdinals lists questions that still lack a detected value
func missingOrdinals(resolved map[int]models.ExtractedAnswer, questions []models.Question) []int {
	var missing []int
	for _, q := range questions {
		if answer, ok := resolved[q.Ordinal]; !ok || !answer.Answered() {
			missing = append(missing, q.Ordinal)
		}
	}
	sort.Ints(missing)
	return missing
}

// hasAnsweredPrefix reports whether every question before the first missing
// ordinal was answered, the pattern that justifies a focused re-check
func hasAnsweredPrefix(resolved map[int]models.ExtractedAnswer, missing []int) bool {
	first := missing[0]
	if first <= 1 {
		return false
	}
	for ordinal := 1; ordinal < first; ordinal++ {
		if answer, ok := resolved[ordinal]; !ok || !answer.Answered() {
			return false
		}
	}
	return true
}

// orderedAnswers materializes the final per-question slice in ordinal order,
// inserting explicit unanswered entries for unresolved questions
func orderedAnswers(resolved map[int]models.ExtractedAnswer, questions []models.Question) []models.ExtractedAnswer {
	answers := make([]models.ExtractedAnswer, 0, len(questions))
	for _, q := range questions {
		if answer, ok := resolved[q.Ordinal]; ok {
			if answer.Type == "" {
				answer.Type = q.Type
			}
			answers = append(answers, answer)
			continue
		}
		answers = append(answers, models.ExtractedAnswer{
			Ordinal: q.Ordinal,
			Type:    q.Type,
		})
	}
	return answers
}
