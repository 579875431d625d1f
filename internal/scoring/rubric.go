package scoring

import (
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
)

// defaultWeight is assumed for an active question type the rubric forgot to
// weight. The assumption is always logged; a silently guessed rubric is worse
// than a visible one.
const defaultWeight = 25.0

// PointsPerQuestion resolves the rubric into a per-question point value for
// each active question type:
//
//	pool(type)  = totalPoints × normalizedWeight(type)
//	perQuestion = pool(type) / count(type)
//
// Only types that actually occur in the test participate. A test with no
// rubric at all falls back to one point per question.
func PointsPerQuestion(def *models.TestDefinition, logger utils.Logger) map[models.QuestionType]float64 {
	perQuestion := make(map[models.QuestionType]float64)

	counts := def.TypeCounts()
	if len(counts) == 0 {
		return perQuestion
	}

	weights := def.WeightMap()
	if def.TotalPoints <= 0 && len(weights) == 0 {
		for qt := range counts {
			perQuestion[qt] = 1
		}
		return perQuestion
	}

	total := def.EffectiveTotalPoints()

	active := make(map[models.QuestionType]float64, len(counts))
	weightSum := 0.0
	for _, qt := range models.AllQuestionTypes {
		count, ok := counts[qt]
		if !ok || count == 0 {
			continue
		}
		weight, ok := weights[qt]
		if !ok || weight <= 0 {
			// an explicit zero counts as "not weighted": an active type never
			// earns zero points just because the rubric left it out
			logger.Warn("rubric has no usable weight for an active question type, assuming default",
				"test_id", def.ID,
				"question_type", qt,
				"assumed_weight", defaultWeight)
			weight = defaultWeight
		}
		active[qt] = weight
		weightSum += weight
	}

	for qt, weight := range active {
		pool := total * (weight / weightSum)
		perQuestion[qt] = pool / float64(counts[qt])
	}
	return perQuestion
}
