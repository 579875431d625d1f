package extraction

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/smart-student/grading-service/internal/models"
)

// Native-text heuristics: when a page carried real text (digital form fills,
// clean OCR), marked options and V/F annotations can be read without a
// vision call. The heuristics are deliberately conservative: an ambiguous
// region yields no answer rather than a guess.

// markGlyphs are characters accepted as an intentional mark inside a box or
// set of parentheses
const markGlyphs = "xX✓✔●◉•■▪◆▲☑☒✗✘╳*+"

// scribbleGlyphs also count as marks when they are the only content of a box
const scribbleGlyphs = "-_/=|~"

var (
	questionAnchor = regexp.MustCompile(`(?i)^\s*(?:pregunta\s+|q)?(\d{1,2})\s*[().:\-]`)
	optionPattern  = regexp.MustCompile(`(?i)\b([a-e])\s*[).]\s*`)
	boxPattern     = regexp.MustCompile(`[(\[]([^()\[\]]{0,3})[)\]]`)
	vfPattern      = regexp.MustCompile(`(?i)[(\[]\s*([vf])\s*[)\]]`)
	// vfToken matches a true/false option token next to its answer slot,
	// "V ( x )" or "Falso [ ]"
	vfToken = regexp.MustCompile(`(?i)\b(v(?:erdadero)?|f(?:also)?)\s*[(\[]([^()\[\]]{0,4})[)\]]`)
)

// TextStrategy extracts answers from a page's native text
type TextStrategy struct{}

// Extract scans the native text of one page for answers to the given
// questions. Questions whose region is absent or ambiguous are simply not
// reported; the engine falls through to vision for them.
func (TextStrategy) Extract(page models.PageImage, questions []models.Question) []models.ExtractedAnswer {
	if !page.HasNativeText() {
		return nil
	}

	lines := strings.Split(page.NativeText, "\n")
	regions := splitQuestionRegions(lines)

	var answers []models.ExtractedAnswer
	for _, q := range questions {
		region, ok := regions[q.Ordinal]
		if !ok {
			continue
		}

		var answer *models.ExtractedAnswer
		switch q.Type {
		case models.TrueFalse:
			answer = detectTrueFalse(region)
		case models.SingleChoice:
			answer = detectChoice(region, len(q.Options), false)
		case models.MultipleSelect:
			answer = detectChoice(region, len(q.Options), true)
		case models.Development:
			// handwriting never survives OCR reliably enough to grade from text
		}

		if answer != nil {
			answer.Ordinal = q.Ordinal
			answer.Type = q.Type
			answer.Source = models.SourceNativeText
			answers = append(answers, *answer)
		}
	}

	answers = append(answers, pairRemainingTrueFalse(page.NativeText, questions, answers)...)
	return SoftenSuspiciousPerfect(answers, len(questions))
}

// pairRemainingTrueFalse runs the page-wide V/F pairing pass for true/false
// questions the per-question regions left unresolved
func pairRemainingTrueFalse(text string, questions []models.Question, answers []models.ExtractedAnswer) []models.ExtractedAnswer {
	resolved := make(map[int]bool, len(answers))
	for _, a := range answers {
		resolved[a.Ordinal] = true
	}

	var ordinals []int
	unresolved := 0
	for _, q := range questions {
		if q.Type != models.TrueFalse {
			continue
		}
		ordinals = append(ordinals, q.Ordinal)
		if !resolved[q.Ordinal] {
			unresolved++
		}
	}
	if unresolved == 0 {
		return nil
	}

	paired := pairTrueFalse(text, ordinals)
	var extra []models.ExtractedAnswer
	for _, ordinal := range ordinals {
		answer, ok := paired[ordinal]
		if !ok || resolved[ordinal] {
			continue
		}
		answer.Ordinal = ordinal
		answer.Type = models.TrueFalse
		answer.Source = models.SourceNativeText
		extra = append(extra, *answer)
	}
	return extra
}

// splitQuestionRegions partitions page lines into per-ordinal regions, from
// each question anchor to the next
func splitQuestionRegions(lines []string) map[int][]string {
	regions := make(map[int][]string)
	current := 0
	for _, line := range lines {
		if m := questionAnchor.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 99 {
				current = n
			}
		}
		if current > 0 {
			regions[current] = append(regions[current], line)
		}
	}
	return regions
}

// isMark reports whether the content of a box counts as an intentional mark
func isMark(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	for _, r := range content {
		if !strings.ContainsRune(markGlyphs, r) && !strings.ContainsRune(scribbleGlyphs, r) {
			return false
		}
	}
	return true
}

// detectTrueFalse resolves a true/false question from its region. It tries
// the option-token forms first ("V ( x )  F ( )"), on one line and then over
// the whole window, and finally accepts a bare letter written in parentheses.
func detectTrueFalse(region []string) *models.ExtractedAnswer {
	window := region
	if len(window) > 4 {
		window = window[:4]
	}

	// both tokens on one line: whichever slot holds a mark wins
	for i, line := range window {
		vSlots, fSlots := vfSlots(line)
		if len(vSlots) == 0 || len(fSlots) == 0 {
			continue
		}
		vMarked, fMarked := isMark(vSlots[0]), isMark(fSlots[0])
		switch {
		case vMarked && fMarked:
			// both slots filled is ambiguous, not an answer
			return nil
		case vMarked != fMarked:
			return vfAnswer(vMarked, fmt.Sprintf("marked slot on line %d of the question", i+1))
		}
		// both slots blank, widen the search
		break
	}

	// tokens spread across the window, one per line
	chunk := strings.Join(window, " ")
	vSlots, fSlots := vfSlots(chunk)
	vMarked := anyMarked(vSlots)
	fMarked := anyMarked(fSlots)
	if vMarked != fMarked {
		return vfAnswer(vMarked, "marked slot within the question window")
	}

	// a letter written straight into the parentheses
	for i, line := range window {
		matches := vfPattern.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			return nil
		}
		value := strings.ToUpper(matches[0][1])
		return &models.ExtractedAnswer{
			Detected: &value,
			Evidence: fmt.Sprintf("'%s' in parentheses on line %d of the question", value, i+1),
		}
	}
	return nil
}

// vfSlots collects the paren contents of every V and F option token in s,
// in order of appearance
func vfSlots(s string) (vSlots, fSlots []string) {
	for _, m := range vfToken.FindAllStringSubmatch(s, -1) {
		if strings.EqualFold(m[1][:1], "v") {
			vSlots = append(vSlots, m[2])
		} else {
			fSlots = append(fSlots, m[2])
		}
	}
	return vSlots, fSlots
}

func anyMarked(slots []string) bool {
	for _, slot := range slots {
		if isMark(slot) {
			return true
		}
	}
	return false
}

func vfAnswer(vMarked bool, evidence string) *models.ExtractedAnswer {
	value := "F"
	if vMarked {
		value = "V"
	}
	return &models.ExtractedAnswer{Detected: &value, Evidence: evidence}
}

// pairTrueFalse is the page-wide fallback for sheets whose anchors the
// region scan could not tie to their V/F slots. Every V slot is paired with
// the F slot at the same position, and the pairs map onto the test's
// true/false questions in order.
func pairTrueFalse(text string, ordinals []int) map[int]*models.ExtractedAnswer {
	vSlots, fSlots := vfSlots(text)
	pairs := min(len(vSlots), len(fSlots))
	if pairs > len(ordinals) {
		pairs = len(ordinals)
	}

	paired := make(map[int]*models.ExtractedAnswer, pairs)
	for i := 0; i < pairs; i++ {
		vMarked, fMarked := isMark(vSlots[i]), isMark(fSlots[i])
		if vMarked == fMarked {
			// blank or double-marked pair stays unanswered
			continue
		}
		paired[ordinals[i]] = vfAnswer(vMarked,
			fmt.Sprintf("marked slot in V/F pair %d of the page", i+1))
	}
	return paired
}

// detectChoice looks for marked option boxes. For single-choice questions
// more than one mark is ambiguous; for multiple-select every marked letter is
// collected into a comma-joined set.
func detectChoice(region []string, optionCount int, multi bool) *models.ExtractedAnswer {
	marked := make([]string, 0, optionCount)
	seen := make(map[string]bool)

	for _, line := range region {
		for _, letter := range markedLetters(line, optionCount) {
			if !seen[letter] {
				seen[letter] = true
				marked = append(marked, letter)
			}
		}
	}

	if len(marked) == 0 {
		return nil
	}

	if !multi {
		if len(marked) > 1 {
			return nil
		}
		value := marked[0]
		return &models.ExtractedAnswer{
			Detected: &value,
			Evidence: fmt.Sprintf("mark at option %s", value),
		}
	}

	value := strings.Join(marked, ",")
	return &models.ExtractedAnswer{
		Detected: &value,
		Evidence: fmt.Sprintf("marks at options %s", value),
	}
}

// markedLetters finds option letters on a line whose adjacent box holds a mark
func markedLetters(line string, optionCount int) []string {
	var letters []string

	// form "( x ) a" or "[x] b": mark box directly before the letter
	boxes := boxPattern.FindAllStringSubmatchIndex(line, -1)
	for _, loc := range boxes {
		content := line[loc[2]:loc[3]]
		if !isMark(content) {
			continue
		}
		rest := strings.TrimSpace(line[loc[1]:])
		if m := optionPattern.FindStringSubmatch(rest); m != nil && strings.Index(rest, m[0]) == 0 {
			letters = append(letters, normalizeLetter(m[1], optionCount)...)
			continue
		}
		// form "a) text ( x )": letter earlier on the same line
		before := line[:loc[0]]
		if m := lastOption(before); m != "" {
			letters = append(letters, normalizeLetter(m, optionCount)...)
		}
	}

	// form "*a*": starred letter
	star := regexp.MustCompile(`(?i)\*\s*([a-e])\s*\*`)
	for _, m := range star.FindAllStringSubmatch(line, -1) {
		letters = append(letters, normalizeLetter(m[1], optionCount)...)
	}

	return letters
}

// lastOption returns the last option letter mentioned before a mark box
func lastOption(s string) string {
	matches := optionPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

// normalizeLetter upper-cases a detected letter and drops it when it falls
// outside the question's option range
func normalizeLetter(letter string, optionCount int) []string {
	upper := strings.ToUpper(letter)
	if optionCount > 0 && int(upper[0]-'A') >= optionCount {
		return nil
	}
	return []string{upper}
}

// SoftenSuspiciousPerfect guards against a false 100%: when the heuristics
// claim every question answered but only a thin share of them carries mark
// evidence, the weakest claim is withdrawn so the sheet lands in review
// instead of a perfect score
func SoftenSuspiciousPerfect(answers []models.ExtractedAnswer, totalQuestions int) []models.ExtractedAnswer {
	if totalQuestions == 0 || len(answers) < totalQuestions {
		return answers
	}

	strong := 0
	for _, a := range answers {
		if a.Answered() && a.Evidence != "" {
			strong++
		}
	}

	required := int(math.Max(3, math.Ceil(float64(totalQuestions)*0.25)))
	if strong >= required {
		return answers
	}

	// withdraw the last answer without evidence, else the last one
	for i := len(answers) - 1; i >= 0; i-- {
		if answers[i].Evidence == "" {
			answers[i].Detected = nil
			return answers
		}
	}
	answers[len(answers)-1].Detected = nil
	return answers
}
