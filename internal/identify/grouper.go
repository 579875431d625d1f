package identify

import (
	"github.com/smart-student/grading-service/internal/models"
)

// GroupPages partitions the pages of a batch document into per-student
// groups. Identities come from the identify-only pass; pages inherit the
// current group until a boundary: a new non-empty identity key, or a page
// that restarts the test at question 1.
//
// Grouping is deterministic: it depends only on page order and the detected
// identities, never on processing timing.
func GroupPages(pages []models.PageImage, identities []models.PageIdentity, matcher *Matcher) []models.PageGroup {
	byIndex := make(map[int]models.PageIdentity, len(identities))
	for _, id := range identities {
		byIndex[id.PageIndex] = id
	}

	var groups []models.PageGroup
	var current *models.PageGroup
	currentKey := ""

	for _, page := range pages {
		id := byIndex[page.Index]
		key := identityKey(id)

		startNew := current == nil ||
			(key != "" && currentKey != "" && key != currentKey) ||
			(id.StartsNewSheet && len(current.Pages) > 0)

		if startNew {
			groups = append(groups, models.PageGroup{
				DetectedName:         id.Name,
				DetectedRegistration: id.Registration,
			})
			current = &groups[len(groups)-1]
			if key != "" {
				currentKey = key
			} else {
				currentKey = ""
			}
		} else if currentKey == "" && key != "" {
			// a later page of the same sheet finally revealed the identity
			current.DetectedName = id.Name
			current.DetectedRegistration = id.Registration
			currentKey = key
		}

		current.Pages = append(current.Pages, page)
	}

	for i := range groups {
		group := &groups[i]
		student, confidence := matcher.Match(group.DetectedName, group.DetectedRegistration)
		group.Student = student
		group.MatchConfidence = confidence
	}

	return groups
}

// identityKey reduces a page identity to its grouping key: normalized
// registration when present, else the normalized name
func identityKey(id models.PageIdentity) string {
	if reg := NormalizeRegistration(id.Registration); reg != "" {
		return "reg:" + reg
	}
	if name := NormalizeName(id.Name); name != "" {
		return "name:" + name
	}
	return ""
}

// SingleGroup builds the one-student group for a non-batch run: header scan
// over native page text first, then the filename fallback
func SingleGroup(pages []models.PageImage, filename string, matcher *Matcher) models.PageGroup {
	var candidate HeaderCandidate
	for _, page := range pages {
		if !page.HasNativeText() {
			continue
		}
		candidate = ScanHeader(page.NativeText)
		if candidate.Name != "" || candidate.Registration != "" {
			break
		}
	}

	if candidate.Name == "" {
		candidate.Name = NameFromFilename(filename)
	}

	group := models.PageGroup{
		Pages:                pages,
		DetectedName:         candidate.Name,
		DetectedRegistration: candidate.Registration,
	}
	group.Student, group.MatchConfidence = matcher.Match(group.DetectedName, group.DetectedRegistration)
	return group
}
