package identify

import (
	"strings"

	"github.com/smart-student/grading-service/internal/models"
)

// similarityFloor is the minimum token-overlap score accepted as a roster
// match. Below it a detected name stays unassigned rather than risking a
// wrong attribution.
const similarityFloor = 0.35

// Matcher resolves detected header identities against a fixed roster
type Matcher struct {
	roster []models.StudentRecord
	byReg  map[string]*models.StudentRecord
	byName map[string]*models.StudentRecord
}

// NewMatcher indexes a roster for matching
func NewMatcher(roster []models.StudentRecord) *Matcher {
	m := &Matcher{
		roster: roster,
		byReg:  make(map[string]*models.StudentRecord, len(roster)),
		byName: make(map[string]*models.StudentRecord, len(roster)),
	}
	for i := range roster {
		student := &m.roster[i]
		if student.RegistrationNumber != "" {
			m.byReg[NormalizeRegistration(student.RegistrationNumber)] = student
		}
		m.byName[NormalizeName(student.Name)] = student
	}
	return m
}

// Roster returns the underlying roster records
func (m *Matcher) Roster() []models.StudentRecord {
	return m.roster
}

// Match resolves a detected (name, registration) pair to a roster student.
// Registration numbers are authoritative; names fall back from exact match
// through containment to token overlap. Returns nil when nothing clears the
// similarity floor.
func (m *Matcher) Match(name, registration string) (*models.StudentRecord, float64) {
	if registration != "" {
		if student, ok := m.byReg[NormalizeRegistration(registration)]; ok {
			return student, 1.0
		}
	}

	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, 0
	}

	if student, ok := m.byName[normalized]; ok {
		return student, 1.0
	}

	for i := range m.roster {
		student := &m.roster[i]
		rosterName := NormalizeName(student.Name)
		if strings.Contains(rosterName, normalized) || strings.Contains(normalized, rosterName) {
			return student, 0.9
		}
	}

	var best *models.StudentRecord
	bestScore := 0.0
	for i := range m.roster {
		student := &m.roster[i]
		score := TokenSimilarity(student.Name, name)
		if score > bestScore {
			best = student
			bestScore = score
		}
	}
	if bestScore >= similarityFloor {
		return best, bestScore
	}
	return nil, 0
}
