package identify

import (
	"testing"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoster() []models.StudentRecord {
	return []models.StudentRecord{
		{ID: "stu-1", Name: "María Pérez Núñez", RegistrationNumber: "12.345.678-9"},
		{ID: "stu-2", Name: "Juan Soto Vidal", RegistrationNumber: "9.876.543-2"},
		{ID: "stu-3", Name: "Ana González Rojas"},
	}
}

func TestMatcher_Match(t *testing.T) {
	matcher := NewMatcher(sampleRoster())

	t.Run("registration is authoritative", func(t *testing.T) {
		student, confidence := matcher.Match("nombre ilegible", "123456789")
		require.NotNil(t, student)
		assert.Equal(t, "stu-1", student.ID)
		assert.Equal(t, 1.0, confidence)
	})

	t.Run("exact name ignoring accents and case", func(t *testing.T) {
		student, confidence := matcher.Match("maria perez nunez", "")
		require.NotNil(t, student)
		assert.Equal(t, "stu-1", student.ID)
		assert.Equal(t, 1.0, confidence)
	})

	t.Run("partial name by containment", func(t *testing.T) {
		student, confidence := matcher.Match("Juan Soto", "")
		require.NotNil(t, student)
		assert.Equal(t, "stu-2", student.ID)
		assert.Equal(t, 0.9, confidence)
	})

	t.Run("token overlap above the floor", func(t *testing.T) {
		student, confidence := matcher.Match("Gonzalez Ana Maria", "")
		require.NotNil(t, student)
		assert.Equal(t, "stu-3", student.ID)
		assert.GreaterOrEqual(t, confidence, 0.35)
	})

	t.Run("nothing below the floor", func(t *testing.T) {
		student, confidence := matcher.Match("Pedro Castillo Bravo", "")
		assert.Nil(t, student)
		assert.Zero(t, confidence)
	})

	t.Run("empty detection", func(t *testing.T) {
		student, _ := matcher.Match("", "")
		assert.Nil(t, student)
	})
}

func identity(pageIndex int, name, registration string, startsNew bool) models.PageIdentity {
	return models.PageIdentity{
		PageIndex:      pageIndex,
		Name:           name,
		Registration:   registration,
		StartsNewSheet: startsNew,
	}
}

func TestGroupPages(t *testing.T) {
	matcher := NewMatcher(sampleRoster())
	pages := []models.PageImage{{Index: 0}, {Index: 1}, {Index: 2}, {Index: 3}}

	t.Run("boundary on new identity", func(t *testing.T) {
		identities := []models.PageIdentity{
			identity(0, "María Pérez Núñez", "", false),
			identity(2, "Juan Soto Vidal", "", false),
		}

		groups := GroupPages(pages, identities, matcher)
		require.Len(t, groups, 2)
		assert.Len(t, groups[0].Pages, 2)
		assert.Len(t, groups[1].Pages, 2)
		assert.Equal(t, "stu-1", groups[0].Student.ID)
		assert.Equal(t, "stu-2", groups[1].Student.ID)
	})

	t.Run("boundary on question restart without identity", func(t *testing.T) {
		identities := []models.PageIdentity{
			identity(0, "María Pérez Núñez", "", true),
			identity(2, "", "", true),
		}

		groups := GroupPages(pages, identities, matcher)
		require.Len(t, groups, 2)
		assert.Equal(t, "stu-1", groups[0].Student.ID)
		assert.Nil(t, groups[1].Student)
	})

	t.Run("late identity backfills the open group", func(t *testing.T) {
		identities := []models.PageIdentity{
			identity(1, "Juan Soto Vidal", "", false),
		}

		groups := GroupPages(pages, identities, matcher)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0].Pages, 4)
		assert.Equal(t, "Juan Soto Vidal", groups[0].DetectedName)
		assert.Equal(t, "stu-2", groups[0].Student.ID)
	})

	t.Run("identity after a restart backfills the second group", func(t *testing.T) {
		identities := []models.PageIdentity{
			identity(0, "María Pérez Núñez", "", false),
			identity(2, "", "", true),
			identity(3, "Juan Soto Vidal", "", false),
		}

		groups := GroupPages(pages, identities, matcher)
		require.Len(t, groups, 2)
		assert.Len(t, groups[0].Pages, 2)
		assert.Len(t, groups[1].Pages, 2)
		assert.Equal(t, "stu-2", groups[1].Student.ID)
	})

	t.Run("deterministic across repeats", func(t *testing.T) {
		identities := []models.PageIdentity{
			identity(0, "María Pérez Núñez", "", false),
			identity(2, "Juan Soto Vidal", "", false),
		}
		first := GroupPages(pages, identities, matcher)
		for i := 0; i < 10; i++ {
			again := GroupPages(pages, identities, matcher)
			assert.Equal(t, first, again)
		}
	})
}

func TestSingleGroup(t *testing.T) {
	matcher := NewMatcher(sampleRoster())

	t.Run("header scan wins", func(t *testing.T) {
		pages := []models.PageImage{{
			Index:      0,
			NativeText: "Prueba de Historia\nNombre: María Pérez Núñez\n1. Pregunta",
		}}
		group := SingleGroup(pages, "scan_01.pdf", matcher)
		require.NotNil(t, group.Student)
		assert.Equal(t, "stu-1", group.Student.ID)
	})

	t.Run("filename fallback", func(t *testing.T) {
		pages := []models.PageImage{{Index: 0}}
		group := SingleGroup(pages, "Juan_Soto_Vidal.pdf", matcher)
		require.NotNil(t, group.Student)
		assert.Equal(t, "stu-2", group.Student.ID)
	})

	t.Run("unmatched stays unassigned", func(t *testing.T) {
		pages := []models.PageImage{{Index: 0}}
		group := SingleGroup(pages, "scan_01.pdf", matcher)
		assert.Nil(t, group.Student)
		assert.Zero(t, group.MatchConfidence)
	})
}
