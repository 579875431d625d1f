package identify

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// headerScanLines bounds how deep into a page the header scan looks
const headerScanLines = 15

var (
	namedLabelPattern   = regexp.MustCompile(`(?i)^\s*(?:nombre|estudiante|alumno|name|student)\s*[:.\-]*\s*(.+)$`)
	registrationPattern = regexp.MustCompile(`(?i)(?:rut|run|matr[ií]cula|registro|id)\s*[:.\-]*\s*([0-9][0-9.\-]*[0-9kK])`)
	lastFirstPattern    = regexp.MustCompile(`^\s*(\p{L}[\p{L} ]+),\s*(\p{L}[\p{L} ]+)\s*$`)
)

// headerStopwords are words that disqualify a line from being a person name.
// Sheets carry institutional headers in Spanish and English.
var headerStopwords = map[string]bool{
	"prueba": true, "test": true, "evaluacion": true, "examen": true,
	"curso": true, "grado": true, "seccion": true, "fecha": true,
	"nota": true, "puntaje": true, "puntos": true, "total": true,
	"colegio": true, "escuela": true, "liceo": true, "instituto": true,
	"profesor": true, "profesora": true, "asignatura": true, "materia": true,
	"instrucciones": true, "pagina": true, "page": true, "pregunta": true,
	"question": true, "respuesta": true, "answer": true,
	"scan": true, "escaneo": true, "img": true, "hoja": true, "doc": true,
}

// HeaderCandidate is a possible student identity found in page text
type HeaderCandidate struct {
	Name         string
	Registration string
}

// ScanHeader looks through the first lines of page text for a student name
// and registration number. Labeled fields win over bare name-looking lines.
func ScanHeader(text string) HeaderCandidate {
	var candidate HeaderCandidate

	lines := strings.Split(text, "\n")
	if len(lines) > headerScanLines {
		lines = lines[:headerScanLines]
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if candidate.Registration == "" {
			if m := registrationPattern.FindStringSubmatch(line); m != nil {
				candidate.Registration = NormalizeRegistration(m[1])
			}
		}

		if candidate.Name != "" {
			continue
		}

		if m := namedLabelPattern.FindStringSubmatch(line); m != nil {
			name := trimHeaderValue(m[1])
			if LikelyPersonName(name) {
				candidate.Name = name
				continue
			}
		}

		if m := lastFirstPattern.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[2]) + " " + strings.TrimSpace(m[1])
			if LikelyPersonName(name) {
				candidate.Name = name
				continue
			}
		}

		if LikelyPersonName(line) {
			candidate.Name = line
		}
	}

	return candidate
}

// trimHeaderValue cuts a labeled value at the next field label on the same line
func trimHeaderValue(value string) string {
	value = strings.TrimSpace(value)
	if idx := registrationPattern.FindStringIndex(value); idx != nil {
		value = strings.TrimSpace(value[:idx[0]])
	}
	return strings.Trim(value, " .:-_")
}

// LikelyPersonName reports whether a line plausibly is a student name:
// short, digit-free, a handful of alphabetic tokens, mostly letters, and not
// an institutional header word
func LikelyPersonName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || len(s) > 50 {
		return false
	}

	letters, total := 0, 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			return false
		}
		if strings.ContainsRune("?!¿¡()[]{}#@/\\", r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
		total++
	}
	if total == 0 || float64(letters)/float64(total) < 0.7 {
		return false
	}

	tokens := strings.Fields(s)
	if len(tokens) == 0 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".:,;")
		if headerStopwords[foldAccents(strings.ToLower(tok))] {
			return false
		}
	}
	return true
}

// NameFromFilename derives a name candidate from the uploaded filename, used
// as the last identification fallback
func NameFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")

	// strip trailing counters like "scan 03"
	words := strings.Fields(base)
	for len(words) > 0 && !LikelyPersonName(strings.Join(words, " ")) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func foldAccents(s string) string {
	return accentFolder.Replace(s)
}

// NormalizeName produces the canonical key used for roster matching and
// history lookups: lowercased, accent-folded, single-spaced
func NormalizeName(name string) string {
	name = foldAccents(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeRegistration strips formatting from a registration number
func NormalizeRegistration(reg string) string {
	reg = strings.ToLower(strings.TrimSpace(reg))
	return strings.NewReplacer(".", "", "-", "", " ", "").Replace(reg)
}

// TokenSimilarity is the Jaccard similarity between the token sets of two
// normalized names
func TokenSimilarity(a, b string) float64 {
	tokensA := strings.Fields(NormalizeName(a))
	tokensB := strings.Fields(NormalizeName(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, tok := range tokensB {
		setB[tok] = true
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
