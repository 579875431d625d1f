package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikelyPersonName(t *testing.T) {
	names := []string{
		"María Pérez",
		"Juan Soto Vidal",
		"Ana Maria Gonzalez Rojas",
	}
	for _, name := range names {
		assert.True(t, LikelyPersonName(name), "name %q", name)
	}

	notNames := []string{
		"",
		"Jo",
		"Prueba de Historia",
		"Curso 8B",
		"Fecha: marzo",
		"Puntaje total",
		"3ro medio 2024",
		"Una frase con demasiadas palabras para ser nombre",
		"nombre@colegio.cl (correo)",
	}
	for _, line := range notNames {
		assert.False(t, LikelyPersonName(line), "line %q", line)
	}
}

func TestScanHeader(t *testing.T) {
	t.Run("labeled fields", func(t *testing.T) {
		candidate := ScanHeader("Colegio San Pedro\nPrueba de Historia\nNombre: María Pérez\nRUT: 12.345.678-9\n")
		assert.Equal(t, "María Pérez", candidate.Name)
		assert.Equal(t, "123456789", candidate.Registration)
	})

	t.Run("last-comma-first order", func(t *testing.T) {
		candidate := ScanHeader("Evaluacion Unidad 3\nPérez, María\n")
		assert.Equal(t, "María Pérez", candidate.Name)
	})

	t.Run("bare name line", func(t *testing.T) {
		candidate := ScanHeader("Prueba de Ciencias\nJuan Soto Vidal\n1. Primera pregunta\n")
		assert.Equal(t, "Juan Soto Vidal", candidate.Name)
	})

	t.Run("nothing identifiable", func(t *testing.T) {
		candidate := ScanHeader("Prueba de Historia\nInstrucciones: lea con atencion\n")
		assert.Empty(t, candidate.Name)
		assert.Empty(t, candidate.Registration)
	})
}

func TestNameFromFilename(t *testing.T) {
	assert.Equal(t, "maria perez", NormalizeName(NameFromFilename("Maria_Perez_scan_03.pdf")))
	assert.Equal(t, "juan soto", NormalizeName(NameFromFilename("juan-soto.jpg")))
	assert.Empty(t, NameFromFilename("scan_2024_03_15.pdf"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "maria perez nunez", NormalizeName("  MARÍA  Pérez  Núñez "))
	assert.Equal(t, NormalizeName("José González"), NormalizeName("jose gonzalez"))
}

func TestTokenSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TokenSimilarity("María Pérez", "maria perez"))
	assert.InDelta(t, 1.0/3, TokenSimilarity("María Pérez", "maria soto"), 0.001)
	assert.Zero(t, TokenSimilarity("", "maria"))
}
