package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes text on a raster page. Implementations must be safe for
// sequential reuse; the pipeline processes one page at a time.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractEngine implements Engine on top of the gosseract client. A fresh
// client is created per call so a failed recognition never poisons the next.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine. Languages are
// trained-data names such as "spa" or "eng"; empty means the Tesseract default.
func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

// Recognize runs OCR on one encoded image and returns the trimmed plain text
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// NoopEngine is an Engine that recognizes nothing. Used when native text
// recognition is disabled; every page then goes through vision analysis.
type NoopEngine struct{}

func (NoopEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", nil
}
