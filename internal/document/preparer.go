package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/ocr"
	"github.com/smart-student/grading-service/internal/utils"
)

// ErrUnreadable means no page of the document could be rendered; the grading
// run cannot proceed
var ErrUnreadable = errors.New("document could not be rendered to any page")

const (
	// targetWidth bounds the raster size sent to the vision service
	targetWidth = 1240
	// jpegQuality trades payload size against mark legibility
	jpegQuality = 80
	// nativeTextThreshold is the minimum normalized character count for a
	// page's recognized text to be trusted; below it the page is treated as
	// a pure scan
	nativeTextThreshold = 40
)

// Document is one uploaded answer sheet before preparation
type Document struct {
	Filename string
	Pages    [][]byte // encoded page images (JPEG or PNG)
	Raw      []byte   // original file when it is not a page-per-image upload
}

// PageRenderer rasterizes non-image documents (PDF and friends) into one
// encoded image per page. Rendering is an external concern; hosts plug in
// their renderer and the service ships only the image passthrough.
type PageRenderer interface {
	RenderPages(ctx context.Context, filename string, raw []byte) ([][]byte, error)
}

// Preparer turns an uploaded document into normalized page images with
// optional native text attached
type Preparer struct {
	ocr      ocr.Engine
	renderer PageRenderer
	logger   utils.Logger
}

// NewPreparer builds a Preparer. Both collaborators are optional: a nil
// renderer limits input to image uploads, a nil engine skips native text.
func NewPreparer(engine ocr.Engine, renderer PageRenderer, logger utils.Logger) *Preparer {
	if engine == nil {
		engine = ocr.NoopEngine{}
	}
	return &Preparer{
		ocr:      engine,
		renderer: renderer,
		logger:   logger,
	}
}

// Prepare decodes, rescales and re-encodes every page, then attaches native
// text where recognition clears the density threshold. A document that yields
// no renderable page at all is unreadable and fails the whole run.
func (p *Preparer) Prepare(ctx context.Context, doc Document) ([]models.PageImage, error) {
	encoded := doc.Pages

	if len(encoded) == 0 && len(doc.Raw) > 0 {
		if p.renderer == nil {
			return nil, fmt.Errorf("%w: no renderer for %s", ErrUnreadable, filepath.Ext(doc.Filename))
		}
		rendered, err := p.renderer.RenderPages(ctx, doc.Filename, doc.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		encoded = rendered
	}

	pages := make([]models.PageImage, 0, len(encoded))
	for i, data := range encoded {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		normalized, err := p.normalizePage(data)
		if err != nil {
			p.logger.Warn("skipping undecodable page",
				"filename", doc.Filename,
				"page", i,
				"error", err)
			continue
		}

		page := models.PageImage{Index: i, JPEG: normalized}
		page.NativeText = p.recognizeNativeText(ctx, normalized, doc.Filename, i)
		pages = append(pages, page)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, doc.Filename)
	}

	p.logger.Info("document prepared",
		"filename", doc.Filename,
		"pages", len(pages),
		"with_native_text", countWithText(pages))

	return pages, nil
}

// normalizePage decodes a page image, bounds its width and re-encodes as JPEG
func (p *Preparer) normalizePage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > targetWidth {
		scale := float64(targetWidth) / float64(bounds.Dx())
		height := int(float64(bounds.Dy()) * scale)
		scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, height))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return buf.Bytes(), nil
}

// recognizeNativeText runs OCR on the page and keeps the result only when it
// clears the density threshold
func (p *Preparer) recognizeNativeText(ctx context.Context, image []byte, filename string, index int) string {
	text, err := p.ocr.Recognize(ctx, image)
	if err != nil {
		p.logger.Warn("native text recognition failed",
			"filename", filename,
			"page", index,
			"error", err)
		return ""
	}

	if normalizedLength(text) <= nativeTextThreshold {
		return ""
	}
	return text
}

// normalizedLength counts characters after collapsing runs of whitespace
func normalizedLength(text string) int {
	return len(strings.Join(strings.Fields(text), " "))
}

func countWithText(pages []models.PageImage) int {
	n := 0
	for _, page := range pages {
		if page.HasNativeText() {
			n++
		}
	}
	return n
}
