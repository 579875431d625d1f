package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/smart-student/grading-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixedTextEngine struct {
	text string
	err  error
}

func (e fixedTextEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	return e.text, e.err
}

type fakeRenderer struct {
	pages [][]byte
	err   error
	calls int
}

func (r *fakeRenderer) RenderPages(ctx context.Context, filename string, raw []byte) ([][]byte, error) {
	r.calls++
	return r.pages, r.err
}

func TestPreparer_Prepare(t *testing.T) {
	ctx := context.Background()
	logger := utils.NewDevelopmentLogger()

	t.Run("image pages are normalized to jpeg", func(t *testing.T) {
		p := NewPreparer(nil, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{encodePNG(t, 100, 140)},
		})
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, 0, pages[0].Index)
		assert.False(t, pages[0].HasNativeText())

		img, format, err := image.Decode(bytes.NewReader(pages[0].JPEG))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, img.Bounds().Dx())
	})

	t.Run("oversized pages are scaled down", func(t *testing.T) {
		p := NewPreparer(nil, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{encodePNG(t, 2480, 3508)},
		})
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(pages[0].JPEG))
		require.NoError(t, err)
		assert.Equal(t, 1240, img.Bounds().Dx())
		assert.Equal(t, 1754, img.Bounds().Dy())
	})

	t.Run("undecodable pages are skipped, good ones kept", func(t *testing.T) {
		p := NewPreparer(nil, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{[]byte("garbage"), encodePNG(t, 80, 80)},
		})
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, 1, pages[0].Index)
	})

	t.Run("nothing decodable fails the document", func(t *testing.T) {
		p := NewPreparer(nil, nil, logger)

		_, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{[]byte("garbage")},
		})
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("native text kept above the density threshold", func(t *testing.T) {
		text := "Nombre: María Pérez\n1) El imperio incaico se ubicaba en el altiplano (V)"
		p := NewPreparer(fixedTextEngine{text: text}, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{encodePNG(t, 80, 80)},
		})
		require.NoError(t, err)
		assert.True(t, pages[0].HasNativeText())
		assert.Equal(t, text, pages[0].NativeText)
	})

	t.Run("sparse recognition is discarded as scan noise", func(t *testing.T) {
		p := NewPreparer(fixedTextEngine{text: "ll 1. iii"}, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{encodePNG(t, 80, 80)},
		})
		require.NoError(t, err)
		assert.False(t, pages[0].HasNativeText())
	})

	t.Run("recognition failure leaves the page usable", func(t *testing.T) {
		p := NewPreparer(fixedTextEngine{err: errors.New("tesseract crashed")}, nil, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "hoja.png",
			Pages:    [][]byte{encodePNG(t, 80, 80)},
		})
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.False(t, pages[0].HasNativeText())
	})

	t.Run("raw documents go through the renderer", func(t *testing.T) {
		renderer := &fakeRenderer{pages: [][]byte{encodePNG(t, 80, 80), encodePNG(t, 80, 80)}}
		p := NewPreparer(nil, renderer, logger)

		pages, err := p.Prepare(ctx, Document{
			Filename: "prueba.pdf",
			Raw:      []byte("%PDF-1.4"),
		})
		require.NoError(t, err)
		assert.Len(t, pages, 2)
		assert.Equal(t, 1, renderer.calls)
	})

	t.Run("raw document without a renderer", func(t *testing.T) {
		p := NewPreparer(nil, nil, logger)

		_, err := p.Prepare(ctx, Document{Filename: "prueba.pdf", Raw: []byte("%PDF-1.4")})
		require.ErrorIs(t, err, ErrUnreadable)
		assert.Contains(t, err.Error(), ".pdf")
	})

	t.Run("renderer failure is unreadable", func(t *testing.T) {
		renderer := &fakeRenderer{err: errors.New("ghostscript not found")}
		p := NewPreparer(nil, renderer, logger)

		_, err := p.Prepare(ctx, Document{Filename: "prueba.pdf", Raw: []byte("%PDF-1.4")})
		assert.ErrorIs(t, err, ErrUnreadable)
	})
}

func TestNormalizedLength(t *testing.T) {
	assert.Equal(t, 0, normalizedLength("   \n\t  "))
	assert.Equal(t, len("a b c"), normalizedLength("  a \n b\t\tc "))
	assert.Equal(t, 7, normalizedLength(strings.Repeat(" ab ", 2)+"c"))
}
