// Package pdf adapts third party PDF libraries to the shapes the statement
// pipeline needs: positioned text runs, rectangle painting, page slicing,
// image-only documents and rasterization.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	lpdf "github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when a document cannot be opened at all.
var ErrUnreadable = errors.New("pdf: unreadable document")

// Run is a horizontal run of glyphs sharing font, size and baseline.
type Run struct {
	Text     string
	X        float64
	Y        float64
	FontSize float64
	Width    float64
}

const (
	// glyphs closer than this fraction of the font size belong to the same run
	joinGapRatio = 0.2
	baselineEps  = 0.5
)

// TextExtractor reads positioned text with ledongthuc/pdf.
type TextExtractor struct {
	logger *slog.Logger
}

// NewTextExtractor creates a text extractor.
func NewTextExtractor(logger *slog.Logger) *TextExtractor {
	return &TextExtractor{logger: logger}
}

// Runs returns the text runs of every page in page order. A page whose content
// stream cannot be decoded yields no runs instead of failing the document.
func (e *TextExtractor) Runs(ctx context.Context, data []byte) ([][]Run, error) {
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	n := r.NumPage()
	pages := make([][]Run, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		glyphs, err := pageText(r, i)
		if err != nil {
			e.logger.Warn("skipping page text",
				slog.Int("page", i),
				slog.Any("error", err),
			)
			continue
		}
		pages[i-1] = Coalesce(glyphs)
	}
	return pages, nil
}

func pageText(r *lpdf.Reader, num int) (texts []lpdf.Text, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decode page %d: %v", num, rec)
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return nil, nil
	}
	return p.Content().Text, nil
}

// Coalesce merges per-glyph text entries into runs, keeping content order.
func Coalesce(glyphs []lpdf.Text) []Run {
	var runs []Run
	var cur *Run
	var curFont string

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && sameRun(cur, curFont, g) {
			cur.Text += g.S
			cur.Width = math.Max(cur.Width, g.X+g.W-cur.X)
			continue
		}
		if cur != nil {
			runs = append(runs, *cur)
		}
		cur = &Run{Text: g.S, X: g.X, Y: g.Y, FontSize: g.FontSize, Width: g.W}
		curFont = g.Font
	}
	if cur != nil {
		runs = append(runs, *cur)
	}
	return runs
}

func sameRun(r *Run, font string, g lpdf.Text) bool {
	if g.Font != font || g.FontSize != r.FontSize {
		return false
	}
	if math.Abs(g.Y-r.Y) > baselineEps {
		return false
	}
	gap := g.X - (r.X + r.Width)
	limit := joinGapRatio * r.FontSize
	return gap >= -limit && gap <= limit
}
