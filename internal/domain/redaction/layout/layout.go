// Package layout rebuilds baseline-aligned text lines from the unordered text
// runs of a PDF page and keeps a character-offset to geometry mapping for each
// line, so spans found in the line text can be located on the page again.
package layout

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// LineTolerance is the maximum baseline distance between two runs of the same line.
	LineTolerance = 3.0

	defaultFontHeight = 10.0
	fallbackCharWidth = 6.0
	ascentRatio       = 0.72
	descentRatio      = 0.28
)

// TextItem is a single rendered text run.
type TextItem struct {
	Str string
	// Transform is the PDF text matrix [a b c d e f]; e and f are the baseline origin.
	Transform [6]float64
	Width     float64
	Height    float64
}

// X returns the baseline x of the run.
func (t TextItem) X() float64 { return t.Transform[4] }

// Y returns the baseline y of the run.
func (t TextItem) Y() float64 { return t.Transform[5] }

// Mapping locates one TextItem inside a Line.
// Start and End are rune offsets into Line.Text; End includes the synthetic
// space when InsertedSpace is set.
type Mapping struct {
	Str           string
	Start         int
	End           int
	X             float64
	Baseline      float64
	Width         float64
	CharWidth     float64
	FontHeight    float64
	Ascent        float64
	Descent       float64
	InsertedSpace bool
}

// Line is a set of runs sharing a baseline, left to right.
type Line struct {
	Text    string
	Mapping []Mapping
}

// Reconstruct groups items into lines, top to bottom.
func Reconstruct(items []TextItem) []Line {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]TextItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		dy := sorted[j].Y() - sorted[i].Y()
		if math.Abs(dy) > LineTolerance {
			return dy < 0
		}
		return sorted[i].X() < sorted[j].X()
	})

	var groups [][]TextItem
	var current []TextItem
	lastY := 0.0
	for i, it := range sorted {
		if i == 0 || math.Abs(it.Y()-lastY) <= LineTolerance {
			current = append(current, it)
		} else {
			groups = append(groups, current)
			current = []TextItem{it}
		}
		lastY = it.Y()
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	lines := make([]Line, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].X() < g[j].X() })
		lines = append(lines, buildLine(g))
	}
	return lines
}

func buildLine(items []TextItem) Line {
	var sb strings.Builder
	mapping := make([]Mapping, 0, len(items))
	cursor := 0

	for i, it := range items {
		n := utf8.RuneCountInString(it.Str)

		width := it.Width
		if width <= 0 {
			width = math.Max(1, float64(n)*fallbackCharWidth)
		}
		fontHeight := it.Height
		if fontHeight <= 0 {
			fontHeight = scaleOf(it.Transform)
		}

		m := Mapping{
			Str:        it.Str,
			Start:      cursor,
			X:          it.X(),
			Baseline:   it.Y(),
			Width:      width,
			CharWidth:  width / float64(max(1, n)),
			FontHeight: fontHeight,
			Ascent:     fontHeight * ascentRatio,
			Descent:    fontHeight * descentRatio,
		}

		sb.WriteString(it.Str)
		cursor += n
		if !hasTrailingSpace(it.Str) && i < len(items)-1 {
			sb.WriteByte(' ')
			cursor++
			m.InsertedSpace = true
		}
		m.End = cursor
		mapping = append(mapping, m)
	}

	return Line{Text: sb.String(), Mapping: mapping}
}

func scaleOf(t [6]float64) float64 {
	if d := math.Abs(t[3]); d > 0 {
		return d
	}
	if a := math.Abs(t[0]); a > 0 {
		return a
	}
	return defaultFontHeight
}

func hasTrailingSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r != utf8.RuneError && unicode.IsSpace(r)
}
