package redaction

import (
	"math"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction/layout"
	"github.com/FACorreiaa/bankstatement2csv/pkg/pdf"
)

const (
	ascentMargin  = 1.15
	descentMargin = 1.20

	narrowBox      = 30.0
	padY           = 0.5
	minPadLeft     = 2.5
	minPadRight    = 2.0
	narrowLeftPad  = 0.35
	wideLeftPad    = 0.09
	rightPadFactor = 0.035
)

var (
	// OpaqueFill hides redacted text.
	OpaqueFill = pdf.Fill{R: 0, G: 0, B: 0, Opacity: 1}
	// DebugFill shows what would be hidden.
	DebugFill = pdf.Fill{R: 1, G: 0, B: 0, Opacity: 0.45}
)

// BoundingBox resolves the page rectangle covering runes [start,end) of a
// line. It reports false when no mapping entry intersects the range.
func BoundingBox(start, end int, mapping []layout.Mapping) (pdf.Rect, bool) {
	first, last := -1, -1
	for i, m := range mapping {
		if m.End <= start {
			continue
		}
		if m.Start >= end {
			break
		}
		if first == -1 {
			first = i
		}
		last = i
	}
	if first == -1 {
		return pdf.Rect{}, false
	}

	fm, lm := mapping[first], mapping[last]
	startX := fm.X + float64(max(0, start-fm.Start))*fm.CharWidth
	endX := lm.X + math.Min(float64(max(0, end-lm.Start))*lm.CharWidth, lm.Width)

	maxBaseline, minBaseline := math.Inf(-1), math.Inf(1)
	var ascent, descent float64
	for _, m := range mapping[first : last+1] {
		maxBaseline = math.Max(maxBaseline, m.Baseline)
		minBaseline = math.Min(minBaseline, m.Baseline)
		ascent = math.Max(ascent, m.Ascent)
		descent = math.Max(descent, m.Descent)
	}
	ascent *= ascentMargin
	descent *= descentMargin

	bottom := minBaseline - descent
	top := maxBaseline + ascent
	return pdf.Rect{
		X:      startX,
		Y:      bottom,
		Width:  math.Max(1, endX-startX),
		Height: math.Max(1, top-bottom),
	}, true
}

// Pad widens a box so the first and last glyphs are fully covered. The left
// side gets more room than the right.
func Pad(b pdf.Rect) pdf.Rect {
	left := math.Max(minPadLeft, b.Width*wideLeftPad)
	if b.Width < narrowBox {
		left = math.Max(minPadLeft, b.Width*narrowLeftPad)
	}
	right := math.Max(minPadRight, b.Width*rightPadFactor)

	return pdf.Rect{
		X:      b.X - left,
		Y:      b.Y - padY,
		Width:  b.Width + left + right,
		Height: b.Height + 2*padY,
	}
}
