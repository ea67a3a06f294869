package redaction

import (
	"unicode"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction/pii"
)

// gapRun is the whitespace run length that separates unrelated tokens inside
// one merged span, as on visually justified statement lines.
const gapRun = 3

// minSpanRunes drops sub-spans too short to be meaningful.
const minSpanRunes = 2

// Span is a half-open rune range of a line.
type Span struct {
	Start int
	End   int
	Text  string
}

// Merge coalesces sorted matches whose start falls inside the current span.
// Matches must be sorted by start ascending, end descending.
func Merge(line []rune, matches []pii.Match) []Span {
	var merged []Span
	for _, m := range matches {
		start, end := clamp(m.Start, len(line)), clamp(m.End, len(line))
		if end <= start {
			continue
		}
		if n := len(merged); n > 0 && start <= merged[n-1].End {
			last := &merged[n-1]
			if end > last.End {
				last.End = end
				last.Text = string(line[last.Start:last.End])
			}
			continue
		}
		merged = append(merged, Span{Start: start, End: end, Text: string(line[start:end])})
	}
	return merged
}

// Split cuts a span at whitespace runs of at least three runes, trims every
// piece and drops pieces shorter than two runes.
func Split(line []rune, s Span) []Span {
	var out []Span
	emit := func(lo, hi int) {
		for lo < hi && unicode.IsSpace(line[lo]) {
			lo++
		}
		for hi > lo && unicode.IsSpace(line[hi-1]) {
			hi--
		}
		if hi-lo < minSpanRunes {
			return
		}
		out = append(out, Span{Start: lo, End: hi, Text: string(line[lo:hi])})
	}

	end := clamp(s.End, len(line))
	pieceStart := clamp(s.Start, len(line))
	for i := pieceStart; i < end; {
		if !unicode.IsSpace(line[i]) {
			i++
			continue
		}
		j := i
		for j < end && unicode.IsSpace(line[j]) {
			j++
		}
		if j-i >= gapRun {
			emit(pieceStart, i)
			pieceStart = j
		}
		i = j
	}
	emit(pieceStart, end)
	return out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
