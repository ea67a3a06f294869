package pii

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tokenPattern = regexp.MustCompile(`[^\s-]+`)

// Detector applies a registry and a denylist to line text.
type Detector struct {
	registry *Registry
	denylist *Denylist
}

// NewDetector creates a detector. Nil arguments fall back to the defaults.
func NewDetector(registry *Registry, denylist *Denylist) *Detector {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if denylist == nil {
		denylist = DefaultDenylist()
	}
	return &Detector{registry: registry, denylist: denylist}
}

// Denylist exposes the detector vocabulary for span level re-checks.
func (d *Detector) Denylist() *Denylist {
	return d.denylist
}

// Detect returns surviving candidates sorted by start ascending, end descending.
func (d *Detector) Detect(line string) []Match {
	var out []Match
	for _, m := range d.registry.Matchers() {
		for _, c := range m.FindAll(line) {
			c, ok := trimMatch(c)
			if !ok {
				continue
			}
			if !d.denylist.Denied(c.Text) {
				out = append(out, c)
				continue
			}
			if c.Kind == KindName {
				if sub, ok := d.shrinkName(c); ok {
					out = append(out, sub)
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End > out[j].End
	})
	return out
}

// shrinkName finds the longest run of at least two tokens inside a denied
// name candidate that the denylist accepts, preferring the leftmost run.
func (d *Detector) shrinkName(c Match) (Match, bool) {
	toks := tokenPattern.FindAllStringIndex(c.Text, -1)
	for size := len(toks) - 1; size >= 2; size-- {
		for i := 0; i+size <= len(toks); i++ {
			lo, hi := toks[i][0], toks[i+size-1][1]
			text := c.Text[lo:hi]
			if d.denylist.Denied(text) {
				continue
			}
			start := c.Start + utf8.RuneCountInString(c.Text[:lo])
			return Match{
				Kind:  c.Kind,
				Text:  text,
				Start: start,
				End:   start + utf8.RuneCountInString(text),
			}, true
		}
	}
	return Match{}, false
}

func trimMatch(m Match) (Match, bool) {
	trimmed := strings.TrimLeftFunc(m.Text, unicode.IsSpace)
	lead := utf8.RuneCountInString(m.Text) - utf8.RuneCountInString(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if trimmed == "" {
		return m, false
	}
	m.Start += lead
	m.Text = trimmed
	m.End = m.Start + utf8.RuneCountInString(trimmed)
	return m, true
}
