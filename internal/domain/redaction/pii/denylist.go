package pii

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

//go:embed denylist.txt
var defaultTerms string

// Denylist holds lowercase vocabulary that disqualifies a candidate span.
// All terms are matched in a single pass with an Aho-Corasick automaton.
type Denylist struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
	terms   []string
}

// NewDenylist builds a denylist from terms. Terms are lowercased, blanks dropped.
func NewDenylist(terms []string) *Denylist {
	seen := make(map[string]struct{}, len(terms))
	clean := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		clean = append(clean, t)
	}

	d := &Denylist{terms: clean}
	if len(clean) > 0 {
		d.matcher = ahocorasick.NewStringMatcher(clean)
	}
	return d
}

// DefaultDenylist returns the embedded banking vocabulary.
func DefaultDenylist() *Denylist {
	return NewDenylist(ParseTerms(defaultTerms))
}

// ParseTerms reads one term per line; blank lines and # comments are skipped.
func ParseTerms(src string) []string {
	var terms []string
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms
}

// Denied reports whether the lowercase form of text contains any term.
func (d *Denylist) Denied(text string) bool {
	if d == nil || d.matcher == nil || text == "" {
		return false
	}
	lower := []byte(strings.ToLower(text))

	// the matcher keeps per-call scratch state
	d.mu.Lock()
	hits := d.matcher.Match(lower)
	d.mu.Unlock()
	return len(hits) > 0
}

// Len returns the number of distinct terms.
func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.terms)
}
