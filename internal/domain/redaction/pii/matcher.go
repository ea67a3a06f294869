// Package pii finds personally identifiable information in reconstructed
// statement lines with an ordered registry of typed matchers and a banking
// vocabulary denylist that suppresses boilerplate false positives.
package pii

import (
	"regexp"
	"unicode/utf8"
)

// MatchKind identifies the detector that produced a match.
type MatchKind int

const (
	KindEmail MatchKind = iota + 1
	KindPhone
	KindNationalID
	KindCard
	KindIBAN
	KindLongNumber
	KindName
)

func (k MatchKind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	case KindNationalID:
		return "national_id"
	case KindCard:
		return "card"
	case KindIBAN:
		return "iban"
	case KindLongNumber:
		return "long_number"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// Match is a candidate span in rune offsets of the line text.
type Match struct {
	Kind  MatchKind
	Text  string
	Start int
	End   int
}

// Matcher finds raw candidates of a single kind. Candidates are not trimmed
// or filtered against the denylist.
type Matcher interface {
	Kind() MatchKind
	FindAll(line string) []Match
}

// RegexMatcher reports every non-overlapping match of Pattern. When Group is
// set, the span of that capture group is reported instead of the whole match
// and scanning resumes at the end of the group, so boundary characters the
// pattern consumes around the group remain available to the next match.
type RegexMatcher struct {
	kind    MatchKind
	pattern *regexp.Regexp
	group   int
	accept  func(string) bool
}

// NewRegexMatcher compiles expr for the given kind.
func NewRegexMatcher(kind MatchKind, expr string) *RegexMatcher {
	return &RegexMatcher{kind: kind, pattern: regexp.MustCompile(expr)}
}

// WithGroup reports the span of capture group n.
func (m *RegexMatcher) WithGroup(n int) *RegexMatcher {
	m.group = n
	return m
}

// WithAccept drops candidates for which fn returns false.
func (m *RegexMatcher) WithAccept(fn func(string) bool) *RegexMatcher {
	m.accept = fn
	return m
}

func (m *RegexMatcher) Kind() MatchKind { return m.kind }

func (m *RegexMatcher) FindAll(line string) []Match {
	locs := m.locate(line)
	if len(locs) == 0 {
		return nil
	}

	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		lo, hi := loc[2*m.group], loc[2*m.group+1]
		if lo < 0 || hi <= lo {
			continue
		}
		text := line[lo:hi]
		if m.accept != nil && !m.accept(text) {
			continue
		}
		start := utf8.RuneCountInString(line[:lo])
		out = append(out, Match{
			Kind:  m.kind,
			Text:  text,
			Start: start,
			End:   start + utf8.RuneCountInString(text),
		})
	}
	return out
}

// locate returns submatch indexes relative to line. Group matchers rescan
// from the group end; the pattern sees only the remaining text, so it has to
// consume its own left boundary rather than rely on \b or ^.
func (m *RegexMatcher) locate(line string) [][]int {
	if m.group == 0 {
		return m.pattern.FindAllStringSubmatchIndex(line, -1)
	}

	var locs [][]int
	for pos := 0; pos < len(line); {
		loc := m.pattern.FindStringSubmatchIndex(line[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		locs = append(locs, loc)

		next := loc[2*m.group+1]
		if next <= pos {
			next = loc[1]
		}
		if next <= pos {
			_, size := utf8.DecodeRuneInString(line[pos:])
			next = pos + size
		}
		pos = next
	}
	return locs
}

// Registry is the ordered set of matchers applied to every line.
type Registry struct {
	matchers []Matcher
}

// NewRegistry builds a registry from matchers, in order.
func NewRegistry(matchers ...Matcher) *Registry {
	return &Registry{matchers: matchers}
}

// Register appends a matcher.
func (r *Registry) Register(m Matcher) {
	r.matchers = append(r.matchers, m)
}

// Matchers returns the registered matchers in order.
func (r *Registry) Matchers() []Matcher {
	return r.matchers
}

const (
	nameUpper = `A-ZĂÂÎȘȚŞŢ`
	nameLower = `a-zăâîșțşţ`
	nameToken = `(?:[` + nameUpper + `][` + nameLower + `]+|[` + nameUpper + `]{2,})`
	// honorific prefix is optional; boundaries are letters/digits in any script
	nameExpr = `(?:^|[^\p{L}\p{N}_])(` +
		`(?:(?:Dna|Dl|Doamna|Domnul|Mr|Mrs|Ms|Miss|Sir|Madam)\.?\s+)?` +
		nameToken + `(?:[\s-]` + nameToken + `){1,4}` +
		`)(?:[^\p{L}\p{N}_]|$)`
)

var datePrefix = regexp.MustCompile(`^(?:\d{4}(?:0[1-9]|1[0-2])[0-3]\d|(?:0[1-9]|1[0-2])[0-3]\d\d{4})`)

// DefaultRegistry returns the statement detectors in their canonical order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewRegexMatcher(KindEmail, `(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
		NewRegexMatcher(KindPhone, `(?:(?:\+|00)?\d{2,3}[\s.-]?)?(?:\(?\d{2,4}\)?[\s.-]?)?\d{3,4}[\s.-]?\d{3,4}`),
		NewRegexMatcher(KindNationalID, `\b[1-9]\d{12}\b`),
		NewRegexMatcher(KindCard, `\b(?:\d[ -]?){13,19}\b`),
		NewRegexMatcher(KindIBAN, `\b[A-Z]{2}\d{2}[A-Z0-9]{8,30}\b`),
		NewRegexMatcher(KindLongNumber, `\b\d{9,}\b`).WithAccept(func(s string) bool {
			return !datePrefix.MatchString(s)
		}),
		NewRegexMatcher(KindName, nameExpr).WithGroup(1),
	)
}
