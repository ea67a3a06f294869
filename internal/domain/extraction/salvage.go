package extraction

type scanState int

const (
	scanNormal scanState = iota
	scanInString
	scanEscaped
)

// braceScanner tracks JSON string and escape state and object depth one byte
// at a time. Braces inside string values are ignored.
type braceScanner struct {
	state scanState
	depth int
}

// step consumes c and reports whether an object opened or closed at depth 0.
func (s *braceScanner) step(c byte) (opened, closed bool) {
	switch s.state {
	case scanEscaped:
		s.state = scanInString
	case scanInString:
		switch c {
		case '\\':
			s.state = scanEscaped
		case '"':
			s.state = scanNormal
		}
	case scanNormal:
		switch c {
		case '"':
			s.state = scanInString
		case '{':
			s.depth++
			return s.depth == 1, false
		case '}':
			if s.depth == 0 {
				return false, false
			}
			s.depth--
			return false, s.depth == 0
		}
	}
	return false, false
}

// SalvageObjects walks the body of a JSON array (the text after its '[') and
// returns every syntactically complete top-level object, in order. Scanning
// stops at the closing ']' or at the end of input; an unterminated trailing
// object is dropped.
func SalvageObjects(body string) []string {
	var (
		sc    braceScanner
		out   []string
		start = -1
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		if sc.state == scanNormal && sc.depth == 0 && c == ']' {
			break
		}
		opened, closed := sc.step(c)
		if opened {
			start = i
		}
		if closed && start >= 0 {
			out = append(out, body[start:i+1])
			start = -1
		}
	}
	return out
}

// matchingBrace returns the index of the '}' closing the object that opens
// at s[0].
func matchingBrace(s string) (int, bool) {
	var sc braceScanner
	for i := 0; i < len(s); i++ {
		if _, closed := sc.step(s[i]); closed {
			return i, true
		}
	}
	return 0, false
}
