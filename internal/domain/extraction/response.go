package extraction

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
)

const (
	ContinueMarker = "CONTINUE ---"
	EndMarker      = "END ---"
)

var (
	reInlineMarker = regexp.MustCompile(`(?i)---\s*(CONTINUE|END)\s*---`)
	reJSONFence    = regexp.MustCompile("(?i)```json\\s*")
	reFence        = regexp.MustCompile("```")
	reTypeNoise    = regexp.MustCompile(`(?i)JsonArray|JsonObject|JsonValue`)
	reTxArray      = regexp.MustCompile(`"transactions"\s*:\s*\[`)
)

// Parsed is the interpretation of one model reply.
type Parsed struct {
	Transactions []transaction.Raw
	End          bool
	Continue     bool
	Truncated    bool
	// Malformed counts salvaged objects that did not decode.
	Malformed int
	// ErrorPayload is set when the model answered with an "error" object.
	ErrorPayload bool
}

// ParseResponse interprets a raw model reply. It never fails: anything it
// cannot read yields zero transactions.
func ParseResponse(raw string) Parsed {
	trimmed := strings.TrimSpace(raw)

	var p Parsed
	remainder := trimmed
	switch {
	case strings.HasPrefix(trimmed, ContinueMarker):
		p.Continue = true
		remainder = strings.TrimSpace(trimmed[len(ContinueMarker):])
	case strings.HasPrefix(trimmed, EndMarker):
		p.End = true
		remainder = strings.TrimSpace(trimmed[len(EndMarker):])
	}

	remainder = reInlineMarker.ReplaceAllString(remainder, "")
	remainder = reJSONFence.ReplaceAllString(remainder, "")
	remainder = reFence.ReplaceAllString(remainder, "")
	remainder = reTypeNoise.ReplaceAllString(remainder, "")
	remainder = strings.TrimSpace(remainder)

	if i := strings.IndexByte(remainder, '{'); i > 0 {
		remainder = remainder[i:]
	}
	if remainder == "" {
		return p
	}

	candidate := remainder
	if strings.HasPrefix(candidate, "{") {
		if end, ok := matchingBrace(candidate); ok {
			candidate = candidate[:end+1]
		}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
		if truthy(doc["error"]) {
			p.ErrorPayload = true
			return p
		}
		if items, ok := doc["transactions"].([]any); ok {
			p.Transactions = toRaw(items)
		}
		return p
	}

	// Without an opened transactions array there is nothing to resume from,
	// so the reply counts as no progress rather than a cut-off.
	loc := reTxArray.FindStringIndex(remainder)
	if loc == nil {
		return p
	}
	p.Truncated = true

	objects := SalvageObjects(remainder[loc[1]:])
	for _, obj := range objects {
		var rec map[string]any
		if err := json.Unmarshal([]byte(obj), &rec); err != nil {
			p.Malformed++
			continue
		}
		p.Transactions = append(p.Transactions, transaction.Raw(rec))
	}
	if len(p.Transactions) > 0 {
		p.End = false
		p.Continue = true
	}
	return p
}

func toRaw(items []any) []transaction.Raw {
	out := make([]transaction.Raw, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			// keep the row; the normalizer fills in defaults
			rec = map[string]any{}
		}
		out = append(out, transaction.Raw(rec))
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
