package extraction

import (
	"encoding/json"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
)

const fingerprintNoteRunes = 100

// Fingerprint is the content key of a raw record: date, title, debit, credit,
// amount and the first 100 runes of the note. Missing text fields count as ""
// and missing numbers as 0.
func Fingerprint(r transaction.Raw) string {
	key := []any{
		orDefault(r["date"], ""),
		orDefault(r["title"], ""),
		orDefault(r["debit"], 0),
		orDefault(r["credit"], 0),
		orDefault(r["amount"], 0),
		noteKey(r["note"]),
	}
	b, err := json.Marshal(key)
	if err != nil {
		// only reachable with values a JSON decoder never produces
		return ""
	}
	return string(b)
}

func orDefault(v, def any) any {
	if v == nil {
		return def
	}
	return v
}

func noteKey(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		runes := []rune(n)
		if len(runes) > fingerprintNoteRunes {
			return string(runes[:fingerprintNoteRunes])
		}
		return n
	default:
		return n
	}
}

// DedupSet remembers fingerprints. It is not safe for concurrent use.
type DedupSet struct {
	seen map[string]struct{}
}

// NewDedupSet returns an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// Add records r and reports whether it was new.
func (d *DedupSet) Add(r transaction.Raw) bool {
	key := Fingerprint(r)
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct records seen.
func (d *DedupSet) Len() int {
	return len(d.seen)
}

// Filter returns the records of rs not seen before, in order, and the number
// of dropped duplicates.
func (d *DedupSet) Filter(rs []transaction.Raw) ([]transaction.Raw, int) {
	out := make([]transaction.Raw, 0, len(rs))
	dropped := 0
	for _, r := range rs {
		if d.Add(r) {
			out = append(out, r)
			continue
		}
		dropped++
	}
	return out, dropped
}
