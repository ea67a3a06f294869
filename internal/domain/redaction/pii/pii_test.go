package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(ms []Match) []MatchKind {
	out := make([]MatchKind, len(ms))
	for i, m := range ms {
		out[i] = m.Kind
	}
	return out
}

func findKind(ms []Match, k MatchKind) (Match, bool) {
	for _, m := range ms {
		if m.Kind == k {
			return m, true
		}
	}
	return Match{}, false
}

func matcherFor(t *testing.T, k MatchKind) Matcher {
	t.Helper()
	for _, m := range DefaultRegistry().Matchers() {
		if m.Kind() == k {
			return m
		}
	}
	t.Fatalf("no matcher for %s", k)
	return nil
}

func TestMatchKind_String(t *testing.T) {
	assert.Equal(t, "email", KindEmail.String())
	assert.Equal(t, "iban", KindIBAN.String())
	assert.Equal(t, "name", KindName.String())
	assert.Equal(t, "unknown", MatchKind(0).String())
}

func TestDefaultRegistry_Order(t *testing.T) {
	var got []MatchKind
	for _, m := range DefaultRegistry().Matchers() {
		got = append(got, m.Kind())
	}
	assert.Equal(t, []MatchKind{
		KindEmail, KindPhone, KindNationalID, KindCard, KindIBAN, KindLongNumber, KindName,
	}, got)
}

func TestMatchers(t *testing.T) {
	tests := []struct {
		name string
		kind MatchKind
		line string
		want []string
	}{
		{"email case insensitive", KindEmail, "mail: Ion.Popescu@Example.RO ok", []string{"Ion.Popescu@Example.RO"}},
		{"national id", KindNationalID, "CNP 1850101123456", []string{"1850101123456"}},
		{"national id rejects leading zero", KindNationalID, "0850101123456", nil},
		{"card with spaces", KindCard, "card 4111 1111 1111 1111", []string{"4111 1111 1111 1111"}},
		{"iban", KindIBAN, "IBAN RO49AAAA1B31007593840000", []string{"RO49AAAA1B31007593840000"}},
		{"long number", KindLongNumber, "ref 987654321", []string{"987654321"}},
		{"long number skips day first date prefix", KindLongNumber, "20240115123", nil},
		{"long number skips month first date prefix", KindLongNumber, "01152024999", nil},
		{"name two tokens", KindName, "Paid to John Smith", []string{"John Smith"}},
		{"name with honorific", KindName, "Domnul Ion Popescu", []string{"Domnul Ion Popescu"}},
		{"name with diacritics", KindName, "Plată către Ștefan Popescu", []string{"Ștefan Popescu"}},
		{"name all caps hyphenated", KindName, "ANA-MARIA POP", []string{"ANA-MARIA POP"}},
		{"single token is not a name", KindName, "Popescu", nil},
		{"names joined by slash", KindName, "John Smith/Jane Doe", []string{"John Smith", "Jane Doe"}},
		{"names joined by comma", KindName, "John Smith,Jane Doe", []string{"John Smith", "Jane Doe"}},
		{"caps names joined by slash", KindName, "ION POPESCU/MARIA POPESCU", []string{"ION POPESCU", "MARIA POPESCU"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := matcherFor(t, tt.kind).FindAll(tt.line)
			var got []string
			for _, m := range ms {
				got = append(got, m.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegexMatcher_RuneOffsets(t *testing.T) {
	line := "Plată către Ștefan Popescu"
	ms := matcherFor(t, KindName).FindAll(line)
	require.Len(t, ms, 1)
	assert.Equal(t, 12, ms[0].Start)
	assert.Equal(t, 26, ms[0].End)
	assert.Equal(t, []rune(line)[12:26], []rune(ms[0].Text))
}

func TestDetector_AdjacentNamesShareSeparator(t *testing.T) {
	det := NewDetector(nil, NewDenylist(nil))

	ms := det.Detect("Beneficiari: John Smith/Jane Doe")

	var names []Match
	for _, m := range ms {
		if m.Kind == KindName {
			names = append(names, m)
		}
	}
	require.Len(t, names, 2)
	assert.Equal(t, "John Smith", names[0].Text)
	assert.Equal(t, 13, names[0].Start)
	assert.Equal(t, 23, names[0].End)
	assert.Equal(t, "Jane Doe", names[1].Text)
	assert.Equal(t, 24, names[1].Start)
	assert.Equal(t, 32, names[1].End)
}

func TestDenylist(t *testing.T) {
	d := NewDenylist([]string{"IBAN", " ing ", "", "iban"})
	assert.Equal(t, 2, d.Len())

	assert.True(t, d.Denied("Pending"))
	assert.True(t, d.Denied("my Iban code"))
	assert.False(t, d.Denied("John Smith"))
	assert.False(t, d.Denied(""))

	var nilList *Denylist
	assert.False(t, nilList.Denied("iban"))
}

func TestDefaultDenylist_Loaded(t *testing.T) {
	d := DefaultDenylist()
	assert.Greater(t, d.Len(), 400)
	assert.True(t, d.Denied("Sold Initial"))
	assert.True(t, d.Denied("TRANZACTIE POS"))
	assert.False(t, d.Denied("John Smith"))
}

func TestParseTerms(t *testing.T) {
	got := ParseTerms("# comment\n\n iban \nswift\n")
	assert.Equal(t, []string{"iban", "swift"}, got)
}

func TestDetector_NameAndIBANSurviveDenylist(t *testing.T) {
	det := NewDetector(nil, NewDenylist([]string{"iban", "ing"}))
	line := "John Smith IBAN RO49AAAA1B31007593840000 ing"

	ms := det.Detect(line)

	name, ok := findKind(ms, KindName)
	require.True(t, ok, "name is detected")
	assert.Equal(t, "John Smith", name.Text)
	assert.Equal(t, 0, name.Start)
	assert.Equal(t, 10, name.End)

	iban, ok := findKind(ms, KindIBAN)
	require.True(t, ok, "iban is detected")
	assert.Equal(t, "RO49AAAA1B31007593840000", iban.Text)
	assert.Equal(t, 16, iban.Start)
	assert.Equal(t, 40, iban.End)

	for _, m := range ms {
		assert.NotContains(t, m.Text, "ing")
	}
}

func TestDetector_SortOrder(t *testing.T) {
	det := NewDetector(nil, NewDenylist(nil))
	ms := det.Detect("John Smith IBAN RO49AAAA1B31007593840000")

	for i := 1; i < len(ms); i++ {
		prev, cur := ms[i-1], ms[i]
		assert.True(t, prev.Start < cur.Start || (prev.Start == cur.Start && prev.End >= cur.End),
			"matches sorted by start asc, end desc: %v then %v", prev, cur)
	}
	assert.Contains(t, kinds(ms), KindIBAN)
	assert.Contains(t, kinds(ms), KindPhone)
}

func TestDetector_DenylistSuppressesBoilerplate(t *testing.T) {
	det := NewDetector(nil, nil)
	ms := det.Detect("Sold Initial")
	assert.Empty(t, ms)
}

func TestDetector_TrimsCandidates(t *testing.T) {
	reg := NewRegistry(NewRegexMatcher(KindName, `\s*[A-Z][a-z]+ [A-Z][a-z]+`))
	det := NewDetector(reg, NewDenylist(nil))

	ms := det.Detect("ab  John Smith")
	require.Len(t, ms, 1)
	assert.Equal(t, "John Smith", ms[0].Text)
	assert.Equal(t, 4, ms[0].Start)
	assert.Equal(t, 14, ms[0].End)
}
