package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(p Parsed) []string {
	out := make([]string, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		s, _ := tx["title"].(string)
		out = append(out, s)
	}
	return out
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		titles    []string
		end       bool
		cont      bool
		truncated bool
	}{
		{
			name:   "end marker with complete payload",
			raw:    `END --- {"transactions":[{"date":"2024-01-01","title":"Rent"},{"date":"2024-01-02","title":"Coffee"}]}`,
			titles: []string{"Rent", "Coffee"},
			end:    true,
		},
		{
			name:   "continue marker with code fences",
			raw:    "CONTINUE ---\n```json\n{\"transactions\":[{\"title\":\"Salary\"}]}\n```",
			titles: []string{"Salary"},
			cont:   true,
		},
		{
			name:   "marker only counts at the start",
			raw:    `Here you go --- END --- {"transactions":[{"title":"Fuel"}]}`,
			titles: []string{"Fuel"},
		},
		{
			name:   "trailing noise after the object",
			raw:    `{"transactions":[{"title":"Gym"}]} Let me know if you need more.`,
			titles: []string{"Gym"},
		},
		{
			name:   "type noise is stripped",
			raw:    `JsonObject {"transactions":[{"title":"Books"}]}`,
			titles: []string{"Books"},
		},
		{
			name: "error payload",
			raw:  `END --- {"error":"document unreadable","transactions":[{"title":"x"}]}`,
			end:  true,
		},
		{
			name: "missing transactions array",
			raw:  `{"rows":[{"title":"x"}]}`,
		},
		{
			name:      "truncated after two complete objects",
			raw:       `CONTINUE --- {"transactions":[{"date":"2024-01-01","title":"A"},{"date":"2024-01-02","title":"B, \"quoted\" {x}"},{"date":"2024-01-0`,
			titles:    []string{"A", `B, "quoted" {x}`},
			cont:      true,
			truncated: true,
		},
		{
			name:      "salvaged objects clear the end marker",
			raw:       `END --- {"transactions":[{"title":"A"},{"title":"B"`,
			titles:    []string{"A"},
			cont:      true,
			truncated: true,
		},
		{
			name:      "cut off inside the first object",
			raw:       `END --- {"transactions":[{"da`,
			end:       true,
			truncated: true,
		},
		{
			name: "prose without json",
			raw:  "I could not find any transactions in this document.",
		},
		{
			name: "empty reply",
			raw:  "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseResponse(tt.raw)
			if len(tt.titles) == 0 {
				assert.Empty(t, p.Transactions)
			} else {
				assert.Equal(t, tt.titles, titles(p))
			}
			assert.Equal(t, tt.end, p.End, "end")
			assert.Equal(t, tt.cont, p.Continue, "continue")
			assert.Equal(t, tt.truncated, p.Truncated, "truncated")
		})
	}
}

func TestParseResponse_ErrorPayloadFlag(t *testing.T) {
	p := ParseResponse(`{"error":"quota"}`)
	assert.True(t, p.ErrorPayload)
	assert.Empty(t, p.Transactions)

	p = ParseResponse(`{"error":null,"transactions":[{"title":"ok"}]}`)
	assert.False(t, p.ErrorPayload)
	assert.Len(t, p.Transactions, 1)
}

func TestParseResponse_NonObjectRowsAreKept(t *testing.T) {
	p := ParseResponse(`{"transactions":[{"title":"a"}, null, 3]}`)
	require.Len(t, p.Transactions, 3)
	assert.Empty(t, p.Transactions[1])
}

func TestParseResponse_TruncatedNObjects(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"transactions":[`)
	for i := 0; i < 7; i++ {
		b.WriteString(`{"date":"2024-02-01","title":"row","amount":`)
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString(`},`)
	}
	b.WriteString(`{"date":"2024-02-01","title":"ro`)

	p := ParseResponse(b.String())
	assert.Len(t, p.Transactions, 7)
	assert.True(t, p.Truncated)
	assert.True(t, p.Continue)
	assert.False(t, p.End)
}

func TestSalvageObjects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"escaped quote and brace in string", `{"t":"a \"}\" b"},{"t":"c"}]`, []string{`{"t":"a \"}\" b"}`, `{"t":"c"}`}},
		{"escaped backslash before quote", `{"t":"a\\"},{"t":"b"}`, []string{`{"t":"a\\"}`, `{"t":"b"}`}},
		{"nested objects", `{"t":{"u":{"v":1}}},{"t":2}`, []string{`{"t":{"u":{"v":1}}}`, `{"t":2}`}},
		{"unterminated tail", `{"t":1},{"t":"{`, []string{`{"t":1}`}},
		{"stops at array end", `{"t":1}],"other":[{"t":2}]}`, []string{`{"t":1}`}},
		{"stray closing brace", `}{"t":1}`, []string{`{"t":1}`}},
		{"nothing", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SalvageObjects(tt.body))
		})
	}
}

func TestMatchingBrace(t *testing.T) {
	end, ok := matchingBrace(`{"a":"}"} tail`)
	require.True(t, ok)
	assert.Equal(t, 8, end)

	_, ok = matchingBrace(`{"a":1`)
	assert.False(t, ok)
}
