package transaction

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/bankstatement2csv/pkg/money"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want Transaction
	}{
		{
			name: "comma decimal credit",
			raw:  Raw{"date": "2024-03-01", "title": "Refund", "amount": "-120,50"},
			want: Transaction{Date: "2024-03-01", Title: "Refund", Credit: 120.5, Amount: -120.5, Category: "Other"},
		},
		{
			name: "positive amount becomes debit",
			raw:  Raw{"title": "Coffee", "amount": 3.2, "category": "Food"},
			want: Transaction{Title: "Coffee", Debit: 3.2, Amount: 3.2, Category: "Food"},
		},
		{
			name: "explicit debit keeps amount",
			raw:  Raw{"debit": "45.10", "amount": 45.1},
			want: Transaction{Debit: 45.1, Amount: 45.1, Category: "Other"},
		},
		{
			name: "amount with spaces",
			raw:  Raw{"amount": "1 234,56"},
			want: Transaction{Debit: 1234.56, Amount: 1234.56, Category: "Other"},
		},
		{
			name: "unreadable numbers are zero",
			raw:  Raw{"debit": "n/a", "credit": []any{1}, "amount": "abc"},
			want: Transaction{Category: "Other"},
		},
		{
			name: "empty category is kept",
			raw:  Raw{"category": "", "note": 12.0},
			want: Transaction{Category: "", Note: "12"},
		},
		{
			name: "empty record",
			raw:  Raw{},
			want: Transaction{Category: "Other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]Raw{tt.raw})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestNormalize_NeverDrops(t *testing.T) {
	raw := []Raw{{}, nil, {"title": "x"}}
	assert.Len(t, Normalize(raw), 3)
}

func TestNormalize_FromDecodedJSON(t *testing.T) {
	var raw []Raw
	require.NoError(t, json.Unmarshal([]byte(`[{"date":"2024-01-05","title":"Salary","credit":1500,"amount":-1500}]`), &raw))

	got := Normalize(raw)
	assert.Equal(t, 1500.0, got[0].Credit)
	assert.Equal(t, 0.0, got[0].Debit)
	assert.Equal(t, -1500.0, got[0].Amount)
}

func TestEncodeCSV(t *testing.T) {
	txs := []Transaction{
		{Date: "2024-03-01", Title: "Refund", Credit: 120.5, Category: "Other"},
		{Date: "2024-03-02", Title: "Dinner, drinks", Debit: 42, Category: "Food", Note: "said \"thanks\"\nsecond line"},
	}

	out, err := EncodeCSV(txs)
	require.NoError(t, err)

	want := "date,title,debit,credit,category,note\n" +
		"2024-03-01,Refund,0,120.5,Other,\n" +
		"2024-03-02,\"Dinner, drinks\",42,0,Food,\"said \"\"thanks\"\"\nsecond line\""
	assert.Equal(t, want, string(out))
}

func TestEncodeCSV_Empty(t *testing.T) {
	out, err := EncodeCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "date,title,debit,credit,category,note", string(out))
}

func TestEncodeCSV_RoundTrip(t *testing.T) {
	gen := money.NewTestDataGeneratorWithSeed(99)
	rows := gen.Rows(money.EUR, 40)

	txs := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, Transaction{
			Date:     r.Date.Format("2006-01-02"),
			Title:    r.Title,
			Debit:    r.Debit.ToFloat64(),
			Credit:   r.Credit.ToFloat64(),
			Amount:   r.Signed().ToFloat64(),
			Category: r.Category,
			Note:     r.Note,
		})
	}

	out, err := EncodeCSV(txs)
	require.NoError(t, err)
	assert.False(t, bytes.HasSuffix(out, []byte("\n")))

	back, err := DecodeCSV(out)
	require.NoError(t, err)
	require.Len(t, back, len(txs))
	for i := range txs {
		assert.Equal(t, txs[i].Date, back[i].Date)
		assert.Equal(t, txs[i].Title, back[i].Title)
		assert.Equal(t, txs[i].Note, back[i].Note)
		assert.InDelta(t, txs[i].Debit, back[i].Debit, 1e-9)
		assert.InDelta(t, txs[i].Credit, back[i].Credit, 1e-9)
		assert.InDelta(t, txs[i].Amount, back[i].Amount, 1e-9)
	}
}

func TestEncodeXLSX(t *testing.T) {
	txs := []Transaction{
		{Date: "2024-03-01", Title: "Refund", Credit: 120.5, Category: "Other"},
		{Date: "2024-03-02", Title: "Dinner, drinks", Debit: 42, Category: "Food", Note: "n"},
	}

	out, err := EncodeXLSX(txs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "title", "debit", "credit", "category", "note"}, rows[0])
	assert.Equal(t, "Dinner, drinks", rows[2][1])
	assert.Equal(t, "42", rows[2][2])
	assert.Equal(t, "120.5", rows[1][3])
}

func TestFileNames(t *testing.T) {
	now := time.Date(2024, time.June, 30, 10, 15, 0, 123e6, time.FixedZone("WEST", 3600))

	assert.Equal(t, "june-2024-06-30T09-15-00-123Z.csv", CSVName("june.pdf", now))
	assert.Equal(t, "archive.2024-2024-06-30T09-15-00-123Z.csv", CSVName("archive.2024.pdf", now))
	assert.Equal(t, "statement-2024-06-30T09-15-00-123Z.csv", CSVName(".pdf", now))
	assert.Equal(t, "june-2024-06-30T09-15-00-123Z.xlsx", XLSXName("june.pdf", now))

	assert.Equal(t, "My_Statement__June__redacted.pdf", RedactedName(" My Statement (June).pdf "))
	assert.Equal(t, "statement_redacted.pdf", RedactedName(".pdf"))
	assert.Equal(t, "noext_redacted.pdf", RedactedName("noext"))
	assert.Equal(t, "job-1/june_redacted.pdf", RedactedKey("job-1", "june.pdf"))
}

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Date: "2024-03-02", Debit: 10.10, Category: "Food"},
		{Date: "2024-03-01", Debit: 0.20, Category: "Food"},
		{Date: "2024-03-05", Credit: 100, Category: "Income"},
		{Date: "2024-03-03", Debit: 5, Category: "Transport"},
	}

	s, err := Summarize(txs, money.EUR)
	require.NoError(t, err)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, int64(1530), s.TotalDebit.Amount())
	assert.Equal(t, int64(10000), s.TotalCredit.Amount())
	assert.Equal(t, int64(8470), s.Net.Amount())
	assert.Equal(t, []string{"Food", "Transport"}, s.Categories())
	assert.Equal(t, int64(1030), s.ByCategory["Food"].Amount())
	assert.Equal(t, "2024-03-01", s.FirstDate)
	assert.Equal(t, "2024-03-05", s.LastDate)
}

func TestSummarize_JSON(t *testing.T) {
	txs := []Transaction{
		{Date: "2024-03-01", Debit: 12.5, Category: "Food"},
		{Date: "2024-03-02", Debit: 2.5},
		{Date: "2024-03-04", Credit: 20, Category: "Income"},
	}

	s, err := Summarize(txs, money.EUR)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), s.TotalDebit.Amount())
	assert.Equal(t, int64(250), s.ByCategory[""].Amount())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"count": 3,
		"total_debit": {"amount": 1500, "currency": "EUR"},
		"total_credit": {"amount": 2000, "currency": "EUR"},
		"net": {"amount": 500, "currency": "EUR"},
		"by_category": {
			"": {"amount": 250, "currency": "EUR"},
			"Food": {"amount": 1250, "currency": "EUR"}
		},
		"first_date": "2024-03-01",
		"last_date": "2024-03-04"
	}`, string(b))
}

func TestSummarize_Empty(t *testing.T) {
	s, err := Summarize(nil, money.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count)
	assert.True(t, s.TotalDebit.IsZero())
	assert.Equal(t, money.EUR, s.TotalDebit.Currency())
	assert.True(t, s.Net.IsZero())
}

func TestEscapeField(t *testing.T) {
	assert.Equal(t, "plain", escapeField("plain"))
	assert.Equal(t, " padded ", escapeField(" padded "))
	assert.Equal(t, `"a,b"`, escapeField("a,b"))
	assert.Equal(t, `"say ""hi"""`, escapeField(`say "hi"`))
	assert.True(t, strings.HasPrefix(escapeField("a\nb"), `"`))
}
