package transaction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// csvRow is the download layout. Numbers are pre-rendered so the writer can
// leave them unquoted.
type csvRow struct {
	Date     string `csv:"date"`
	Title    string `csv:"title"`
	Debit    string `csv:"debit"`
	Credit   string `csv:"credit"`
	Category string `csv:"category"`
	Note     string `csv:"note"`
}

// EncodeCSV renders the header and one line per transaction, joined by "\n"
// without a trailing newline.
func EncodeCSV(txs []Transaction) ([]byte, error) {
	rows := make([]csvRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, csvRow{
			Date:     tx.Date,
			Title:    tx.Title,
			Debit:    formatNumber(tx.Debit),
			Credit:   formatNumber(tx.Credit),
			Category: tx.Category,
			Note:     tx.Note,
		})
	}

	w := &lineWriter{}
	if len(rows) == 0 {
		// header only
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		return w.Bytes(), nil
	}
	if err := gocsv.MarshalCSV(&rows, w); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return w.Bytes(), nil
}

var csvHeader = []string{"date", "title", "debit", "credit", "category", "note"}

// DecodeCSV parses a document produced by EncodeCSV. Amount is derived as
// debit minus credit.
func DecodeCSV(data []byte) ([]Transaction, error) {
	var rows []csvRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	out := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		debit, credit := number(r.Debit), number(r.Credit)
		out = append(out, Transaction{
			Date:     r.Date,
			Title:    r.Title,
			Debit:    debit,
			Credit:   credit,
			Amount:   debit - credit,
			Category: r.Category,
			Note:     r.Note,
		})
	}
	return out, nil
}

// lineWriter implements gocsv.CSVWriter with minimal quoting: a field is
// quoted only when it holds a comma, a newline or a double quote.
type lineWriter struct {
	buf  bytes.Buffer
	rows int
}

func (w *lineWriter) Write(row []string) error {
	if w.rows > 0 {
		w.buf.WriteByte('\n')
	}
	for i, field := range row {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.buf.WriteString(escapeField(field))
	}
	w.rows++
	return nil
}

func (w *lineWriter) Flush() {}

func (w *lineWriter) Error() error { return nil }

func (w *lineWriter) Bytes() []byte { return w.buf.Bytes() }

func escapeField(s string) string {
	if !strings.ContainsAny(s, ",\n\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
