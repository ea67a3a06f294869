// Package transaction turns raw model records into typed statement rows and
// encodes them for download.
package transaction

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/FACorreiaa/bankstatement2csv/pkg/money"
)

// DefaultCategory is used when a record carries no category.
const DefaultCategory = "Other"

// Raw is a transaction object as decoded from the model's JSON.
type Raw map[string]any

// Transaction is a normalized statement row. Debit and Credit are never
// negative after normalization of a single amount column.
type Transaction struct {
	Date     string
	Title    string
	Debit    float64
	Credit   float64
	Amount   float64
	Category string
	Note     string
}

// Normalize converts raw records one to one; no record is dropped.
func Normalize(raw []Raw) []Transaction {
	out := make([]Transaction, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeOne(r))
	}
	return out
}

func normalizeOne(r Raw) Transaction {
	tx := Transaction{
		Date:     text(r["date"], ""),
		Title:    text(r["title"], ""),
		Category: text(r["category"], DefaultCategory),
		Note:     text(r["note"], ""),
		Debit:    number(r["debit"]),
		Credit:   number(r["credit"]),
		Amount:   number(r["amount"]),
	}

	if tx.Debit == 0 && tx.Credit == 0 {
		amount := signedAmount(r["amount"])
		if amount < 0 {
			tx.Credit = math.Abs(amount)
		} else {
			tx.Debit = math.Abs(amount)
		}
		tx.Amount = amount
	}
	return tx
}

// signedAmount reads a single net amount column. Strings are parsed locale
// tolerant, anything unreadable is 0.
func signedAmount(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return number(v)
	}
	d, err := money.ParseAmount(s)
	if err != nil {
		return 0
	}
	return finite(d.InexactFloat64())
}

// number coerces a JSON value to a finite float. Numeric strings are read
// strictly (surrounding whitespace allowed, empty is 0); everything else
// that is not a number is 0.
func number(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case int:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return finite(f)
	default:
		return 0
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// text renders a JSON value as a string, def when absent.
func text(v any, def string) string {
	switch s := v.(type) {
	case nil:
		return def
	case string:
		return s
	case float64:
		return formatNumber(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return def
		}
		return string(b)
	}
}

// formatNumber renders the shortest decimal form, with no negative zero.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
