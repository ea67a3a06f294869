package transaction

import (
	"fmt"
	"sort"

	"github.com/FACorreiaa/bankstatement2csv/pkg/money"
)

// Summary aggregates a statement in a single currency.
type Summary struct {
	Count       int          `json:"count"`
	TotalDebit  *money.Money `json:"total_debit"`
	TotalCredit *money.Money `json:"total_credit"`
	// Net is credits minus debits.
	Net        *money.Money            `json:"net"`
	ByCategory map[string]*money.Money `json:"by_category"`
	FirstDate  string                  `json:"first_date,omitempty"`
	LastDate   string                  `json:"last_date,omitempty"`
}

// Categories returns the category names in alphabetical order.
func (s Summary) Categories() []string {
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summarize totals debits and credits with integer minor units so long
// statements do not accumulate float error. Category totals are debits and
// add up to the total debit.
func Summarize(txs []Transaction, currency string) (Summary, error) {
	s := Summary{
		Count:       len(txs),
		TotalCredit: money.Zero(currency),
		ByCategory:  make(map[string]*money.Money),
	}

	var err error
	for _, tx := range txs {
		debit := money.NewFromFloat(tx.Debit, currency)
		credit := money.NewFromFloat(tx.Credit, currency)

		if s.TotalCredit, err = s.TotalCredit.Add(credit); err != nil {
			return Summary{}, fmt.Errorf("total credit: %w", err)
		}
		if !debit.IsZero() {
			cat, ok := s.ByCategory[tx.Category]
			if !ok {
				cat = money.Zero(currency)
			}
			if s.ByCategory[tx.Category], err = cat.Add(debit); err != nil {
				return Summary{}, err
			}
		}

		if tx.Date != "" {
			if s.FirstDate == "" || tx.Date < s.FirstDate {
				s.FirstDate = tx.Date
			}
			if tx.Date > s.LastDate {
				s.LastDate = tx.Date
			}
		}
	}

	debits := make([]*money.Money, 0, len(s.ByCategory))
	for _, total := range s.ByCategory {
		debits = append(debits, total)
	}
	if s.TotalDebit, err = money.Sum(currency, debits...); err != nil {
		return Summary{}, fmt.Errorf("total debit: %w", err)
	}
	if s.Net, err = s.TotalCredit.Subtract(s.TotalDebit); err != nil {
		return Summary{}, err
	}
	return s, nil
}
