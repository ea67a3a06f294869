package money

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// TestDataGenerator generates realistic statement rows using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(0), // Random seed
	}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
	}
}

// StatementRow is one generated statement line. Exactly one of Debit and
// Credit is non zero.
type StatementRow struct {
	Date     time.Time
	Title    string
	Debit    *Money
	Credit   *Money
	Category string
	Note     string
}

// Signed returns the row amount with credits negative, the convention of a
// single net amount column.
func (r StatementRow) Signed() *Money {
	if !r.Credit.IsZero() {
		return r.Credit.Negate()
	}
	return r.Debit
}

// Row generates a single random statement row.
func (g *TestDataGenerator) Row(currency string) StatementRow {
	if g.faker.Number(0, 4) == 0 {
		return g.IncomeRow(currency)
	}
	return g.ExpenseRow(currency)
}

// Rows generates count rows in ascending date order.
func (g *TestDataGenerator) Rows(currency string, count int) []StatementRow {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]StatementRow, count)
	for i := range rows {
		rows[i] = g.Row(currency)
		rows[i].Date = start.AddDate(0, 0, i)
	}
	return rows
}

// ExpenseRow generates a debit row.
func (g *TestDataGenerator) ExpenseRow(currency string) StatementRow {
	return StatementRow{
		Date:     g.date(),
		Title:    g.Merchant(),
		Debit:    g.RandomAmount(currency, 1, 50000), // 0.01 to 500.00
		Credit:   Zero(currency),
		Category: g.Category(),
		Note:     g.TransactionDescription(),
	}
}

// IncomeRow generates a credit row.
func (g *TestDataGenerator) IncomeRow(currency string) StatementRow {
	return StatementRow{
		Date:     g.date(),
		Title:    g.IncomeDescription(),
		Debit:    Zero(currency),
		Credit:   g.RandomAmount(currency, 100000, 1000000), // 1,000 to 10,000
		Category: "Income",
		Note:     g.faker.Sentence(4),
	}
}

// RandomAmount generates a random Money value within a cent range.
func (g *TestDataGenerator) RandomAmount(currency string, minCents, maxCents int64) *Money {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	cents := g.faker.Int64() % (maxCents - minCents + 1)
	if cents < 0 {
		cents = -cents
	}
	return New(minCents+cents, currency)
}

func (g *TestDataGenerator) date() time.Time {
	end := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	return g.faker.DateRange(end.AddDate(-1, 0, 0), end).Truncate(24 * time.Hour)
}

// Categories the extraction prompt allows.
var expenseCategories = []string{"Food", "Transport", "Shopping", "Bills", "Other"}

var merchants = []string{
	"Amazon", "Lidl", "Continente", "Starbucks", "McDonald's",
	"Uber", "Bolt", "Netflix", "Spotify", "Galp",
	"IKEA", "Worten", "Pingo Doce", "CP Comboios", "EDP",
	"Vodafone", "Farmacia Central", "Shell", "Ryanair", "Zara",
}

var transactionDescriptions = []string{
	"Coffee and pastry",
	"Weekly groceries",
	"Gas station fill-up",
	"Online subscription",
	"Restaurant dinner, tip included",
	"Utility bill payment",
	"Gym membership",
	"Phone bill",
	"Parking fee",
	"Public transit",
	"Movie tickets",
	"Card purchase \"contactless\"",
}

var incomeDescriptions = []string{
	"Monthly salary deposit",
	"Freelance payment",
	"Client invoice payment",
	"Interest income",
	"Tax refund",
	"Transfer received",
}

// Category returns a random expense category.
func (g *TestDataGenerator) Category() string {
	return expenseCategories[g.faker.Number(0, len(expenseCategories)-1)]
}

// Merchant returns a random merchant name.
func (g *TestDataGenerator) Merchant() string {
	return merchants[g.faker.Number(0, len(merchants)-1)]
}

// TransactionDescription returns a random transaction description.
func (g *TestDataGenerator) TransactionDescription() string {
	return transactionDescriptions[g.faker.Number(0, len(transactionDescriptions)-1)]
}

// IncomeDescription returns a random income description.
func (g *TestDataGenerator) IncomeDescription() string {
	return incomeDescriptions[g.faker.Number(0, len(incomeDescriptions)-1)]
}
