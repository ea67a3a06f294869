package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     int64
	}{
		{"positive cents", 1234, USD, 1234},
		{"zero", 0, USD, 0},
		{"negative cents", -5000, USD, -5000},
		{"euro", 1000, EUR, 1000},
		{"yen (no decimals)", 10000, JPY, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cents, tt.currency)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestNewFromFloat(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		want     int64
	}{
		{"simple decimal", 12.34, USD, 1234},
		{"whole number", 100.00, USD, 10000},
		{"negative", -50.99, EUR, -5099},
		{"small amount", 0.01, USD, 1},
		{"rounding", 12.345, USD, 1235},
		{"yen", 1500, JPY, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewFromFloat(tt.amount, tt.currency).Amount())
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "120.50", "120.5", false},
		{"comma decimal", "-120,50", "-120.5", false},
		{"thousands space", "1 234,56", "1234.56", false},
		{"non breaking space", "2 500,00", "2500", false},
		{"only first comma", "1,234,56", "", true},
		{"empty is zero", "  ", "0", false},
		{"exponent", "1e3", "1000", false},
		{"garbage", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(EUR, New(1050, EUR), nil, New(-50, EUR), NewFromFloat(0.25, EUR))
	require.NoError(t, err)
	assert.Equal(t, int64(1025), total.Amount())
	assert.Equal(t, "10.25", total.String())

	_, err = Sum(EUR, New(100, USD))
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		a       *Money
		b       *Money
		want    int64
		wantErr bool
	}{
		{"positive + positive", New(1000, USD), New(500, USD), 1500, false},
		{"positive + negative", New(1000, USD), New(-300, USD), 700, false},
		{"with zero", New(1000, USD), Zero(USD), 1000, false},
		{"nil + value", nil, New(500, USD), 500, false},
		{"different currencies", New(100, USD), New(100, EUR), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.a.Add(tt.b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Amount())
		})
	}
}

func TestSubtract(t *testing.T) {
	result, err := New(100, USD).Subtract(New(300, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(-200), result.Amount())

	result, err = (*Money)(nil).Subtract(New(300, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(-300), result.Amount())
}

func TestSignHelpers(t *testing.T) {
	m := New(-1234, EUR)
	assert.True(t, m.IsNegative())
	assert.Equal(t, int64(1234), m.Abs().Amount())
	assert.Equal(t, int64(1234), m.Negate().Amount())
	assert.Equal(t, EUR, m.Abs().Currency())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1,234.56", New(123456, USD).Display())
	assert.Equal(t, "1234.50", New(123450, USD).String())
	assert.Equal(t, "500", New(500, JPY).String())
	assert.InDelta(t, 1234.5, New(123450, USD).ToFloat64(), 1e-9)
}

func TestJSONMarshal(t *testing.T) {
	b, err := json.Marshal(New(1050, EUR))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1050,"currency":"EUR"}`, string(b))

	var nilMoney *Money
	b, err = json.Marshal(nilMoney)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestNilSafety(t *testing.T) {
	var m *Money
	assert.Equal(t, int64(0), m.Amount())
	assert.Equal(t, "", m.Currency())
	assert.True(t, m.IsZero())
	assert.False(t, m.IsNegative())
	assert.Equal(t, "0.00", m.String())
	assert.True(t, m.ToDecimal().IsZero())
}

func TestTestDataGenerator(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(42)

	t.Run("rows carry exactly one side", func(t *testing.T) {
		for _, row := range gen.Rows(EUR, 50) {
			assert.NotEmpty(t, row.Title)
			assert.NotEmpty(t, row.Category)
			assert.NotEqual(t, row.Debit.IsZero(), row.Credit.IsZero())
		}
	})

	t.Run("rows are in date order", func(t *testing.T) {
		rows := gen.Rows(EUR, 10)
		for i := 1; i < len(rows); i++ {
			assert.True(t, rows[i].Date.After(rows[i-1].Date))
		}
	})

	t.Run("signed amount", func(t *testing.T) {
		income := gen.IncomeRow(EUR)
		assert.True(t, income.Signed().IsNegative())

		expense := gen.ExpenseRow(EUR)
		assert.False(t, expense.Signed().IsNegative())
	})

	t.Run("seeded generators agree", func(t *testing.T) {
		a := NewTestDataGeneratorWithSeed(7).Rows(USD, 5)
		b := NewTestDataGeneratorWithSeed(7).Rows(USD, 5)
		assert.Equal(t, a, b)
	})
}
