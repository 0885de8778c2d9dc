package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency("USD")
	require.NoError(t, err)
	assert.Equal(t, "usd", code)

	code, err = NormalizeCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, "eur", code)

	_, err = NormalizeCurrency("dollars")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = NormalizeCurrency("zzz")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestTaxOn(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"zero rate", 1000, "0", 0},
		{"exact", 1000, "0.1", 100},
		{"rounds half up", 1005, "0.1", 101},
		{"rounds down", 1004, "0.1", 100},
		{"fractional rate", 2499, "0.0825", 206},
		{"non-positive amount", 0, "0.2", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TaxOn(tt.amount, decimal.RequireFromString(tt.rate)))
		})
	}
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "49.99 USD", FormatMinor(4999, "usd"))
	assert.Equal(t, "500 JPY", FormatMinor(500, "jpy"))
	assert.Equal(t, "20.00", DecimalString(2000, "usd"))
}

func TestAverage(t *testing.T) {
	assert.Equal(t, int64(0), Average(100, 0))
	assert.Equal(t, int64(3334), Average(10001, 3))
}
