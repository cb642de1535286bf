package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, "INR", got)

	_, err = NormalizeCurrency("ZZZ")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
	_, err = NormalizeCurrency("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"10.50", "INR", 1050},
		{"10.5", "USD", 1050},
		{"1000", "JPY", 1000},
		{"0.01", "EUR", 1},
		{"-2.25", "GBP", -225},
	}
	for _, tt := range tests {
		got, err := ToMinorUnits(tt.amount, tt.currency)
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got, tt.amount)
	}

	_, err := ToMinorUnits("1.005", "INR")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ToMinorUnits("1.5", "JPY")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ToMinorUnits("abc", "INR")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ToMinorUnits("99999999999999999999", "INR")
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.50", FormatAmount(1050, "INR"))
	assert.Equal(t, "-0.05", FormatAmount(-5, "USD"))
	assert.Equal(t, "1000", FormatAmount(1000, "JPY"))
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum)

	_, err = CheckedAdd(1<<63-1, 1)
	assert.ErrorIs(t, err, ErrAmountOverflow)
	_, err = CheckedAdd(-1<<63, -1)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}
