package money_test

import (
	"testing"

	"github.com/amirasaad/ledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"integer", "1000", "1000.00", false},
		{"with cents", "250.50", "250.50", false},
		{"surrounding spaces", "  12.3 ", "12.30", false},
		{"negative", "-5.00", "-5.00", false},
		{"empty", "", "", true},
		{"garbage", "12a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := money.Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, money.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, money.Format(got))
		})
	}
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, money.ValidatePositive(money.MustParse("0.01")))
	assert.ErrorIs(t, money.ValidatePositive(decimal.Zero), money.ErrNonPositiveAmount)
	assert.ErrorIs(t, money.ValidatePositive(money.MustParse("-1")), money.ErrNonPositiveAmount)
	assert.ErrorIs(t, money.ValidatePositive(money.MustParse("1.005")), money.ErrTooManyDecimals)
}

func TestSumIsExact(t *testing.T) {
	total := money.Sum(money.MustParse("0.10"), money.MustParse("0.20"), money.MustParse("0.70"))
	assert.True(t, total.Equal(money.MustParse("1.00")), "got %s", total)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "2.34", money.Format(money.Normalize(money.MustParse("2.345"))))
	assert.Equal(t, "2.36", money.Format(money.Normalize(money.MustParse("2.355"))))
}

func TestCodeIsValid(t *testing.T) {
	assert.True(t, money.USD.IsValid())
	assert.False(t, money.Code("usd").IsValid())
	assert.False(t, money.Code("US").IsValid())
}
