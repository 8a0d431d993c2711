// Package money provides fixed-point amount helpers for the ledger.
//
// Invariants:
//   - Amounts are decimal.Decimal values, never binary floating point.
//   - Stored amounts carry at most Scale decimal places.
//   - Ledger amounts on entries and transactions are strictly positive;
//     the direction lives in the entry type.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places persisted for every amount.
const Scale int32 = 2

// Zero is the additive identity.
var Zero = decimal.Zero

// Parse reads a decimal amount from its string form.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// MustParse is Parse that panics; for tests and constants.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ValidatePositive checks amount > 0 and fits Scale.
func ValidatePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return ValidateScale(amount)
}

// ValidateScale checks the amount has no more than Scale decimal places.
func ValidateScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrTooManyDecimals
	}
	return nil
}

// Normalize rounds to Scale using banker's rounding.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(Scale)
}

// Format renders the amount with exactly Scale decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
