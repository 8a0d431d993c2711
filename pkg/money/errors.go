package money

import "errors"

// Common money package errors
var (
	// ErrInvalidAmount is returned when an amount cannot be parsed
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNonPositiveAmount is returned when an amount must be strictly positive
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")

	// ErrTooManyDecimals is returned when an amount has more decimal places than Scale
	ErrTooManyDecimals = errors.New("amount has too many decimal places")

	// ErrInvalidCurrency is returned for malformed currency codes
	ErrInvalidCurrency = errors.New("invalid currency code")
)
