package money

import "errors"

// Common money package errors
var (
	// ErrMismatchedCurrencies is returned when performing operations on money with
	// different assets
	ErrMismatchedCurrencies = errors.New("mismatched currencies")

	// ErrInvalidAmount is returned when an amount cannot be parsed or has more
	// fractional digits than the asset allows.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCurrency is returned for an unknown or malformed asset code.
	ErrInvalidCurrency = errors.New("invalid currency code")

	ErrAmountOverflow = errors.New("amount overflow")
)
