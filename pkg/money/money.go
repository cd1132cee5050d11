// Package money provides functionality for handling monetary values.
//
// It is a value object that represents an amount of a specific asset.
// Invariants:
//   - Amount is always stored in the smallest unit (cents for USDT, 1e-8 for GAS).
//   - All arithmetic operations require matching assets.
//   - Decimal input is parsed exactly; it is never routed through float64.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount represents a monetary amount as an integer in the smallest unit.
type Amount = int64

// Currency represents an asset with its ledger decimal places.
type Currency struct {
	Code     Code
	Decimals int32
}

// IsValid checks if the currency is valid.
func (c Currency) IsValid() bool {
	return c.Decimals >= 0 && c.Decimals <= 8 && c.Code.IsValid()
}

func (c Currency) String() string { return string(c.Code) }

// Money represents a monetary value in a specific asset.
type Money struct {
	amount   Amount
	currency Currency
}

// FromSmallestUnit wraps an integer amount of the smallest unit. The asset
// is not validated.
func FromSmallestUnit(amount int64, currency Currency) Money {
	return Money{amount: amount, currency: currency}
}

// Parse converts a decimal string such as "12745.08" to Money.
// Invariants enforced:
//   - The string must be a valid decimal number.
//   - It must not carry more fractional digits than the asset allows.
func Parse(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a decimal amount in major units to Money.
func FromDecimal(d decimal.Decimal, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidCurrency, currency)
	}
	scaled := d.Shift(currency.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Money{}, fmt.Errorf(
			"%w: %s has more than %d decimal places for %s",
			ErrInvalidAmount, d.String(), currency.Decimals, currency.Code,
		)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Money{amount: scaled.IntPart(), currency: currency}, nil
}

// Amount returns the amount in the smallest unit.
func (m Money) Amount() Amount {
	return m.amount
}

// Currency returns the asset of the Money object.
func (m Money) Currency() Currency {
	return m.currency
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.amount, -m.currency.Decimals)
}

// Add returns the sum of two amounts of the same asset.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf(
			"%w: cannot add %s and %s", ErrMismatchedCurrencies, m.currency.Code, other.currency.Code,
		)
	}
	sum := m.amount + other.amount
	if (other.amount > 0 && sum < m.amount) || (other.amount < 0 && sum > m.amount) {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, m.StringFixed(), other.StringFixed())
	}
	return Money{amount: sum, currency: m.currency}, nil
}

// Subtract returns the difference; the result can be negative.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf(
			"%w: cannot subtract %s and %s", ErrMismatchedCurrencies, m.currency.Code, other.currency.Code,
		)
	}
	diff := m.amount - other.amount
	if (other.amount > 0 && diff > m.amount) || (other.amount < 0 && diff < m.amount) {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrAmountOverflow, m.StringFixed(), other.StringFixed())
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// GreaterThan checks if m is greater than other.
func (m Money) GreaterThan(other Money) (bool, error) {
	if m.currency != other.currency {
		return false, fmt.Errorf(
			"%w: cannot compare %s and %s", ErrMismatchedCurrencies, m.currency.Code, other.currency.Code,
		)
	}
	return m.amount > other.amount, nil
}

// MulFloor multiplies by a decimal rate and rounds down to the smallest unit.
func (m Money) MulFloor(rate decimal.Decimal) Money {
	v := decimal.NewFromInt(m.amount).Mul(rate).Floor()
	return Money{amount: v.IntPart(), currency: m.currency}
}

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount > 0
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.amount == 0
}

// Equals checks asset and amount equality.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount == other.amount
}

// StringFixed renders the amount in major units with the asset precision, e.g. "12745.08".
func (m Money) StringFixed() string {
	return m.Decimal().StringFixed(m.currency.Decimals)
}

func (m Money) String() string {
	return m.StringFixed() + " " + string(m.currency.Code)
}

// MarshalJSON renders {"amount":"12745.08","currency":"USDT"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"amount":   m.StringFixed(),
		"currency": string(m.currency.Code),
	})
}

// UnmarshalJSON accepts the MarshalJSON shape.
func (m *Money) UnmarshalJSON(data []byte) error {
	var aux struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	code := Code(aux.Currency)
	if !code.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidCurrency, aux.Currency)
	}
	parsed, err := Parse(aux.Amount, code.ToCurrency())
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FormatAmount renders a smallest-unit amount of the asset, e.g. FormatAmount(50000, USDT) == "500.00".
func FormatAmount(amount Amount, code Code) string {
	return FromSmallestUnit(amount, code.ToCurrency()).StringFixed()
}
