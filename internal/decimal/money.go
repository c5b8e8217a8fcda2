// Package decimal provides the fixed-point value types used by invoices:
// Money, TaxRate and Quantity. Arithmetic is exact; rounding (half to even,
// 2 places) happens only in LineTotal and Money.Tax.
package decimal

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by Money
const MoneyScale = 2

// Zero is decimal zero
var Zero = decimal.Zero

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}

// fitsScale reports whether d has no significant digits beyond places
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Money is an amount with exactly two fractional digits tagged with a currency
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates Money. Inputs with more than two significant fractional
// digits are rejected, never truncated.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := CheckCurrency(currency); err != nil {
		return Money{}, err
	}
	if !fitsScale(amount, MoneyScale) {
		return Money{}, NewConstructionError(ErrInvalidScale, "amount", amount.String(),
			"more than 2 fractional digits, round explicitly")
	}
	return Money{amount: amount.Round(MoneyScale), currency: currency}, nil
}

// ParseMoney parses a decimal string into Money
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, NewConstructionError(ErrInvalidScale, "amount", s, "not a decimal number")
	}
	return NewMoney(d, currency)
}

// MustMoney parses Money, panics on error
func MustMoney(s, currency string) Money {
	m, err := ParseMoney(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in currency
func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero.Round(MoneyScale), currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the ISO 4217 code
func (m Money) Currency() string {
	return m.currency
}

// IsZero returns true for a zero amount
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is below zero
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsSet returns false for the zero value Money{}
func (m Money) IsSet() bool {
	return m.currency != ""
}

// Equal compares amount and currency by value
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

// Add returns m + o
func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, mismatch(m, o)
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m - o
func (m Money) Sub(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, mismatch(m, o)
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// Tax computes round_half_even(m * rate / 100, 2)
func (m Money) Tax(rate TaxRate) Money {
	v := m.amount.Mul(rate.value).Shift(-2).RoundBank(MoneyScale)
	return Money{amount: v, currency: m.currency}
}

// Fixed formats the amount with exactly two fractional digits
func (m Money) Fixed() string {
	return m.amount.StringFixed(MoneyScale)
}

func (m Money) String() string {
	return m.Fixed() + " " + m.currency
}

// LineTotal computes round_half_even(quantity * price, 2)
func LineTotal(q Quantity, price Money) Money {
	v := q.value.Mul(price.amount).RoundBank(MoneyScale)
	return Money{amount: v, currency: price.currency}
}

// Sum adds values in currency; an empty list yields zero
func Sum(currency string, values ...Money) (Money, error) {
	result := ZeroMoney(currency)
	for _, v := range values {
		var err error
		if result, err = result.Add(v); err != nil {
			return Money{}, err
		}
	}
	return result, nil
}

func mismatch(a, b Money) error {
	return NewConstructionError(ErrCurrencyMismatch, "currency", b.currency,
		"expected "+a.currency)
}
