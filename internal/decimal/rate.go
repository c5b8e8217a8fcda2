package decimal

import (
	"github.com/shopspring/decimal"
)

const (
	// RateScale is the precision of TaxRate
	RateScale = 2
	// QuantityScale is the precision of Quantity
	QuantityScale = 3
)

var hundred = decimal.NewFromInt(100)

// TaxRate is a percentage in [0, 100]
type TaxRate struct {
	value decimal.Decimal
}

// NewTaxRate creates a TaxRate
func NewTaxRate(percent decimal.Decimal) (TaxRate, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return TaxRate{}, NewConstructionError(ErrOutOfRange, "tax_rate", percent.String(),
			"must be within [0, 100]")
	}
	if !fitsScale(percent, RateScale) {
		return TaxRate{}, NewConstructionError(ErrInvalidScale, "tax_rate", percent.String(),
			"more than 2 fractional digits")
	}
	return TaxRate{value: percent.Round(RateScale)}, nil
}

// ParseTaxRate parses a percentage string, e.g. "19.00"
func ParseTaxRate(s string) (TaxRate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return TaxRate{}, NewConstructionError(ErrOutOfRange, "tax_rate", s, "not a decimal number")
	}
	return NewTaxRate(d)
}

// MustTaxRate parses a TaxRate, panics on error
func MustTaxRate(s string) TaxRate {
	r, err := ParseTaxRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Percent returns the rate as a percentage value
func (r TaxRate) Percent() decimal.Decimal {
	return r.value
}

// IsZero returns true for 0%
func (r TaxRate) IsZero() bool {
	return r.value.IsZero()
}

// Equal compares by value
func (r TaxRate) Equal(o TaxRate) bool {
	return r.value.Equal(o.value)
}

func (r TaxRate) String() string {
	return r.value.StringFixed(RateScale)
}

// Quantity is an invoiced quantity with up to three fractional digits
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity creates a Quantity
func NewQuantity(d decimal.Decimal) (Quantity, error) {
	if !fitsScale(d, QuantityScale) {
		return Quantity{}, NewConstructionError(ErrInvalidScale, "quantity", d.String(),
			"more than 3 fractional digits")
	}
	return Quantity{value: d}, nil
}

// ParseQuantity parses a quantity string
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, NewConstructionError(ErrInvalidScale, "quantity", s, "not a decimal number")
	}
	return NewQuantity(d)
}

// MustQuantity parses a Quantity, panics on error
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// Value returns the decimal value
func (q Quantity) Value() decimal.Decimal {
	return q.value
}

// IsNegative returns true below zero
func (q Quantity) IsNegative() bool {
	return q.value.IsNegative()
}

// Equal compares by value
func (q Quantity) Equal(o Quantity) bool {
	return q.value.Equal(o.value)
}

func (q Quantity) String() string {
	return q.value.String()
}
