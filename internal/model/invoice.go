package model

import (
	"iter"
	"regexp"
	"slices"
	"time"

	"github.com/rezonia/xrechnung/internal/decimal"
)

// Document level constants written on the wire
const (
	TypeCodeCommercialInvoice = "380"
	CustomizationID           = "urn:cen.eu:en16931:2017#compliant#urn:xeinkauf.de:kosit:xrechnung_3.0"
	ProfileID                 = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"
)

// DefaultUnitCode is UN/ECE Rec 20 "one"
const DefaultUnitCode = "C62"

// TaxCategory codes (UNCL5305 subset used by EN 16931)
const (
	TaxCategoryStandard   = "S"
	TaxCategoryZeroRated  = "Z"
	TaxCategoryExempt     = "E"
	TaxCategoryReverse    = "AE"
	TaxCategoryIntraEU    = "K"
	TaxCategoryExport     = "G"
	TaxCategoryOutOfScope = "O"
	TaxCategoryCanaryIGIC = "L"
	TaxCategoryCeutaIPSI  = "M"
)

var taxCategories = []string{
	TaxCategoryStandard, TaxCategoryZeroRated, TaxCategoryExempt, TaxCategoryReverse,
	TaxCategoryIntraEU, TaxCategoryExport, TaxCategoryOutOfScope, TaxCategoryCanaryIGIC,
	TaxCategoryCeutaIPSI,
}

var (
	taxIDPattern    = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9+*.]{2,12}$`)
	unitCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,3}$`)
)

// IsTaxCategory reports whether code is a known tax category
func IsTaxCategory(code string) bool {
	return slices.Contains(taxCategories, code)
}

// IsUnitCode reports whether code has the shape of a Rec 20 unit code
func IsUnitCode(code string) bool {
	return unitCodePattern.MatchString(code)
}

// ValidTaxID reports whether id is a country-prefixed VAT identifier
func ValidTaxID(id string) bool {
	return taxIDPattern.MatchString(id)
}

// DefaultTaxCategory returns S for a positive rate and Z for 0%
func DefaultTaxCategory(rate decimal.TaxRate) string {
	if rate.IsZero() {
		return TaxCategoryZeroRated
	}
	return TaxCategoryStandard
}

// DateOf truncates t to a calendar date in UTC
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Party represents supplier or buyer
type Party struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"` // e.g. DE123456789
}

// LineItem represents invoice line item
type LineItem struct {
	Position    int
	Description string
	Quantity    decimal.Quantity
	UnitCode    string
	UnitPrice   decimal.Money
	LineTotal   decimal.Money
	TaxRate     decimal.TaxRate
	TaxCategory string
}

// NewLineItem creates a line item with LineTotal = round(quantity * price, 2)
func NewLineItem(position int, description string, qty decimal.Quantity, unitPrice decimal.Money, rate decimal.TaxRate) (LineItem, error) {
	if position <= 0 {
		return LineItem{}, &AggregateError{Op: "new", Position: position, Kind: decimal.ErrOutOfRange}
	}
	if description == "" {
		return LineItem{}, &AggregateError{Op: "new", Position: position, Field: "description", Kind: ErrMissingValue}
	}
	item := LineItem{
		Position:    position,
		Description: description,
		Quantity:    qty,
		UnitCode:    DefaultUnitCode,
		UnitPrice:   unitPrice,
		TaxRate:     rate,
		TaxCategory: DefaultTaxCategory(rate),
	}
	item.Calculate()
	return item, nil
}

// Calculate sets LineTotal from quantity and unit price
func (li *LineItem) Calculate() {
	li.LineTotal = li.ExpectedTotal()
}

// ExpectedTotal returns round_half_even(quantity * unit price, 2)
func (li LineItem) ExpectedTotal() decimal.Money {
	return decimal.LineTotal(li.Quantity, li.UnitPrice)
}

// Tax returns the line's tax, rounded per line
func (li LineItem) Tax() decimal.Money {
	return li.LineTotal.Tax(li.TaxRate)
}

// Equal compares two line items by value
func (li LineItem) Equal(o LineItem) bool {
	return li.Position == o.Position &&
		li.Description == o.Description &&
		li.Quantity.Equal(o.Quantity) &&
		li.UnitCode == o.UnitCode &&
		li.UnitPrice.Equal(o.UnitPrice) &&
		li.LineTotal.Equal(o.LineTotal) &&
		li.TaxRate.Equal(o.TaxRate) &&
		li.TaxCategory == o.TaxCategory
}

// Invoice is the invoice aggregate. It owns its line items; mutation goes
// through AddLineItem and RemoveLineItem. Totals change only on Recompute.
type Invoice struct {
	Number         string
	Date           time.Time
	DueDate        time.Time // zero if absent
	BuyerReference string    // BT-10; empty means the invoice number is used
	Note           string

	Supplier Party
	Buyer    Party

	Currency    string
	NetAmount   decimal.Money
	TaxAmount   decimal.Money
	TotalAmount decimal.Money

	items []LineItem
}

// NewInvoice creates an empty draft invoice with zero totals
func NewInvoice(number string, date time.Time, currency string) (*Invoice, error) {
	if err := decimal.CheckCurrency(currency); err != nil {
		return nil, err
	}
	zero := decimal.ZeroMoney(currency)
	return &Invoice{
		Number:      number,
		Date:        DateOf(date),
		Currency:    currency,
		NetAmount:   zero,
		TaxAmount:   zero,
		TotalAmount: zero,
	}, nil
}

// EffectiveBuyerReference returns the value written as BT-10
func (inv *Invoice) EffectiveBuyerReference() string {
	if inv.BuyerReference != "" {
		return inv.BuyerReference
	}
	return inv.Number
}

// AddLineItem inserts item keeping position order
func (inv *Invoice) AddLineItem(item LineItem) error {
	if item.Position <= 0 {
		return &AggregateError{Op: "add", Position: item.Position, Kind: decimal.ErrOutOfRange}
	}
	for _, m := range []decimal.Money{item.UnitPrice, item.LineTotal} {
		if m.Currency() != inv.Currency {
			return decimal.NewConstructionError(decimal.ErrCurrencyMismatch, "line_item", m.Currency(),
				"expected "+inv.Currency)
		}
	}
	idx, found := slices.BinarySearchFunc(inv.items, item.Position, func(li LineItem, p int) int {
		return li.Position - p
	})
	if found {
		return &AggregateError{Op: "add", Position: item.Position, Kind: ErrDuplicatePosition}
	}
	inv.items = slices.Insert(inv.items, idx, item)
	return nil
}

// RemoveLineItem removes the item at position
func (inv *Invoice) RemoveLineItem(position int) error {
	idx := slices.IndexFunc(inv.items, func(li LineItem) bool { return li.Position == position })
	if idx < 0 {
		return &AggregateError{Op: "remove", Position: position, Kind: ErrNotFound}
	}
	inv.items = slices.Delete(inv.items, idx, idx+1)
	return nil
}

// LineItems returns a read-only view of the items in position order. The
// view shares storage with the aggregate and is valid until the next mutation.
func (inv *Invoice) LineItems() LineItems {
	return LineItems{items: inv.items}
}

// Totals holds net, tax and total amounts
type Totals struct {
	Net   decimal.Money
	Tax   decimal.Money
	Total decimal.Money
}

// DerivedTotals computes totals from the line items without mutating the invoice
func (inv *Invoice) DerivedTotals() (Totals, error) {
	net := decimal.ZeroMoney(inv.Currency)
	tax := decimal.ZeroMoney(inv.Currency)
	for _, li := range inv.items {
		var err error
		if net, err = net.Add(li.LineTotal); err != nil {
			return Totals{}, err
		}
		if tax, err = tax.Add(li.Tax()); err != nil {
			return Totals{}, err
		}
	}
	total, err := net.Add(tax)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Net: net, Tax: tax, Total: total}, nil
}

// Recompute recalculates net, tax and total from the current line items
func (inv *Invoice) Recompute() error {
	t, err := inv.DerivedTotals()
	if err != nil {
		return err
	}
	inv.NetAmount = t.Net
	inv.TaxAmount = t.Tax
	inv.TotalAmount = t.Total
	return nil
}

// TaxGroup is the tax breakdown for one category and rate
type TaxGroup struct {
	Category string
	Rate     decimal.TaxRate
	Taxable  decimal.Money
	Tax      decimal.Money
}

// TaxBreakdown groups line items by category and rate in order of first appearance
func (inv *Invoice) TaxBreakdown() ([]TaxGroup, error) {
	var groups []TaxGroup
	for _, li := range inv.items {
		category := li.TaxCategory
		if category == "" {
			category = DefaultTaxCategory(li.TaxRate)
		}
		idx := slices.IndexFunc(groups, func(g TaxGroup) bool {
			return g.Category == category && g.Rate.Equal(li.TaxRate)
		})
		if idx < 0 {
			zero := decimal.ZeroMoney(inv.Currency)
			groups = append(groups, TaxGroup{Category: category, Rate: li.TaxRate, Taxable: zero, Tax: zero})
			idx = len(groups) - 1
		}
		g := &groups[idx]
		var err error
		if g.Taxable, err = g.Taxable.Add(li.LineTotal); err != nil {
			return nil, err
		}
		if g.Tax, err = g.Tax.Add(li.Tax()); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// Clone returns a deep copy
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	c.items = slices.Clone(inv.items)
	return &c
}

// Equal compares two invoices field by field, money and rates by value
func (inv *Invoice) Equal(o *Invoice) bool {
	if inv == nil || o == nil {
		return inv == o
	}
	header := inv.Number == o.Number &&
		DateOf(inv.Date).Equal(DateOf(o.Date)) &&
		DateOf(inv.DueDate).Equal(DateOf(o.DueDate)) &&
		inv.EffectiveBuyerReference() == o.EffectiveBuyerReference() &&
		inv.Note == o.Note &&
		inv.Supplier == o.Supplier &&
		inv.Buyer == o.Buyer &&
		inv.Currency == o.Currency &&
		inv.NetAmount.Equal(o.NetAmount) &&
		inv.TaxAmount.Equal(o.TaxAmount) &&
		inv.TotalAmount.Equal(o.TotalAmount)
	return header && slices.EqualFunc(inv.items, o.items, LineItem.Equal)
}

// LineItems is a read-only view over an invoice's line items
type LineItems struct {
	items []LineItem
}

// Len returns the number of items
func (l LineItems) Len() int {
	return len(l.items)
}

// At returns a copy of the i-th item in position order
func (l LineItems) At(i int) LineItem {
	return l.items[i]
}

// ByPosition looks up an item by position
func (l LineItems) ByPosition(position int) (LineItem, bool) {
	for _, li := range l.items {
		if li.Position == position {
			return li, true
		}
	}
	return LineItem{}, false
}

// All iterates items in position order
func (l LineItems) All() iter.Seq2[int, LineItem] {
	return func(yield func(int, LineItem) bool) {
		for i, li := range l.items {
			if !yield(i, li) {
				return
			}
		}
	}
}

// Slice returns a copy of the items
func (l LineItems) Slice() []LineItem {
	return slices.Clone(l.items)
}
