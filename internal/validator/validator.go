package validator

import (
	"strconv"

	shopspring "github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

// Validator checks invoices against the business rules. It is immutable and
// safe for concurrent use.
type Validator struct {
	cfg config.Settings
}

// New creates a validator with a copy of cfg
func New(cfg config.Settings) *Validator {
	return &Validator{cfg: cfg}
}

// Settings returns the settings the validator was built with
func (v *Validator) Settings() config.Settings {
	return v.cfg
}

type rule func(*Validator, *model.Invoice, *collector)

// rules run in this order, all of them, every time
var rules = []rule{
	(*Validator).checkRequired,
	(*Validator).checkTaxIDs,
	(*Validator).checkSigns,
	(*Validator).checkCurrency,
	(*Validator).checkTotals,
	(*Validator).checkLineItems,
	(*Validator).checkNotEmpty,
	(*Validator).checkPositions,
	(*Validator).checkCodes,
}

// Validate runs every rule and collects the violations
func (v *Validator) Validate(inv *model.Invoice) Result {
	c := &collector{}
	for _, r := range rules {
		r(v, inv, c)
	}
	return Result{Violations: c.out}
}

type collector struct {
	out []Violation
}

func (c *collector) add(kind Kind, field, expected, actual, message string) {
	c.out = append(c.out, Violation{Kind: kind, Field: field, Expected: expected, Actual: actual, Message: message})
}

func (v *Validator) checkRequired(inv *model.Invoice, c *collector) {
	missing := func(field string) {
		c.add(KindMissingField, field, "", "", "required field is empty")
	}
	if inv.Number == "" {
		missing("invoice_number")
	}
	if inv.Date.IsZero() {
		missing("invoice_date")
	}
	if inv.Currency == "" {
		missing("currency")
	}
	if inv.Supplier.Name == "" {
		missing("supplier.name")
	}
	if inv.Buyer.Name == "" {
		missing("buyer.name")
	}
	for _, li := range inv.LineItems().All() {
		if li.Description == "" {
			missing(LinePath(li.Position, "description"))
		}
	}
}

func (v *Validator) checkTaxIDs(inv *model.Invoice, c *collector) {
	for _, p := range []struct {
		field string
		party model.Party
	}{
		{"supplier.tax_id", inv.Supplier},
		{"buyer.tax_id", inv.Buyer},
	} {
		switch {
		case p.party.TaxID == "":
			if v.cfg.RequireTaxID {
				c.add(KindMissingTaxID, p.field, "", "", "tax id is required")
			}
		case !model.ValidTaxID(p.party.TaxID):
			c.add(KindInvalidTaxID, p.field, "country-prefixed VAT id", p.party.TaxID, "tax id has an invalid format")
		}
	}
}

func (v *Validator) checkSigns(inv *model.Invoice, c *collector) {
	if v.cfg.AllowNegativeAmounts {
		return
	}
	negative := func(field, actual string) {
		c.add(KindNegativeAmount, field, ">= 0", actual, "amount must not be negative")
	}
	for _, m := range []struct {
		field string
		value decimal.Money
	}{
		{"net_amount", inv.NetAmount},
		{"tax_amount", inv.TaxAmount},
		{"total_amount", inv.TotalAmount},
	} {
		if m.value.IsNegative() {
			negative(m.field, m.value.Fixed())
		}
	}
	for _, li := range inv.LineItems().All() {
		if li.Quantity.IsNegative() {
			negative(LinePath(li.Position, "quantity"), li.Quantity.String())
		}
		if li.UnitPrice.IsNegative() {
			negative(LinePath(li.Position, "unit_price"), li.UnitPrice.Fixed())
		}
		if li.LineTotal.IsNegative() {
			negative(LinePath(li.Position, "line_total"), li.LineTotal.Fixed())
		}
	}
}

func (v *Validator) checkCurrency(inv *model.Invoice, c *collector) {
	if v.cfg.StrictCurrency && inv.Currency != v.cfg.Currency {
		c.add(KindCurrencyMismatch, "currency", v.cfg.Currency, inv.Currency, "invoice currency differs from configured currency")
	}
	check := func(field string, m decimal.Money) {
		if m.IsSet() && m.Currency() != inv.Currency {
			c.add(KindCurrencyMismatch, field, inv.Currency, m.Currency(), "amount currency differs from invoice currency")
		}
	}
	check("net_amount", inv.NetAmount)
	check("tax_amount", inv.TaxAmount)
	check("total_amount", inv.TotalAmount)
	for _, li := range inv.LineItems().All() {
		check(LinePath(li.Position, "unit_price"), li.UnitPrice)
		check(LinePath(li.Position, "line_total"), li.LineTotal)
	}
}

func (v *Validator) checkTotals(inv *model.Invoice, c *collector) {
	tol := v.cfg.TotalTolerance
	net := shopspring.Zero
	tax := shopspring.Zero
	for _, li := range inv.LineItems().All() {
		net = net.Add(li.LineTotal.Amount())
		tax = tax.Add(li.Tax().Amount())
	}

	declaredNet := inv.NetAmount.Amount()
	declaredTax := inv.TaxAmount.Amount()
	declaredTotal := inv.TotalAmount.Amount()

	if !agree(declaredNet, net, tol) {
		c.add(KindTotalMismatch, "net_amount", fixed(net), fixed(declaredNet), "net amount differs from sum of line totals")
	}
	if !agree(declaredTax, tax, tol) {
		c.add(KindTotalMismatch, "tax_amount", fixed(tax), fixed(declaredTax), "tax amount differs from sum of line taxes")
	}
	if expected := declaredNet.Add(declaredTax); !agree(declaredTotal, expected, tol) {
		c.add(KindTotalMismatch, "total_amount", fixed(expected), fixed(declaredTotal), "total amount differs from net plus tax")
	}
}

func (v *Validator) checkLineItems(inv *model.Invoice, c *collector) {
	for _, li := range inv.LineItems().All() {
		expected := li.ExpectedTotal().Amount()
		if !agree(li.LineTotal.Amount(), expected, v.cfg.LineTolerance) {
			c.add(KindLineItemMismatch, LinePath(li.Position, "line_total"), fixed(expected), li.LineTotal.Fixed(),
				"line total differs from quantity times unit price")
		}
	}
}

func (v *Validator) checkNotEmpty(inv *model.Invoice, c *collector) {
	if inv.LineItems().Len() == 0 {
		c.add(KindEmptyInvoice, "line_items", ">= 1", "0", "invoice has no line items")
	}
}

func (v *Validator) checkPositions(inv *model.Invoice, c *collector) {
	prev := 0
	for _, li := range inv.LineItems().All() {
		if li.Position != prev+1 {
			c.add(KindPositionGap, LinePath(li.Position, "position"), strconv.Itoa(prev+1), strconv.Itoa(li.Position),
				"line positions must be contiguous from 1")
		}
		prev = li.Position
	}
}

func (v *Validator) checkCodes(inv *model.Invoice, c *collector) {
	for _, li := range inv.LineItems().All() {
		if !model.IsUnitCode(li.UnitCode) {
			c.add(KindInvalidCode, LinePath(li.Position, "unit_code"), "UN/ECE Rec 20 code", li.UnitCode,
				"unit code has an invalid format")
		}
		if !model.IsTaxCategory(li.TaxCategory) {
			c.add(KindInvalidCode, LinePath(li.Position, "tax_category"), "UNCL5305 code", li.TaxCategory,
				"unknown tax category")
		}
	}
}

// agree reports |a-b| < tol
func agree(a, b, tol shopspring.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tol)
}

func fixed(d shopspring.Decimal) string {
	return d.StringFixed(decimal.MoneyScale)
}
