package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rezonia/xrechnung/internal/decimal"
)

const dateLayout = "2006-01-02"

type invoiceJSON struct {
	Number         string         `json:"invoice_number"`
	Date           string         `json:"invoice_date"`
	DueDate        string         `json:"due_date,omitempty"`
	BuyerReference string         `json:"buyer_reference,omitempty"`
	Note           string         `json:"note,omitempty"`
	Supplier       Party          `json:"supplier"`
	Buyer          Party          `json:"buyer"`
	Currency       string         `json:"currency"`
	NetAmount      string         `json:"net_amount,omitempty"`
	TaxAmount      string         `json:"tax_amount,omitempty"`
	TotalAmount    string         `json:"total_amount,omitempty"`
	LineItems      []lineItemJSON `json:"line_items"`
}

type lineItemJSON struct {
	Position    int    `json:"position"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitCode    string `json:"unit_code,omitempty"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total,omitempty"`
	TaxRate     string `json:"tax_rate"`
	TaxCategory string `json:"tax_category,omitempty"`
}

// MarshalJSON encodes the invoice with decimal amounts as strings
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	out := invoiceJSON{
		Number:         inv.Number,
		Date:           formatDate(inv.Date),
		DueDate:        formatDate(inv.DueDate),
		BuyerReference: inv.BuyerReference,
		Note:           inv.Note,
		Supplier:       inv.Supplier,
		Buyer:          inv.Buyer,
		Currency:       inv.Currency,
		NetAmount:      inv.NetAmount.Fixed(),
		TaxAmount:      inv.TaxAmount.Fixed(),
		TotalAmount:    inv.TotalAmount.Fixed(),
		LineItems:      make([]lineItemJSON, 0, len(inv.items)),
	}
	for _, li := range inv.items {
		out.LineItems = append(out.LineItems, lineItemJSON{
			Position:    li.Position,
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			UnitCode:    li.UnitCode,
			UnitPrice:   li.UnitPrice.Fixed(),
			LineTotal:   li.LineTotal.Fixed(),
			TaxRate:     li.TaxRate.String(),
			TaxCategory: li.TaxCategory,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON builds the aggregate through its constructors. Omitted line
// and invoice totals are calculated.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	return inv.unmarshal(data, nil)
}

// DecodeJSON is UnmarshalJSON with a fallback rate for line items that omit
// tax_rate.
func DecodeJSON(data []byte, defaultRate decimal.TaxRate) (*Invoice, error) {
	inv := new(Invoice)
	if err := inv.unmarshal(data, &defaultRate); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Invoice) unmarshal(data []byte, defaultRate *decimal.TaxRate) error {
	var in invoiceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	date, err := parseDate(in.Date)
	if err != nil {
		return fmt.Errorf("invoice_date: %w", err)
	}
	built, err := NewInvoice(in.Number, date, in.Currency)
	if err != nil {
		return err
	}
	if in.DueDate != "" {
		if built.DueDate, err = parseDate(in.DueDate); err != nil {
			return fmt.Errorf("due_date: %w", err)
		}
	}
	built.BuyerReference = in.BuyerReference
	built.Note = in.Note
	built.Supplier = in.Supplier
	built.Buyer = in.Buyer

	for _, raw := range in.LineItems {
		item, err := raw.toLineItem(in.Currency, defaultRate)
		if err != nil {
			return fmt.Errorf("line item %d: %w", raw.Position, err)
		}
		if err := built.AddLineItem(item); err != nil {
			return err
		}
	}

	if err := built.setTotals(in.NetAmount, in.TaxAmount, in.TotalAmount); err != nil {
		return err
	}

	*inv = *built
	return nil
}

// setTotals applies declared totals. An omitted net amount with tax and total
// given is total minus tax; any other omitted total is derived from the lines.
func (inv *Invoice) setTotals(net, tax, total string) error {
	derived, err := inv.DerivedTotals()
	if err != nil {
		return err
	}
	inv.NetAmount, inv.TaxAmount, inv.TotalAmount = derived.Net, derived.Tax, derived.Total

	for _, f := range []struct {
		dst *decimal.Money
		raw string
	}{
		{&inv.NetAmount, net},
		{&inv.TaxAmount, tax},
		{&inv.TotalAmount, total},
	} {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = decimal.ParseMoney(f.raw, inv.Currency); err != nil {
			return err
		}
	}

	if net == "" && tax != "" && total != "" {
		if inv.NetAmount, err = inv.TotalAmount.Sub(inv.TaxAmount); err != nil {
			return err
		}
	}
	return nil
}

func (raw lineItemJSON) toLineItem(currency string, defaultRate *decimal.TaxRate) (LineItem, error) {
	qty, err := decimal.ParseQuantity(raw.Quantity)
	if err != nil {
		return LineItem{}, err
	}
	price, err := decimal.ParseMoney(raw.UnitPrice, currency)
	if err != nil {
		return LineItem{}, err
	}
	var rate decimal.TaxRate
	if raw.TaxRate == "" && defaultRate != nil {
		rate = *defaultRate
	} else if rate, err = decimal.ParseTaxRate(raw.TaxRate); err != nil {
		return LineItem{}, err
	}
	item, err := NewLineItem(raw.Position, raw.Description, qty, price, rate)
	if err != nil {
		return LineItem{}, err
	}
	if raw.UnitCode != "" {
		if !IsUnitCode(raw.UnitCode) {
			return LineItem{}, &AggregateError{Op: "decode", Position: raw.Position, Field: "unit_code", Kind: ErrInvalidCode}
		}
		item.UnitCode = raw.UnitCode
	}
	if raw.TaxCategory != "" {
		if !IsTaxCategory(raw.TaxCategory) {
			return LineItem{}, &AggregateError{Op: "decode", Position: raw.Position, Field: "tax_category", Kind: ErrInvalidCode}
		}
		item.TaxCategory = raw.TaxCategory
	}
	if raw.LineTotal != "" {
		if item.LineTotal, err = decimal.ParseMoney(raw.LineTotal, currency); err != nil {
			return LineItem{}, err
		}
	}
	return item, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
