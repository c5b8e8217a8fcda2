package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

func newItem(t *testing.T, pos int, qty, price, rate string) model.LineItem {
	t.Helper()
	item, err := model.NewLineItem(pos, "Item", decimal.MustQuantity(qty),
		decimal.MustMoney(price, "EUR"), decimal.MustTaxRate(rate))
	require.NoError(t, err)
	return item
}

func newInvoice(t *testing.T) *model.Invoice {
	t.Helper()
	inv, err := model.NewInvoice("INV-2024-001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "EUR")
	require.NoError(t, err)
	inv.Supplier = model.Party{Name: "Test Supplier Ltd.", TaxID: "DE123456789"}
	inv.Buyer = model.Party{Name: "Test Buyer Inc.", TaxID: "DE987654321"}
	return inv
}

func TestNewInvoice(t *testing.T) {
	inv, err := model.NewInvoice("INV-1", time.Date(2024, 1, 15, 13, 45, 0, 0, time.FixedZone("CET", 3600)), "EUR")
	require.NoError(t, err)

	assert.Equal(t, "INV-1", inv.Number)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), inv.Date)
	assert.True(t, inv.TotalAmount.Equal(decimal.ZeroMoney("EUR")))
	assert.Equal(t, 0, inv.LineItems().Len())
}

func TestNewInvoice_UnknownCurrency(t *testing.T) {
	_, err := model.NewInvoice("INV-1", time.Now(), "EURO")
	assert.ErrorIs(t, err, decimal.ErrUnknownCurrency)
}

func TestNewLineItem_Calculate(t *testing.T) {
	item := newItem(t, 1, "3", "19.99", "19")

	assert.Equal(t, "59.97", item.LineTotal.Fixed())
	assert.Equal(t, model.DefaultUnitCode, item.UnitCode)
	assert.Equal(t, model.TaxCategoryStandard, item.TaxCategory)
	assert.Equal(t, "11.39", item.Tax().Fixed()) // 11.3943
}

func TestNewLineItem_ZeroRateCategory(t *testing.T) {
	item := newItem(t, 1, "1", "10.00", "0")
	assert.Equal(t, model.TaxCategoryZeroRated, item.TaxCategory)
}

func TestNewLineItem_Invalid(t *testing.T) {
	_, err := model.NewLineItem(0, "x", decimal.MustQuantity("1"), decimal.MustMoney("1.00", "EUR"), decimal.MustTaxRate("19"))
	assert.ErrorIs(t, err, decimal.ErrOutOfRange)

	_, err = model.NewLineItem(1, "", decimal.MustQuantity("1"), decimal.MustMoney("1.00", "EUR"), decimal.MustTaxRate("19"))
	assert.ErrorIs(t, err, model.ErrMissingValue)
}

func TestAddLineItem_KeepsPositionOrder(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 3, "1", "3.00", "19")))
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "1.00", "19")))
	require.NoError(t, inv.AddLineItem(newItem(t, 2, "1", "2.00", "19")))

	var positions []int
	for _, li := range inv.LineItems().All() {
		positions = append(positions, li.Position)
	}
	assert.Equal(t, []int{1, 2, 3}, positions)
}

func TestAddLineItem_DuplicatePosition(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "1.00", "19")))

	err := inv.AddLineItem(newItem(t, 1, "2", "1.00", "19"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDuplicatePosition)

	var aggErr *model.AggregateError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, 1, aggErr.Position)
	assert.Equal(t, 1, inv.LineItems().Len())
}

func TestAddLineItem_CurrencyMismatch(t *testing.T) {
	inv := newInvoice(t)
	item, err := model.NewLineItem(1, "x", decimal.MustQuantity("1"), decimal.MustMoney("1.00", "USD"), decimal.MustTaxRate("19"))
	require.NoError(t, err)

	assert.ErrorIs(t, inv.AddLineItem(item), decimal.ErrCurrencyMismatch)
}

func TestRemoveLineItem(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "1.00", "19")))
	require.NoError(t, inv.AddLineItem(newItem(t, 2, "1", "2.00", "19")))

	require.NoError(t, inv.RemoveLineItem(1))
	assert.Equal(t, 1, inv.LineItems().Len())
	_, ok := inv.LineItems().ByPosition(1)
	assert.False(t, ok)

	err := inv.RemoveLineItem(7)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLineItems_ViewDoesNotMutate(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "1.00", "19")))

	items := inv.LineItems().Slice()
	items[0].Description = "changed"

	li := inv.LineItems().At(0)
	li.Description = "changed too"

	assert.Equal(t, "Item", inv.LineItems().At(0).Description)
}

func TestRecompute(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "2", "100.00", "19")))
	require.NoError(t, inv.AddLineItem(newItem(t, 2, "3", "0.35", "7")))

	require.NoError(t, inv.Recompute())

	// line 1: 200.00, tax 38.00; line 2: 1.05, tax 0.0735 -> 0.07
	assert.Equal(t, "201.05", inv.NetAmount.Fixed())
	assert.Equal(t, "38.07", inv.TaxAmount.Fixed())
	assert.Equal(t, "239.12", inv.TotalAmount.Fixed())

	before := inv.Clone()
	require.NoError(t, inv.Recompute())
	assert.True(t, before.Equal(inv), "recompute must be idempotent")
}

func TestTaxBreakdown(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "100.00", "19")))
	require.NoError(t, inv.AddLineItem(newItem(t, 2, "1", "10.00", "7")))
	require.NoError(t, inv.AddLineItem(newItem(t, 3, "1", "50.00", "19")))

	groups, err := inv.TaxBreakdown()
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "19.00", groups[0].Rate.String())
	assert.Equal(t, "150.00", groups[0].Taxable.Fixed())
	assert.Equal(t, "28.50", groups[0].Tax.Fixed())
	assert.Equal(t, "7.00", groups[1].Rate.String())
	assert.Equal(t, "0.70", groups[1].Tax.Fixed())
}

func TestClone_IsIndependent(t *testing.T) {
	inv := newInvoice(t)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1", "1.00", "19")))

	c := inv.Clone()
	require.NoError(t, c.AddLineItem(newItem(t, 2, "1", "1.00", "19")))

	assert.Equal(t, 1, inv.LineItems().Len())
	assert.Equal(t, 2, c.LineItems().Len())
	assert.False(t, inv.Equal(c))
}

func TestEffectiveBuyerReference(t *testing.T) {
	inv := newInvoice(t)
	assert.Equal(t, "INV-2024-001", inv.EffectiveBuyerReference())

	inv.BuyerReference = "04011000-12345-34"
	assert.Equal(t, "04011000-12345-34", inv.EffectiveBuyerReference())
}

func TestValidTaxID(t *testing.T) {
	assert.True(t, model.ValidTaxID("DE123456789"))
	assert.True(t, model.ValidTaxID("ATU12345678"))
	assert.False(t, model.ValidTaxID("123456789"))
	assert.False(t, model.ValidTaxID("de123456789"))
	assert.False(t, model.ValidTaxID("DE"))
}

func TestInvoice_JSON(t *testing.T) {
	inv := newInvoice(t)
	inv.DueDate = time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, inv.AddLineItem(newItem(t, 1, "1.0", "100.00", "19")))
	require.NoError(t, inv.Recompute())

	data, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_amount":"119.00"`)
	assert.Contains(t, string(data), `"due_date":"2024-02-14"`)

	var decoded model.Invoice
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, inv.Equal(&decoded))
}

func TestInvoice_UnmarshalJSON_Recomputes(t *testing.T) {
	data := []byte(`{
		"invoice_number": "INV-9",
		"invoice_date": "2024-03-01",
		"supplier": {"name": "S"},
		"buyer": {"name": "B"},
		"currency": "EUR",
		"line_items": [
			{"position": 1, "description": "Consulting", "quantity": "2", "unit_price": "50.00", "tax_rate": "19.00"}
		]
	}`)

	var inv model.Invoice
	require.NoError(t, json.Unmarshal(data, &inv))
	assert.Equal(t, "100.00", inv.NetAmount.Fixed())
	assert.Equal(t, "119.00", inv.TotalAmount.Fixed())
}

func TestInvoice_UnmarshalJSON_InvalidScale(t *testing.T) {
	data := []byte(`{"invoice_number": "INV-9", "invoice_date": "2024-03-01", "currency": "EUR",
		"line_items": [{"position": 1, "description": "x", "quantity": "1", "unit_price": "10.005", "tax_rate": "19"}]}`)

	var inv model.Invoice
	err := json.Unmarshal(data, &inv)
	assert.ErrorIs(t, err, decimal.ErrInvalidScale)
}

func TestDecodeJSON_DefaultRate(t *testing.T) {
	data := []byte(`{"invoice_number": "INV-9", "invoice_date": "2024-03-01", "currency": "EUR",
		"supplier": {"name": "S"}, "buyer": {"name": "B"},
		"line_items": [
			{"position": 1, "description": "x", "quantity": "1", "unit_price": "100.00"},
			{"position": 2, "description": "y", "quantity": "1", "unit_price": "10.00", "tax_rate": "7"}
		]}`)

	inv, err := model.DecodeJSON(data, decimal.MustTaxRate("19"))
	require.NoError(t, err)
	first, _ := inv.LineItems().ByPosition(1)
	second, _ := inv.LineItems().ByPosition(2)
	assert.Equal(t, "19.00", first.TaxRate.String())
	assert.Equal(t, "7.00", second.TaxRate.String())
	assert.Equal(t, "19.70", inv.TaxAmount.Fixed())

	var plain model.Invoice
	assert.Error(t, json.Unmarshal(data, &plain), "tax_rate is required without a default")
}

func TestMalformedDocumentError(t *testing.T) {
	cause := assert.AnError
	err := model.NewMalformedDocument("ubl", "Invoice/cbc:IssueDate", "unparseable date", cause)

	require.Contains(t, err.Error(), "ubl")
	require.Contains(t, err.Error(), "IssueDate")
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, model.ErrMalformedDocument)
}

func TestDecodeJSON_Totals(t *testing.T) {
	const lines = `"line_items": [{"position": 1, "description": "x", "quantity": "1", "unit_price": "100.00", "tax_rate": "19"}]`
	tests := []struct {
		name   string
		totals string
		net    string
		tax    string
		total  string
	}{
		{"all omitted", ``, "100.00", "19.00", "119.00"},
		{"net from total minus tax", `"tax_amount": "19.00", "total_amount": "119.00",`, "100.00", "19.00", "119.00"},
		{"net from disagreeing total", `"tax_amount": "19.00", "total_amount": "120.00",`, "101.00", "19.00", "120.00"},
		{"only net given", `"net_amount": "100.00",`, "100.00", "19.00", "119.00"},
		{"all given", `"net_amount": "1.00", "tax_amount": "2.00", "total_amount": "3.00",`, "1.00", "2.00", "3.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"invoice_number": "INV-9", "invoice_date": "2024-03-01", "currency": "EUR", ` + tt.totals + lines + `}`)
			inv, err := model.DecodeJSON(data, decimal.MustTaxRate("19"))
			require.NoError(t, err)
			assert.Equal(t, tt.net, inv.NetAmount.Fixed())
			assert.Equal(t, tt.tax, inv.TaxAmount.Fixed())
			assert.Equal(t, tt.total, inv.TotalAmount.Fixed())
		})
	}
}

func TestDecodeJSON_InvalidCodes(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		field string
	}{
		{"unit code", `"unit_code": "kgm"`, "unit_code"},
		{"tax category", `"tax_category": "X"`, "tax_category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"invoice_number": "INV-9", "invoice_date": "2024-03-01", "currency": "EUR",
				"line_items": [{"position": 1, "description": "x", "quantity": "1", "unit_price": "1.00", "tax_rate": "19", ` + tt.extra + `}]}`)
			_, err := model.DecodeJSON(data, decimal.MustTaxRate("19"))
			require.ErrorIs(t, err, model.ErrInvalidCode)

			var aggErr *model.AggregateError
			require.ErrorAs(t, err, &aggErr)
			assert.Equal(t, tt.field, aggErr.Field)
		})
	}
}

func TestEqual_CalendarDates(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	inv := newInvoice(t)
	inv.DueDate = time.Date(2024, 2, 14, 0, 0, 0, 0, cet)

	other := inv.Clone()
	other.Date = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	other.DueDate = time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	assert.True(t, inv.Equal(other))

	other.DueDate = time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	assert.False(t, inv.Equal(other))
}

func TestEqual_BuyerReferenceDefault(t *testing.T) {
	inv := newInvoice(t)
	other := inv.Clone()
	other.BuyerReference = inv.Number
	assert.True(t, inv.Equal(other))

	other.BuyerReference = "04011000-12345-34"
	assert.False(t, inv.Equal(other))
}
