package codec_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

func sampleInvoice(t *testing.T) *model.Invoice {
	t.Helper()
	inv, err := model.NewInvoice("INV-2024-001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "EUR")
	require.NoError(t, err)
	inv.Supplier = model.Party{Name: "Test Supplier GmbH", TaxID: "DE123456789"}
	inv.Buyer = model.Party{Name: "Test Buyer AG", TaxID: "DE987654321"}

	item, err := model.NewLineItem(1, "Consulting", decimal.MustQuantity("1.0"),
		decimal.MustMoney("100.00", "EUR"), decimal.MustTaxRate("19.00"))
	require.NoError(t, err)
	require.NoError(t, inv.AddLineItem(item))
	require.NoError(t, inv.Recompute())
	return inv
}

func richInvoice(t *testing.T) *model.Invoice {
	t.Helper()
	inv := sampleInvoice(t)
	inv.DueDate = time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	inv.BuyerReference = "04011000-12345-34"
	inv.Note = "Payable within 30 days & without deduction"
	inv.Buyer.TaxID = ""

	lines := []struct {
		qty, price, rate, unit, category string
	}{
		{"2.5", "12.35", "7", "HUR", ""},
		{"3", "0.35", "7", "", ""},
		{"1", "50.00", "0", "", model.TaxCategoryExempt},
	}
	for i, l := range lines {
		item, err := model.NewLineItem(i+2, "Item <"+l.qty+">", decimal.MustQuantity(l.qty),
			decimal.MustMoney(l.price, "EUR"), decimal.MustTaxRate(l.rate))
		require.NoError(t, err)
		if l.unit != "" {
			item.UnitCode = l.unit
		}
		if l.category != "" {
			item.TaxCategory = l.category
		}
		require.NoError(t, inv.AddLineItem(item))
	}
	require.NoError(t, inv.Recompute())
	return inv
}

func newCodec() *codec.Codec {
	return codec.New(config.Default())
}

func encode(t *testing.T, c *codec.Codec, inv *model.Invoice, syntax string) string {
	t.Helper()
	data, err := c.EncodeSyntax(inv, syntax)
	require.NoError(t, err)
	return string(data)
}

func TestEncode_SampleUBL(t *testing.T) {
	out := encode(t, newCodec(), sampleInvoice(t), codec.SyntaxUBL)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"`)
	assert.Contains(t, out, `<cbc:PayableAmount currencyID="EUR">119.00</cbc:PayableAmount>`)
	assert.Contains(t, out, `<cbc:IssueDate>2024-01-15</cbc:IssueDate>`)
	assert.Contains(t, out, `<cbc:BuyerReference>INV-2024-001</cbc:BuyerReference>`)
	assert.Contains(t, out, `<cbc:InvoicedQuantity unitCode="C62">1</cbc:InvoicedQuantity>`)
	assert.Equal(t, 1, strings.Count(out, "<cac:InvoiceLine>"))
	assert.NotContains(t, out, "<!--")
}

func TestEncode_UBLElementOrder(t *testing.T) {
	out := encode(t, newCodec(), sampleInvoice(t), codec.SyntaxUBL)

	order := []string{
		"<cbc:CustomizationID>", "<cbc:ProfileID>", "<cbc:ID>", "<cbc:IssueDate>", "<cbc:InvoiceTypeCode>",
		"<cbc:DocumentCurrencyCode>", "<cbc:BuyerReference>", "<cac:AccountingSupplierParty>",
		"<cac:AccountingCustomerParty>", "<cac:TaxTotal>", "<cac:LegalMonetaryTotal>", "<cac:InvoiceLine>",
	}
	last := -1
	for _, tag := range order {
		idx := strings.Index(out, tag)
		require.Greater(t, idx, last, "%s out of order", tag)
		last = idx
	}
}

func TestEncode_Deterministic(t *testing.T) {
	c := newCodec()
	inv := richInvoice(t)
	for _, syntax := range []string{codec.SyntaxUBL, codec.SyntaxCII} {
		assert.Equal(t, encode(t, c, inv, syntax), encode(t, c, inv, syntax))
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		syntax string
		build  func(*testing.T) *model.Invoice
	}{
		{"ubl sample", codec.SyntaxUBL, sampleInvoice},
		{"ubl rich", codec.SyntaxUBL, richInvoice},
		{"cii sample", codec.SyntaxCII, sampleInvoice},
		{"cii rich", codec.SyntaxCII, richInvoice},
	}

	c := newCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := tt.build(t)
			require.True(t, validator.New(config.Default()).Validate(inv).Valid())

			res, err := c.Decode([]byte(encode(t, c, inv, tt.syntax)))
			require.NoError(t, err)

			assert.Equal(t, tt.syntax, res.Syntax)
			assert.Empty(t, res.Violations)
			assert.False(t, res.Unvalidated)
			assert.True(t, inv.Equal(res.Invoice), "decoded invoice differs:\nwant %+v\ngot  %+v", inv, res.Invoice)
		})
	}
}

type lineSpec struct {
	qty, price, rate, unit, category, description string
}

func buildInvoice(t *testing.T, lines []lineSpec, mutate func(*model.Invoice)) *model.Invoice {
	t.Helper()
	inv, err := model.NewInvoice("INV-2024-100", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "EUR")
	require.NoError(t, err)
	inv.Supplier = model.Party{Name: "Test Supplier GmbH", TaxID: "DE123456789"}
	inv.Buyer = model.Party{Name: "Test Buyer AG", TaxID: "ATU12345678"}

	for i, l := range lines {
		desc := l.description
		if desc == "" {
			desc = "Item " + l.qty
		}
		item, err := model.NewLineItem(i+1, desc, decimal.MustQuantity(l.qty),
			decimal.MustMoney(l.price, "EUR"), decimal.MustTaxRate(l.rate))
		require.NoError(t, err)
		if l.unit != "" {
			item.UnitCode = l.unit
		}
		if l.category != "" {
			item.TaxCategory = l.category
		}
		require.NoError(t, inv.AddLineItem(item))
	}
	if mutate != nil {
		mutate(inv)
	}
	require.NoError(t, inv.Recompute())
	return inv
}

func TestRoundTrip_Variants(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	allowNegative := config.Default()
	allowNegative.AllowNegativeAmounts = true

	tests := []struct {
		name   string
		cfg    config.Settings
		lines  []lineSpec
		mutate func(*model.Invoice)
	}{
		{
			name: "unit codes and categories",
			cfg:  config.Default(),
			lines: []lineSpec{
				{qty: "2", price: "10.00", rate: "19", unit: "KGM"},
				{qty: "1.5", price: "80.00", rate: "0", unit: "HUR", category: model.TaxCategoryReverse},
				{qty: "1", price: "30.00", rate: "0", unit: "XPP", category: model.TaxCategoryIntraEU},
				{qty: "4", price: "2.50", rate: "0", unit: "H87", category: model.TaxCategoryExport},
				{qty: "1", price: "9.99", rate: "0", unit: "E48", category: model.TaxCategoryOutOfScope},
				{qty: "1", price: "12.00", rate: "7", unit: "LTR", category: model.TaxCategoryCanaryIGIC},
				{qty: "1", price: "5.00", rate: "4", unit: "MTR", category: model.TaxCategoryCeutaIPSI},
				{qty: "1", price: "15.00", rate: "0", unit: "C62", category: model.TaxCategoryExempt},
			},
		},
		{
			name:  "zero rate only",
			cfg:   config.Default(),
			lines: []lineSpec{{qty: "3", price: "4.20", rate: "0"}, {qty: "1", price: "0.01", rate: "0"}},
		},
		{
			name: "mixed rates with rounding",
			cfg:  config.Default(),
			lines: []lineSpec{
				{qty: "3", price: "19.99", rate: "19"},
				{qty: "0.125", price: "8.00", rate: "19"},
				{qty: "7", price: "0.35", rate: "7"},
				{qty: "2.5", price: "12.35", rate: "7"},
				{qty: "1", price: "100.00", rate: "0"},
				{qty: "1", price: "3.33", rate: "16.50"},
			},
		},
		{
			name: "negative amounts allowed",
			cfg:  allowNegative,
			lines: []lineSpec{
				{qty: "1", price: "-50.00", rate: "19", description: "Credit"},
				{qty: "-2", price: "10.00", rate: "7", description: "Returned goods"},
				{qty: "1", price: "5.00", rate: "19"},
			},
		},
		{
			name:  "non-UTC dates",
			cfg:   config.Default(),
			lines: []lineSpec{{qty: "1", price: "100.00", rate: "19"}},
			mutate: func(inv *model.Invoice) {
				inv.Date = time.Date(2024, 3, 1, 23, 30, 0, 0, cet)
				inv.DueDate = time.Date(2024, 4, 1, 0, 0, 0, 0, cet)
			},
		},
		{
			name:  "padded text",
			cfg:   config.Default(),
			lines: []lineSpec{{qty: "1", price: "100.00", rate: "19", description: "  Consulting\t"}},
			mutate: func(inv *model.Invoice) {
				inv.Supplier.Name = " Supplier GmbH "
				inv.Buyer.Name = "Buyer AG\n"
				inv.Note = " line one\nline two "
				inv.BuyerReference = " 04011000-12345-34"
			},
		},
		{
			name:  "buyer reference equal to number",
			cfg:   config.Default(),
			lines: []lineSpec{{qty: "1", price: "100.00", rate: "19"}},
			mutate: func(inv *model.Invoice) {
				inv.BuyerReference = inv.Number
			},
		},
	}

	for _, tt := range tests {
		for _, syntax := range []string{codec.SyntaxUBL, codec.SyntaxCII} {
			t.Run(tt.name+"/"+syntax, func(t *testing.T) {
				inv := buildInvoice(t, tt.lines, tt.mutate)
				res := validator.New(tt.cfg).Validate(inv)
				require.True(t, res.Valid(), "violations: %v", res.Messages())

				c := codec.New(tt.cfg)
				decoded, err := c.Decode([]byte(encode(t, c, inv, syntax)))
				require.NoError(t, err)

				assert.Empty(t, decoded.Violations)
				assert.True(t, inv.Equal(decoded.Invoice), "decoded invoice differs:\nwant %+v\ngot  %+v", inv, decoded.Invoice)
				assert.True(t, validator.New(tt.cfg).Validate(decoded.Invoice).Valid())
			})
		}
	}
}

func TestRoundTrip_InvalidCodesAreRejectedBeforeEncode(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		category string
	}{
		{"lower case unit code", "kgm", model.TaxCategoryStandard},
		{"unknown tax category", model.DefaultUnitCode, "X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := buildInvoice(t, []lineSpec{{qty: "1", price: "100.00", rate: "19", unit: tt.unit, category: tt.category}}, nil)

			_, err := newCodec().Encode(inv)
			var rejected *codec.EncodeRejectedError
			require.ErrorAs(t, err, &rejected)
			require.Len(t, rejected.Violations, 1)
			assert.Equal(t, validator.KindInvalidCode, rejected.Violations[0].Kind)
		})
	}
}

func TestEncode_DefaultSyntaxFromSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Syntax = codec.SyntaxCII

	data, err := codec.New(cfg).Encode(sampleInvoice(t))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<rsm:CrossIndustryInvoice")
}

func TestEncode_UnknownSyntax(t *testing.T) {
	_, err := newCodec().EncodeSyntax(sampleInvoice(t), "edifact")
	assert.ErrorIs(t, err, codec.ErrUnknownSyntax)
}

func TestEncode_Rejected(t *testing.T) {
	inv := sampleInvoice(t)
	inv.TotalAmount = decimal.MustMoney("120.00", "EUR")

	_, err := newCodec().Encode(inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrEncodeRejected)

	var rejected *codec.EncodeRejectedError
	require.True(t, errors.As(err, &rejected))
	require.Len(t, rejected.Violations, 1)
	assert.Equal(t, validator.KindTotalMismatch, rejected.Violations[0].Kind)
}

func TestEncode_UnvalidatedAnnotation(t *testing.T) {
	cfg := config.Default()
	cfg.XMLValidation = false
	c := codec.New(cfg)

	inv := sampleInvoice(t)
	inv.TotalAmount = decimal.MustMoney("120.00", "EUR")

	for _, syntax := range []string{codec.SyntaxUBL, codec.SyntaxCII} {
		t.Run(syntax, func(t *testing.T) {
			out := encode(t, c, inv, syntax)
			assert.Contains(t, out, "<!--unvalidated-->")

			res, err := c.Decode([]byte(out))
			require.NoError(t, err)
			assert.True(t, res.Unvalidated)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, "total_amount", res.Violations[0].Field)
			assert.Equal(t, "119.00", res.Violations[0].Expected)
			assert.Equal(t, "120.00", res.Violations[0].Actual)
			assert.Equal(t, "119.00", res.Invoice.TotalAmount.Fixed(), "totals are re-derived")
		})
	}
}

func TestEncode_ValidInvoiceNotAnnotated(t *testing.T) {
	cfg := config.Default()
	cfg.XMLValidation = false

	out := encode(t, codec.New(cfg), sampleInvoice(t), codec.SyntaxUBL)
	assert.NotContains(t, out, codec.UnvalidatedMarker)
}

func TestDecode_NamespacePrefixesAreIrrelevant(t *testing.T) {
	c := newCodec()
	inv := sampleInvoice(t)
	out := encode(t, c, inv, codec.SyntaxUBL)

	out = strings.ReplaceAll(out, "cbc:", "b:")
	out = strings.ReplaceAll(out, "cac:", "a:")
	out = strings.Replace(out, `xmlns:cbc=`, `xmlns:b=`, 1)
	out = strings.Replace(out, `xmlns:cac=`, `xmlns:a=`, 1)
	out = strings.Replace(out, `<Invoice xmlns=`, `<ubl:Invoice xmlns:ubl=`, 1)
	out = strings.Replace(out, `</Invoice>`, `</ubl:Invoice>`, 1)

	res, err := c.Decode([]byte(out))
	require.NoError(t, err)
	assert.True(t, inv.Equal(res.Invoice))
}

func TestDecode_WrongNamespaceIsUnknown(t *testing.T) {
	out := encode(t, newCodec(), sampleInvoice(t), codec.SyntaxUBL)
	out = strings.Replace(out, `xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"`,
		`xmlns:cbc="urn:example:other"`, 1)

	_, err := newCodec().Decode([]byte(out))
	assert.ErrorIs(t, err, model.ErrMalformedDocument)
}
