package xrechnung_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung/pkg/xrechnung"
)

const invoiceJSON = `{
	"invoice_number": "INV-2024-001",
	"invoice_date": "2024-01-15",
	"supplier": {"name": "Test Supplier GmbH", "tax_id": "DE123456789"},
	"buyer": {"name": "Test Buyer AG", "tax_id": "DE987654321"},
	"currency": "EUR",
	"line_items": [
		{"position": 1, "description": "Consulting", "quantity": "2", "unit_price": "50.00"},
		{"position": 2, "description": "Books", "quantity": "1", "unit_price": "20.00", "tax_rate": "7"}
	]
}`

func newInvoice(t *testing.T, proc *xrechnung.Processor) *xrechnung.Invoice {
	t.Helper()
	inv, err := proc.DecodeJSON(strings.NewReader(invoiceJSON))
	require.NoError(t, err)
	return inv
}

func TestNewDefaultProcessor(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	require.NotNil(t, proc)

	settings := proc.Settings()
	assert.Equal(t, "EUR", settings.Currency)
	assert.Equal(t, xrechnung.SyntaxUBL, settings.Syntax)
	assert.True(t, settings.XMLValidation)
}

func TestProcessor_DecodeJSON(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	inv := newInvoice(t, proc)

	assert.Equal(t, "120.00", inv.NetAmount.Fixed())
	assert.Equal(t, "20.40", inv.TaxAmount.Fixed()) // 19.00 + 1.40
	assert.Equal(t, "140.40", inv.TotalAmount.Fixed())
	assert.Empty(t, proc.Validate(inv))
}

func TestProcessor_RoundTrip(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	inv := newInvoice(t, proc)

	for _, syntax := range []string{xrechnung.SyntaxUBL, xrechnung.SyntaxCII} {
		t.Run(syntax, func(t *testing.T) {
			data, err := proc.EncodeSyntax(inv, syntax)
			require.NoError(t, err)

			res, err := proc.Decode(context.Background(), bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, syntax, res.Syntax)
			assert.True(t, res.Consistent())
			assert.True(t, inv.Equal(res.Invoice))
		})
	}
}

func TestProcessor_Convert(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	ubl, err := proc.Encode(newInvoice(t, proc))
	require.NoError(t, err)

	cii, err := proc.Convert(context.Background(), bytes.NewReader(ubl), xrechnung.SyntaxCII)
	require.NoError(t, err)
	assert.Contains(t, string(cii), "CrossIndustryInvoice")

	_, err = proc.Convert(context.Background(), bytes.NewReader(ubl), "edifact")
	assert.ErrorIs(t, err, xrechnung.ErrUnknownSyntax)
}

func TestProcessor_EncodeRejected(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	inv := newInvoice(t, proc)
	inv.Buyer.TaxID = "123"

	_, err := proc.Encode(inv)
	require.ErrorIs(t, err, xrechnung.ErrEncodeRejected)

	var rejected *xrechnung.EncodeRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Violations, 1)
	assert.Equal(t, xrechnung.KindInvalidTaxID, rejected.Violations[0].Kind)
}

func TestProcessor_DecodeMalformed(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()

	_, err := proc.Decode(context.Background(), strings.NewReader("not xml"))
	require.ErrorIs(t, err, xrechnung.ErrMalformedDocument)

	var malformed *xrechnung.MalformedDocumentError
	assert.ErrorAs(t, err, &malformed)
}

func TestProcessor_DecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := xrechnung.NewDefaultProcessor().Decode(ctx, strings.NewReader("<Invoice/>"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_DecodeBatch(t *testing.T) {
	proc := xrechnung.NewDefaultProcessor()
	inv := newInvoice(t, proc)

	ubl, err := proc.EncodeSyntax(inv, xrechnung.SyntaxUBL)
	require.NoError(t, err)
	cii, err := proc.EncodeSyntax(inv, xrechnung.SyntaxCII)
	require.NoError(t, err)

	results, err := proc.DecodeBatch(context.Background(), [][]byte{ubl, cii})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, xrechnung.SyntaxUBL, results[0].Syntax)
	assert.Equal(t, xrechnung.SyntaxCII, results[1].Syntax)

	results, err = proc.DecodeBatch(context.Background(), [][]byte{ubl, []byte("<broken")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 1")
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
}

func TestLoadSettings_Options(t *testing.T) {
	t.Chdir(t.TempDir())

	settings, err := xrechnung.LoadSettings(
		xrechnung.WithSyntax(xrechnung.SyntaxCII),
		xrechnung.WithXMLValidation(false),
	)
	require.NoError(t, err)

	proc := xrechnung.NewProcessor(settings)
	inv := newInvoice(t, proc)
	inv.Buyer.TaxID = "123"

	data, err := proc.Encode(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CrossIndustryInvoice")
	assert.Contains(t, string(data), "<!--unvalidated-->")
}
