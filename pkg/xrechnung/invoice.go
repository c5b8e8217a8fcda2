// Package xrechnung provides a public API for encoding, decoding and
// validating XRechnung invoices.
//
// It exposes the invoice aggregate and a Processor that converts between
// JSON, UBL 2.1 and UN/CEFACT CII.
//
// Example usage:
//
//	proc := xrechnung.NewDefaultProcessor()
//	res, err := proc.Decode(ctx, reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Invoice.TotalAmount)
package xrechnung

import (
	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

// Re-export core types for public API
type (
	Invoice   = model.Invoice
	LineItem  = model.LineItem
	Party     = model.Party
	Totals    = model.Totals
	TaxGroup  = model.TaxGroup
	Money     = decimal.Money
	TaxRate   = decimal.TaxRate
	Quantity  = decimal.Quantity
	Settings  = config.Settings
	Option    = config.Option
	Violation = validator.Violation
	Kind      = validator.Kind
	Result    = codec.DecodeResult
)

// Re-export syntax names
const (
	SyntaxUBL = codec.SyntaxUBL
	SyntaxCII = codec.SyntaxCII
)

// Re-export violation kinds
const (
	KindMissingField     = validator.KindMissingField
	KindMissingTaxID     = validator.KindMissingTaxID
	KindInvalidTaxID     = validator.KindInvalidTaxID
	KindNegativeAmount   = validator.KindNegativeAmount
	KindCurrencyMismatch = validator.KindCurrencyMismatch
	KindTotalMismatch    = validator.KindTotalMismatch
	KindLineItemMismatch = validator.KindLineItemMismatch
	KindEmptyInvoice     = validator.KindEmptyInvoice
	KindPositionGap      = validator.KindPositionGap
)

// Re-export error types
type (
	AggregateError         = model.AggregateError
	MalformedDocumentError = model.MalformedDocumentError
	ConstructionError      = decimal.ConstructionError
	EncodeRejectedError    = codec.EncodeRejectedError
)

// Re-export sentinel errors
var (
	ErrMalformedDocument = model.ErrMalformedDocument
	ErrEncodeRejected    = codec.ErrEncodeRejected
	ErrUnknownSyntax     = codec.ErrUnknownSyntax
)

// Re-export constructors
var (
	NewInvoice   = model.NewInvoice
	NewLineItem  = model.NewLineItem
	ParseMoney   = decimal.ParseMoney
	MustMoney    = decimal.MustMoney
	MustTaxRate  = decimal.MustTaxRate
	MustQuantity = decimal.MustQuantity
)

// Re-export settings options
var (
	WithFile                 = config.WithFile
	WithCurrency             = config.WithCurrency
	WithDefaultTaxRate       = config.WithDefaultTaxRate
	WithXMLValidation        = config.WithXMLValidation
	WithRequireTaxID         = config.WithRequireTaxID
	WithAllowNegativeAmounts = config.WithAllowNegativeAmounts
	WithStrictCurrency       = config.WithStrictCurrency
	WithSyntax               = config.WithSyntax
	WithTolerances           = config.WithTolerances
)
