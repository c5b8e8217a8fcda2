package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

// UBL 2.1 namespaces
const (
	NamespaceUBLInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NamespaceUBLCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NamespaceUBLCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
)

const ublDateLayout = "2006-01-02"

const taxSchemeVAT = "VAT"

func cbc(local string) qname { return qname{ns: NamespaceUBLCBC, prefix: "cbc", local: local} }
func cac(local string) qname { return qname{ns: NamespaceUBLCAC, prefix: "cac", local: local} }

// UBL DTOs, field order is schema order

type ublInvoice struct {
	XMLName            xml.Name         `xml:"Invoice"`
	Xmlns              string           `xml:"xmlns,attr"`
	Cac                string           `xml:"xmlns:cac,attr"`
	Cbc                string           `xml:"xmlns:cbc,attr"`
	Comment            string           `xml:",comment"`
	CustomizationID    string           `xml:"cbc:CustomizationID"`
	ProfileID          string           `xml:"cbc:ProfileID"`
	ID                 string           `xml:"cbc:ID"`
	IssueDate          string           `xml:"cbc:IssueDate"`
	DueDate            string           `xml:"cbc:DueDate,omitempty"`
	InvoiceTypeCode    string           `xml:"cbc:InvoiceTypeCode"`
	Note               string           `xml:"cbc:Note,omitempty"`
	DocumentCurrency   string           `xml:"cbc:DocumentCurrencyCode"`
	BuyerReference     string           `xml:"cbc:BuyerReference"`
	SupplierParty      ublPartyRole     `xml:"cac:AccountingSupplierParty"`
	CustomerParty      ublPartyRole     `xml:"cac:AccountingCustomerParty"`
	TaxTotal           ublTaxTotal      `xml:"cac:TaxTotal"`
	LegalMonetaryTotal ublMonetaryTotal `xml:"cac:LegalMonetaryTotal"`
	InvoiceLines       []ublInvoiceLine `xml:"cac:InvoiceLine"`
}

type ublPartyRole struct {
	Party ublParty `xml:"cac:Party"`
}

type ublParty struct {
	PartyTaxScheme   *ublPartyTaxScheme `xml:"cac:PartyTaxScheme"`
	RegistrationName string             `xml:"cac:PartyLegalEntity>cbc:RegistrationName"`
}

type ublPartyTaxScheme struct {
	CompanyID string `xml:"cbc:CompanyID"`
	TaxScheme string `xml:"cac:TaxScheme>cbc:ID"`
}

type currencyAmount struct {
	Value      string `xml:",chardata"`
	CurrencyID string `xml:"currencyID,attr"`
}

type ublQuantity struct {
	Value    string `xml:",chardata"`
	UnitCode string `xml:"unitCode,attr"`
}

type ublTaxTotal struct {
	TaxAmount   currencyAmount   `xml:"cbc:TaxAmount"`
	TaxSubtotal []ublTaxSubtotal `xml:"cac:TaxSubtotal"`
}

type ublTaxSubtotal struct {
	TaxableAmount currencyAmount `xml:"cbc:TaxableAmount"`
	TaxAmount     currencyAmount `xml:"cbc:TaxAmount"`
	TaxCategory   ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublTaxCategory struct {
	ID        string `xml:"cbc:ID"`
	Percent   string `xml:"cbc:Percent"`
	TaxScheme string `xml:"cac:TaxScheme>cbc:ID"`
}

type ublMonetaryTotal struct {
	LineExtensionAmount currencyAmount `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount  currencyAmount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount  currencyAmount `xml:"cbc:TaxInclusiveAmount"`
	PayableAmount       currencyAmount `xml:"cbc:PayableAmount"`
}

type ublInvoiceLine struct {
	ID                  string         `xml:"cbc:ID"`
	InvoicedQuantity    ublQuantity    `xml:"cbc:InvoicedQuantity"`
	LineExtensionAmount currencyAmount `xml:"cbc:LineExtensionAmount"`
	Item                ublItem        `xml:"cac:Item"`
	Price               ublPrice       `xml:"cac:Price"`
}

type ublItem struct {
	Name                  string         `xml:"cbc:Name"`
	ClassifiedTaxCategory ublTaxCategory `xml:"cac:ClassifiedTaxCategory"`
}

type ublPrice struct {
	PriceAmount currencyAmount `xml:"cbc:PriceAmount"`
}

// UBL encodes and decodes UBL 2.1 Invoice documents
type UBL struct{}

// NewUBL creates the UBL syntax
func NewUBL() *UBL {
	return &UBL{}
}

// Name returns "ubl"
func (u *UBL) Name() string {
	return SyntaxUBL
}

// CanDecode returns true for an Invoice root in the UBL namespace
func (u *UBL) CanDecode(root *etree.Element) bool {
	return root.Tag == "Invoice" && root.NamespaceURI() == NamespaceUBLInvoice
}

// Encode serializes inv as UBL
func (u *UBL) Encode(inv *model.Invoice, comment string) ([]byte, error) {
	groups, err := inv.TaxBreakdown()
	if err != nil {
		return nil, fmt.Errorf("tax breakdown: %w", err)
	}

	doc := ublInvoice{
		Xmlns:            NamespaceUBLInvoice,
		Cac:              NamespaceUBLCAC,
		Cbc:              NamespaceUBLCBC,
		Comment:          comment,
		CustomizationID:  model.CustomizationID,
		ProfileID:        model.ProfileID,
		ID:               inv.Number,
		IssueDate:        formatDate(inv.Date, ublDateLayout),
		DueDate:          formatDate(inv.DueDate, ublDateLayout),
		InvoiceTypeCode:  model.TypeCodeCommercialInvoice,
		Note:             inv.Note,
		DocumentCurrency: inv.Currency,
		BuyerReference:   inv.EffectiveBuyerReference(),
		SupplierParty:    ublPartyRole{Party: ublPartyOf(inv.Supplier)},
		CustomerParty:    ublPartyRole{Party: ublPartyOf(inv.Buyer)},
		TaxTotal: ublTaxTotal{
			TaxAmount: amountOf(inv.TaxAmount),
		},
		LegalMonetaryTotal: ublMonetaryTotal{
			LineExtensionAmount: amountOf(inv.NetAmount),
			TaxExclusiveAmount:  amountOf(inv.NetAmount),
			TaxInclusiveAmount:  amountOf(inv.TotalAmount),
			PayableAmount:       amountOf(inv.TotalAmount),
		},
	}
	for _, g := range groups {
		doc.TaxTotal.TaxSubtotal = append(doc.TaxTotal.TaxSubtotal, ublTaxSubtotal{
			TaxableAmount: amountOf(g.Taxable),
			TaxAmount:     amountOf(g.Tax),
			TaxCategory:   ublCategoryOf(g.Category, g.Rate),
		})
	}
	for _, li := range inv.LineItems().All() {
		doc.InvoiceLines = append(doc.InvoiceLines, ublInvoiceLine{
			ID:                  strconv.Itoa(li.Position),
			InvoicedQuantity:    ublQuantity{Value: li.Quantity.String(), UnitCode: unitCodeOf(li)},
			LineExtensionAmount: amountOf(li.LineTotal),
			Item: ublItem{
				Name:                  li.Description,
				ClassifiedTaxCategory: ublCategoryOf(categoryOf(li), li.TaxRate),
			},
			Price: ublPrice{PriceAmount: amountOf(li.UnitPrice)},
		})
	}

	return marshalDocument(doc)
}

func ublPartyOf(p model.Party) ublParty {
	out := ublParty{RegistrationName: p.Name}
	if p.TaxID != "" {
		out.PartyTaxScheme = &ublPartyTaxScheme{CompanyID: p.TaxID, TaxScheme: taxSchemeVAT}
	}
	return out
}

func ublCategoryOf(category string, rate decimal.TaxRate) ublTaxCategory {
	return ublTaxCategory{ID: category, Percent: rate.String(), TaxScheme: taxSchemeVAT}
}

func amountOf(m decimal.Money) currencyAmount {
	return currencyAmount{Value: m.Fixed(), CurrencyID: m.Currency()}
}

// Decode reads a UBL Invoice document
func (u *UBL) Decode(root *etree.Element) (*Document, error) {
	n := rootNode(root, u.Name())

	number, _, err := n.requiredText(cbc("ID"))
	if err != nil {
		return nil, err
	}
	date, err := n.dateAt(ublDateLayout, cbc("IssueDate"))
	if err != nil {
		return nil, err
	}
	currency, err := n.currency(cbc("DocumentCurrencyCode"))
	if err != nil {
		return nil, err
	}
	ref, _, err := n.requiredText(cbc("BuyerReference"))
	if err != nil {
		return nil, err
	}

	inv, err := model.NewInvoice(number, date, currency)
	if err != nil {
		return nil, n.malformed(n.path, "invalid header", err)
	}
	if due, ok := n.find(cbc("DueDate")); ok {
		if inv.DueDate, err = due.date(ublDateLayout); err != nil {
			return nil, err
		}
	}
	inv.Note = n.optionalText(cbc("Note"))
	inv.BuyerReference = buyerReference(ref, number)

	if inv.Supplier, err = u.decodeParty(n, cac("AccountingSupplierParty")); err != nil {
		return nil, err
	}
	if inv.Buyer, err = u.decodeParty(n, cac("AccountingCustomerParty")); err != nil {
		return nil, err
	}

	lines := n.all(cac("InvoiceLine"))
	if len(lines) == 0 {
		return nil, n.malformed(n.path+"/"+cac("InvoiceLine").String(), "missing required element", nil)
	}
	for _, ln := range lines {
		li, err := u.decodeLine(ln, currency)
		if err != nil {
			return nil, err
		}
		if err := ln.addLine(inv, li); err != nil {
			return nil, err
		}
	}

	doc := &Document{Invoice: inv}
	if doc.Declared.Tax, err = n.moneyAt(currency, true, cac("TaxTotal"), cbc("TaxAmount")); err != nil {
		return nil, err
	}
	totals, err := n.walk(cac("LegalMonetaryTotal"))
	if err != nil {
		return nil, err
	}
	if doc.Declared.Net, err = totals.moneyAt(currency, true, cbc("LineExtensionAmount")); err != nil {
		return nil, err
	}
	if _, err = totals.moneyAt(currency, true, cbc("TaxExclusiveAmount")); err != nil {
		return nil, err
	}
	if doc.Declared.Total, err = totals.moneyAt(currency, true, cbc("TaxInclusiveAmount")); err != nil {
		return nil, err
	}
	if doc.Payable, err = totals.moneyAt(currency, true, cbc("PayableAmount")); err != nil {
		return nil, err
	}
	return doc, nil
}

func (u *UBL) decodeParty(n node, role qname) (model.Party, error) {
	p, err := n.walk(role, cac("Party"))
	if err != nil {
		return model.Party{}, err
	}
	name, _, err := p.requiredText(cac("PartyLegalEntity"), cbc("RegistrationName"))
	if err != nil {
		return model.Party{}, err
	}
	return model.Party{
		Name:  name,
		TaxID: strings.TrimSpace(p.optionalText(cac("PartyTaxScheme"), cbc("CompanyID"))),
	}, nil
}

func (u *UBL) decodeLine(ln node, currency string) (model.LineItem, error) {
	idNode, err := ln.walk(cbc("ID"))
	if err != nil {
		return model.LineItem{}, err
	}
	position, err := idNode.position()
	if err != nil {
		return model.LineItem{}, err
	}

	qtyNode, err := ln.walk(cbc("InvoicedQuantity"))
	if err != nil {
		return model.LineItem{}, err
	}
	qty, err := qtyNode.quantity()
	if err != nil {
		return model.LineItem{}, err
	}
	unit, err := qtyNode.unitCode()
	if err != nil {
		return model.LineItem{}, err
	}

	lineTotal, err := ln.moneyAt(currency, true, cbc("LineExtensionAmount"))
	if err != nil {
		return model.LineItem{}, err
	}
	name, _, err := ln.requiredText(cac("Item"), cbc("Name"))
	if err != nil {
		return model.LineItem{}, err
	}
	catNode, err := ln.walk(cac("Item"), cac("ClassifiedTaxCategory"))
	if err != nil {
		return model.LineItem{}, err
	}
	category, rate, err := decodeUBLCategory(catNode)
	if err != nil {
		return model.LineItem{}, err
	}
	price, err := ln.moneyAt(currency, true, cac("Price"), cbc("PriceAmount"))
	if err != nil {
		return model.LineItem{}, err
	}

	return buildLine(ln, position, name, qty, unit, price, lineTotal, rate, category)
}

func decodeUBLCategory(n node) (string, decimal.TaxRate, error) {
	idNode, err := n.walk(cbc("ID"))
	if err != nil {
		return "", decimal.TaxRate{}, err
	}
	category, err := idNode.taxCategory()
	if err != nil {
		return "", decimal.TaxRate{}, err
	}
	rateNode, err := n.walk(cbc("Percent"))
	if err != nil {
		return "", decimal.TaxRate{}, err
	}
	rate, err := rateNode.taxRate()
	if err != nil {
		return "", decimal.TaxRate{}, err
	}
	return category, rate, nil
}

// buildLine assembles a decoded line keeping the declared line total
func buildLine(ln node, position int, description string, qty decimal.Quantity, unit string,
	price, lineTotal decimal.Money, rate decimal.TaxRate, category string) (model.LineItem, error) {
	li, err := model.NewLineItem(position, description, qty, price, rate)
	if err != nil {
		return model.LineItem{}, ln.malformed(ln.path, "invalid line", err)
	}
	li.UnitCode = unit
	li.TaxCategory = category
	li.LineTotal = lineTotal
	return li, nil
}

func unitCodeOf(li model.LineItem) string {
	if li.UnitCode == "" {
		return model.DefaultUnitCode
	}
	return li.UnitCode
}

func categoryOf(li model.LineItem) string {
	if li.TaxCategory == "" {
		return model.DefaultTaxCategory(li.TaxRate)
	}
	return li.TaxCategory
}

func formatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// marshalDocument writes doc with an XML declaration and two-space indent
func marshalDocument(doc any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
