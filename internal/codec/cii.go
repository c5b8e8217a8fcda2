package codec

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/xrechnung/internal/model"
)

// UN/CEFACT CII D16B namespaces
const (
	NamespaceCIIRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	NamespaceCIIRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	NamespaceCIIUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
)

const (
	ciiDateLayout  = "20060102"
	ciiDateFormat  = "102"
	ciiVATSchemeID = "VA"
)

func rsm(local string) qname { return qname{ns: NamespaceCIIRSM, prefix: "rsm", local: local} }
func ram(local string) qname { return qname{ns: NamespaceCIIRAM, prefix: "ram", local: local} }
func udt(local string) qname { return qname{ns: NamespaceCIIUDT, prefix: "udt", local: local} }

type ciiInvoice struct {
	XMLName     xml.Name       `xml:"rsm:CrossIndustryInvoice"`
	Rsm         string         `xml:"xmlns:rsm,attr"`
	Ram         string         `xml:"xmlns:ram,attr"`
	Udt         string         `xml:"xmlns:udt,attr"`
	Comment     string         `xml:",comment"`
	Context     ciiContext     `xml:"rsm:ExchangedDocumentContext"`
	Document    ciiDocument    `xml:"rsm:ExchangedDocument"`
	Transaction ciiTransaction `xml:"rsm:SupplyChainTradeTransaction"`
}

type ciiContext struct {
	BusinessProcess string `xml:"ram:BusinessProcessSpecifiedDocumentContextParameter>ram:ID"`
	Guideline       string `xml:"ram:GuidelineSpecifiedDocumentContextParameter>ram:ID"`
}

type ciiDocument struct {
	ID        string   `xml:"ram:ID"`
	TypeCode  string   `xml:"ram:TypeCode"`
	IssueDate ciiDate  `xml:"ram:IssueDateTime>udt:DateTimeString"`
	Note      *ciiNote `xml:"ram:IncludedNote"`
}

type ciiNote struct {
	Content string `xml:"ram:Content"`
}

type ciiDate struct {
	Value  string `xml:",chardata"`
	Format string `xml:"format,attr"`
}

type ciiTransaction struct {
	Lines      []ciiLine     `xml:"ram:IncludedSupplyChainTradeLineItem"`
	Agreement  ciiAgreement  `xml:"ram:ApplicableHeaderTradeAgreement"`
	Delivery   struct{}      `xml:"ram:ApplicableHeaderTradeDelivery"`
	Settlement ciiSettlement `xml:"ram:ApplicableHeaderTradeSettlement"`
}

type ciiLine struct {
	LineID     string            `xml:"ram:AssociatedDocumentLineDocument>ram:LineID"`
	Name       string            `xml:"ram:SpecifiedTradeProduct>ram:Name"`
	NetPrice   string            `xml:"ram:SpecifiedLineTradeAgreement>ram:NetPriceProductTradePrice>ram:ChargeAmount"`
	Quantity   ciiQuantity       `xml:"ram:SpecifiedLineTradeDelivery>ram:BilledQuantity"`
	Settlement ciiLineSettlement `xml:"ram:SpecifiedLineTradeSettlement"`
}

type ciiQuantity struct {
	Value    string `xml:",chardata"`
	UnitCode string `xml:"unitCode,attr"`
}

type ciiLineSettlement struct {
	Tax       ciiTradeTax `xml:"ram:ApplicableTradeTax"`
	LineTotal string      `xml:"ram:SpecifiedTradeSettlementLineMonetarySummation>ram:LineTotalAmount"`
}

type ciiTradeTax struct {
	CalculatedAmount string `xml:"ram:CalculatedAmount,omitempty"`
	TypeCode         string `xml:"ram:TypeCode"`
	BasisAmount      string `xml:"ram:BasisAmount,omitempty"`
	CategoryCode     string `xml:"ram:CategoryCode"`
	Rate             string `xml:"ram:RateApplicablePercent"`
}

type ciiAgreement struct {
	BuyerReference string   `xml:"ram:BuyerReference"`
	Seller         ciiParty `xml:"ram:SellerTradeParty"`
	Buyer          ciiParty `xml:"ram:BuyerTradeParty"`
}

type ciiParty struct {
	Name            string              `xml:"ram:Name"`
	TaxRegistration *ciiTaxRegistration `xml:"ram:SpecifiedTaxRegistration"`
}

type ciiTaxRegistration struct {
	ID ciiSchemeID `xml:"ram:ID"`
}

type ciiSchemeID struct {
	Value    string `xml:",chardata"`
	SchemeID string `xml:"schemeID,attr"`
}

type ciiSettlement struct {
	Currency     string           `xml:"ram:InvoiceCurrencyCode"`
	Taxes        []ciiTradeTax    `xml:"ram:ApplicableTradeTax"`
	PaymentTerms *ciiPaymentTerms `xml:"ram:SpecifiedTradePaymentTerms"`
	Summation    ciiSummation     `xml:"ram:SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type ciiPaymentTerms struct {
	DueDate ciiDate `xml:"ram:DueDateDateTime>udt:DateTimeString"`
}

type ciiSummation struct {
	LineTotal     string         `xml:"ram:LineTotalAmount"`
	TaxBasisTotal string         `xml:"ram:TaxBasisTotalAmount"`
	TaxTotal      currencyAmount `xml:"ram:TaxTotalAmount"`
	GrandTotal    string         `xml:"ram:GrandTotalAmount"`
	DuePayable    string         `xml:"ram:DuePayableAmount"`
}

// CII encodes and decodes UN/CEFACT Cross Industry Invoice documents.
// Amounts carry no currencyID except the tax total.
type CII struct{}

// NewCII creates the CII syntax
func NewCII() *CII {
	return &CII{}
}

// Name returns "cii"
func (c *CII) Name() string {
	return SyntaxCII
}

// CanDecode returns true for a CrossIndustryInvoice root in the rsm namespace
func (c *CII) CanDecode(root *etree.Element) bool {
	return root.Tag == "CrossIndustryInvoice" && root.NamespaceURI() == NamespaceCIIRSM
}

// Encode serializes inv as CII
func (c *CII) Encode(inv *model.Invoice, comment string) ([]byte, error) {
	groups, err := inv.TaxBreakdown()
	if err != nil {
		return nil, fmt.Errorf("tax breakdown: %w", err)
	}

	doc := ciiInvoice{
		Rsm:     NamespaceCIIRSM,
		Ram:     NamespaceCIIRAM,
		Udt:     NamespaceCIIUDT,
		Comment: comment,
		Context: ciiContext{
			BusinessProcess: model.ProfileID,
			Guideline:       model.CustomizationID,
		},
		Document: ciiDocument{
			ID:        inv.Number,
			TypeCode:  model.TypeCodeCommercialInvoice,
			IssueDate: ciiDate{Value: formatDate(inv.Date, ciiDateLayout), Format: ciiDateFormat},
		},
	}
	if inv.Note != "" {
		doc.Document.Note = &ciiNote{Content: inv.Note}
	}

	tx := &doc.Transaction
	for _, li := range inv.LineItems().All() {
		tx.Lines = append(tx.Lines, ciiLine{
			LineID:   strconv.Itoa(li.Position),
			Name:     li.Description,
			NetPrice: li.UnitPrice.Fixed(),
			Quantity: ciiQuantity{Value: li.Quantity.String(), UnitCode: unitCodeOf(li)},
			Settlement: ciiLineSettlement{
				Tax: ciiTradeTax{
					TypeCode:     taxSchemeVAT,
					CategoryCode: categoryOf(li),
					Rate:         li.TaxRate.String(),
				},
				LineTotal: li.LineTotal.Fixed(),
			},
		})
	}

	tx.Agreement = ciiAgreement{
		BuyerReference: inv.EffectiveBuyerReference(),
		Seller:         ciiPartyOf(inv.Supplier),
		Buyer:          ciiPartyOf(inv.Buyer),
	}

	tx.Settlement.Currency = inv.Currency
	for _, g := range groups {
		tx.Settlement.Taxes = append(tx.Settlement.Taxes, ciiTradeTax{
			CalculatedAmount: g.Tax.Fixed(),
			TypeCode:         taxSchemeVAT,
			BasisAmount:      g.Taxable.Fixed(),
			CategoryCode:     g.Category,
			Rate:             g.Rate.String(),
		})
	}
	if !inv.DueDate.IsZero() {
		tx.Settlement.PaymentTerms = &ciiPaymentTerms{
			DueDate: ciiDate{Value: formatDate(inv.DueDate, ciiDateLayout), Format: ciiDateFormat},
		}
	}
	tx.Settlement.Summation = ciiSummation{
		LineTotal:     inv.NetAmount.Fixed(),
		TaxBasisTotal: inv.NetAmount.Fixed(),
		TaxTotal:      amountOf(inv.TaxAmount),
		GrandTotal:    inv.TotalAmount.Fixed(),
		DuePayable:    inv.TotalAmount.Fixed(),
	}

	return marshalDocument(doc)
}

func ciiPartyOf(p model.Party) ciiParty {
	out := ciiParty{Name: p.Name}
	if p.TaxID != "" {
		out.TaxRegistration = &ciiTaxRegistration{ID: ciiSchemeID{Value: p.TaxID, SchemeID: ciiVATSchemeID}}
	}
	return out
}

// Decode reads a CII document
func (c *CII) Decode(root *etree.Element) (*Document, error) {
	n := rootNode(root, c.Name())

	header, err := n.walk(rsm("ExchangedDocument"))
	if err != nil {
		return nil, err
	}
	number, _, err := header.requiredText(ram("ID"))
	if err != nil {
		return nil, err
	}
	date, err := ciiDateAt(header, ram("IssueDateTime"), udt("DateTimeString"))
	if err != nil {
		return nil, err
	}

	tx, err := n.walk(rsm("SupplyChainTradeTransaction"))
	if err != nil {
		return nil, err
	}
	agreement, err := tx.walk(ram("ApplicableHeaderTradeAgreement"))
	if err != nil {
		return nil, err
	}
	settlement, err := tx.walk(ram("ApplicableHeaderTradeSettlement"))
	if err != nil {
		return nil, err
	}
	currency, err := settlement.currency(ram("InvoiceCurrencyCode"))
	if err != nil {
		return nil, err
	}
	ref, _, err := agreement.requiredText(ram("BuyerReference"))
	if err != nil {
		return nil, err
	}

	inv, err := model.NewInvoice(number, date, currency)
	if err != nil {
		return nil, n.malformed(n.path, "invalid header", err)
	}
	inv.Note = header.optionalText(ram("IncludedNote"), ram("Content"))
	inv.BuyerReference = buyerReference(ref, number)
	if _, ok := settlement.lookup(ram("SpecifiedTradePaymentTerms"), ram("DueDateDateTime")); ok {
		if inv.DueDate, err = ciiDateAt(settlement, ram("SpecifiedTradePaymentTerms"), ram("DueDateDateTime"),
			udt("DateTimeString")); err != nil {
			return nil, err
		}
	}

	if inv.Supplier, err = c.decodeParty(agreement, ram("SellerTradeParty")); err != nil {
		return nil, err
	}
	if inv.Buyer, err = c.decodeParty(agreement, ram("BuyerTradeParty")); err != nil {
		return nil, err
	}

	lines := tx.all(ram("IncludedSupplyChainTradeLineItem"))
	if len(lines) == 0 {
		return nil, tx.malformed(tx.path+"/"+ram("IncludedSupplyChainTradeLineItem").String(), "missing required element", nil)
	}
	for _, ln := range lines {
		li, err := c.decodeLine(ln, currency)
		if err != nil {
			return nil, err
		}
		if err := ln.addLine(inv, li); err != nil {
			return nil, err
		}
	}

	sum, err := settlement.walk(ram("SpecifiedTradeSettlementHeaderMonetarySummation"))
	if err != nil {
		return nil, err
	}
	doc := &Document{Invoice: inv}
	if doc.Declared.Net, err = sum.moneyAt(currency, false, ram("LineTotalAmount")); err != nil {
		return nil, err
	}
	if _, err = sum.moneyAt(currency, false, ram("TaxBasisTotalAmount")); err != nil {
		return nil, err
	}
	if doc.Declared.Tax, err = sum.moneyAt(currency, true, ram("TaxTotalAmount")); err != nil {
		return nil, err
	}
	if doc.Declared.Total, err = sum.moneyAt(currency, false, ram("GrandTotalAmount")); err != nil {
		return nil, err
	}
	if doc.Payable, err = sum.moneyAt(currency, false, ram("DuePayableAmount")); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *CII) decodeParty(n node, role qname) (model.Party, error) {
	p, err := n.walk(role)
	if err != nil {
		return model.Party{}, err
	}
	name, _, err := p.requiredText(ram("Name"))
	if err != nil {
		return model.Party{}, err
	}
	party := model.Party{Name: name}
	for _, reg := range p.all(ram("SpecifiedTaxRegistration")) {
		id, ok := reg.find(ram("ID"))
		if ok && id.attr("schemeID") == ciiVATSchemeID {
			party.TaxID = id.text()
			break
		}
	}
	return party, nil
}

func (c *CII) decodeLine(ln node, currency string) (model.LineItem, error) {
	idNode, err := ln.walk(ram("AssociatedDocumentLineDocument"), ram("LineID"))
	if err != nil {
		return model.LineItem{}, err
	}
	position, err := idNode.position()
	if err != nil {
		return model.LineItem{}, err
	}
	name, _, err := ln.requiredText(ram("SpecifiedTradeProduct"), ram("Name"))
	if err != nil {
		return model.LineItem{}, err
	}
	price, err := ln.moneyAt(currency, false, ram("SpecifiedLineTradeAgreement"),
		ram("NetPriceProductTradePrice"), ram("ChargeAmount"))
	if err != nil {
		return model.LineItem{}, err
	}

	qtyNode, err := ln.walk(ram("SpecifiedLineTradeDelivery"), ram("BilledQuantity"))
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

	settlement, err := ln.walk(ram("SpecifiedLineTradeSettlement"))
	if err != nil {
		return model.LineItem{}, err
	}
	tax, err := settlement.walk(ram("ApplicableTradeTax"))
	if err != nil {
		return model.LineItem{}, err
	}
	catNode, err := tax.walk(ram("CategoryCode"))
	if err != nil {
		return model.LineItem{}, err
	}
	category, err := catNode.taxCategory()
	if err != nil {
		return model.LineItem{}, err
	}
	rateNode, err := tax.walk(ram("RateApplicablePercent"))
	if err != nil {
		return model.LineItem{}, err
	}
	rate, err := rateNode.taxRate()
	if err != nil {
		return model.LineItem{}, err
	}
	lineTotal, err := settlement.moneyAt(currency, false, ram("SpecifiedTradeSettlementLineMonetarySummation"),
		ram("LineTotalAmount"))
	if err != nil {
		return model.LineItem{}, err
	}

	return buildLine(ln, position, name, qty, unit, price, lineTotal, rate, category)
}

// ciiDateAt reads a udt:DateTimeString, which must use format 102
func ciiDateAt(n node, path ...qname) (time.Time, error) {
	_, c, err := n.requiredText(path...)
	if err != nil {
		return time.Time{}, err
	}
	if f := c.attr("format"); f != ciiDateFormat {
		return time.Time{}, c.malformed(c.path+"/@format", "unsupported date format "+strconv.Quote(f), nil)
	}
	return c.date(ciiDateLayout)
}

var (
	_ Syntax = (*UBL)(nil)
	_ Syntax = (*CII)(nil)
)
