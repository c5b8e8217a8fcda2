package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	shopspring "github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

// qname is a namespace-qualified element name. Prefix is only used to
// render error paths; matching is on the resolved namespace URI.
type qname struct {
	ns     string
	prefix string
	local  string
}

func (q qname) String() string {
	if q.prefix == "" {
		return q.local
	}
	return q.prefix + ":" + q.local
}

// node wraps an etree element with its document path
type node struct {
	el     *etree.Element
	path   string
	syntax string
}

func rootNode(el *etree.Element, syntax string) node {
	prefix := el.Space
	name := el.Tag
	if prefix != "" {
		name = prefix + ":" + name
	}
	return node{el: el, path: name, syntax: syntax}
}

func matches(el *etree.Element, q qname) bool {
	return el.Tag == q.local && el.NamespaceURI() == q.ns
}

func (n node) childNode(el *etree.Element, q qname) node {
	return node{el: el, path: n.path + "/" + q.String(), syntax: n.syntax}
}

// find returns the first child named q
func (n node) find(q qname) (node, bool) {
	for _, c := range n.el.ChildElements() {
		if matches(c, q) {
			return n.childNode(c, q), true
		}
	}
	return node{}, false
}

// all returns every child named q in document order
func (n node) all(q qname) []node {
	var out []node
	for _, c := range n.el.ChildElements() {
		if matches(c, q) {
			out = append(out, n.childNode(c, q))
		}
	}
	return out
}

// walk follows a chain of required children
func (n node) walk(path ...qname) (node, error) {
	cur := n
	for _, q := range path {
		next, ok := cur.find(q)
		if !ok {
			return node{}, cur.malformed(cur.path+"/"+q.String(), "missing required element", nil)
		}
		cur = next
	}
	return cur, nil
}

// lookup follows a chain of optional children
func (n node) lookup(path ...qname) (node, bool) {
	cur := n
	for _, q := range path {
		next, ok := cur.find(q)
		if !ok {
			return node{}, false
		}
		cur = next
	}
	return cur, true
}

// text returns the trimmed text of a token element (number, date, code)
func (n node) text() string {
	return strings.TrimSpace(n.el.Text())
}

// requiredText walks to a non-blank element and returns its text verbatim
func (n node) requiredText(path ...qname) (string, node, error) {
	c, err := n.walk(path...)
	if err != nil {
		return "", node{}, err
	}
	if c.text() == "" {
		return "", node{}, c.malformed(c.path, "required element is empty", nil)
	}
	return c.el.Text(), c, nil
}

// optionalText returns the verbatim text of an optional element, "" if absent
func (n node) optionalText(path ...qname) string {
	c, ok := n.lookup(path...)
	if !ok {
		return ""
	}
	return c.el.Text()
}

func (n node) attr(name string) string {
	return strings.TrimSpace(n.el.SelectAttrValue(name, ""))
}

func (n node) malformed(path, message string, cause error) error {
	return model.NewMalformedDocument(n.syntax, path, message, cause)
}

func (n node) decimal() (shopspring.Decimal, error) {
	d, err := shopspring.NewFromString(n.text())
	if err != nil {
		return shopspring.Decimal{}, n.malformed(n.path, "unparseable decimal", err)
	}
	return d, nil
}

// money parses the element text in currency. If the element carries a
// currencyID it must match.
func (n node) money(currency string, requireCurrencyID bool) (decimal.Money, error) {
	if id := n.attr("currencyID"); id != "" {
		if id != currency {
			return decimal.Money{}, n.malformed(n.path, "amount in currency "+id+", document currency is "+currency,
				decimal.ErrCurrencyMismatch)
		}
	} else if requireCurrencyID {
		return decimal.Money{}, n.malformed(n.path+"/@currencyID", "missing required attribute", nil)
	}
	d, err := n.decimal()
	if err != nil {
		return decimal.Money{}, err
	}
	m, err := decimal.NewMoney(d, currency)
	if err != nil {
		return decimal.Money{}, n.malformed(n.path, "invalid amount", err)
	}
	return m, nil
}

func (n node) quantity() (decimal.Quantity, error) {
	d, err := n.decimal()
	if err != nil {
		return decimal.Quantity{}, err
	}
	q, err := decimal.NewQuantity(d)
	if err != nil {
		return decimal.Quantity{}, n.malformed(n.path, "invalid quantity", err)
	}
	return q, nil
}

func (n node) taxRate() (decimal.TaxRate, error) {
	d, err := n.decimal()
	if err != nil {
		return decimal.TaxRate{}, err
	}
	r, err := decimal.NewTaxRate(d)
	if err != nil {
		return decimal.TaxRate{}, n.malformed(n.path, "invalid tax rate", err)
	}
	return r, nil
}

func (n node) position() (int, error) {
	p, err := strconv.Atoi(n.text())
	if err != nil {
		return 0, n.malformed(n.path, "line id is not an integer", err)
	}
	if p <= 0 {
		return 0, n.malformed(n.path, "line id must be positive", decimal.ErrOutOfRange)
	}
	return p, nil
}

func (n node) date(layout string) (time.Time, error) {
	t, err := time.Parse(layout, n.text())
	if err != nil {
		return time.Time{}, n.malformed(n.path, "unparseable date", err)
	}
	return t, nil
}

func (n node) taxCategory() (string, error) {
	code := n.text()
	if !model.IsTaxCategory(code) {
		return "", n.malformed(n.path, "unknown tax category "+code, nil)
	}
	return code, nil
}

func (n node) unitCode() (string, error) {
	code := n.attr("unitCode")
	if code == "" {
		return "", n.malformed(n.path+"/@unitCode", "missing required attribute", nil)
	}
	if !model.IsUnitCode(code) {
		return "", n.malformed(n.path+"/@unitCode", "invalid unit code "+code, nil)
	}
	return code, nil
}

func (n node) currency(path ...qname) (string, error) {
	_, c, err := n.requiredText(path...)
	if err != nil {
		return "", err
	}
	code := c.text()
	if err := decimal.CheckCurrency(code); err != nil {
		return "", c.malformed(c.path, "unknown currency "+code, err)
	}
	return code, nil
}

// addLine inserts a decoded line, mapping aggregate errors to decode errors
func (n node) addLine(inv *model.Invoice, li model.LineItem) error {
	if err := inv.AddLineItem(li); err != nil {
		return n.malformed(n.path, "line "+strconv.Itoa(li.Position)+" rejected", err)
	}
	return nil
}

// buyerReference maps the wire BT-10 value back to the aggregate field
func buyerReference(ref, number string) string {
	if ref == number {
		return ""
	}
	return ref
}

// moneyAt walks to a required amount element and parses it
func (n node) moneyAt(currency string, requireCurrencyID bool, path ...qname) (decimal.Money, error) {
	c, err := n.walk(path...)
	if err != nil {
		return decimal.Money{}, err
	}
	return c.money(currency, requireCurrencyID)
}

// dateAt walks to a required date element and parses it
func (n node) dateAt(layout string, path ...qname) (time.Time, error) {
	_, c, err := n.requiredText(path...)
	if err != nil {
		return time.Time{}, err
	}
	return c.date(layout)
}
