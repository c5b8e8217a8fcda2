package codec

import (
	"github.com/beevik/etree"

	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

// Syntax maps the invoice aggregate to one XML vocabulary
type Syntax interface {
	// Name returns the short name, e.g. "ubl"
	Name() string

	// CanDecode returns true if the syntax handles this root element
	CanDecode(root *etree.Element) bool

	// Encode serializes inv. A non-empty comment is written as the first
	// child of the root element.
	Encode(inv *model.Invoice, comment string) ([]byte, error)

	// Decode reads the document rooted at root
	Decode(root *etree.Element) (*Document, error)
}

// Document is a decoded invoice together with the totals the document declares
type Document struct {
	Invoice  *model.Invoice
	Declared model.Totals
	Payable  decimal.Money
}

// Registry holds all registered syntaxes
type Registry struct {
	syntaxes []Syntax
}

// NewRegistry creates registry with UBL and CII
func NewRegistry() *Registry {
	return &Registry{
		syntaxes: []Syntax{
			NewUBL(),
			NewCII(),
		},
	}
}

// Detect identifies the syntax from the root element namespace
func (r *Registry) Detect(root *etree.Element) (Syntax, error) {
	for _, s := range r.syntaxes {
		if s.CanDecode(root) {
			return s, nil
		}
	}
	return nil, model.NewMalformedDocument("xml", rootNode(root, "xml").path,
		"unknown root element "+root.Tag+" in namespace "+root.NamespaceURI(), nil)
}

// Register adds a custom syntax. Custom syntaxes take priority in detection
// and replace a registered syntax of the same name.
func (r *Registry) Register(s Syntax) {
	kept := make([]Syntax, 0, len(r.syntaxes)+1)
	kept = append(kept, s)
	for _, existing := range r.syntaxes {
		if existing.Name() != s.Name() {
			kept = append(kept, existing)
		}
	}
	r.syntaxes = kept
}

// Lookup returns the syntax registered under name, or nil
func (r *Registry) Lookup(name string) Syntax {
	for _, s := range r.syntaxes {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Names lists registered syntaxes in detection order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.syntaxes))
	for _, s := range r.syntaxes {
		names = append(names, s.Name())
	}
	return names
}
