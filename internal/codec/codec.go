package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

// Built-in syntax names
const (
	SyntaxUBL = "ubl"
	SyntaxCII = "cii"
)

// UnvalidatedMarker is the comment written into documents that were
// encoded with XML validation disabled and failed validation
const UnvalidatedMarker = "unvalidated"

var (
	// ErrEncodeRejected matches every EncodeRejectedError
	ErrEncodeRejected = errors.New("encode rejected")

	// ErrUnknownSyntax is returned for a syntax name with no registration
	ErrUnknownSyntax = errors.New("unknown syntax")
)

// EncodeRejectedError carries the violations that blocked encoding
type EncodeRejectedError struct {
	Violations []validator.Violation
}

func (e *EncodeRejectedError) Error() string {
	if len(e.Violations) == 0 {
		return ErrEncodeRejected.Error()
	}
	return fmt.Sprintf("%s: %d violation(s), first: %s", ErrEncodeRejected, len(e.Violations), e.Violations[0])
}

// Is makes every EncodeRejectedError match ErrEncodeRejected
func (e *EncodeRejectedError) Is(target error) bool {
	return target == ErrEncodeRejected
}

// DecodeResult is a decoded invoice. Totals on Invoice are re-derived from
// the lines; Violations lists declared totals that disagree.
type DecodeResult struct {
	Invoice     *model.Invoice
	Violations  []validator.Violation
	Unvalidated bool
	Syntax      string
}

// Consistent reports whether the declared totals matched the lines
func (r *DecodeResult) Consistent() bool {
	return len(r.Violations) == 0
}

// Codec converts between the invoice aggregate and XRechnung XML. It is
// immutable after construction and safe for concurrent use.
type Codec struct {
	cfg       config.Settings
	validator *validator.Validator
	registry  *Registry
	logger    zerolog.Logger
}

// Option configures a Codec
type Option func(*Codec)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// WithRegistry replaces the syntax registry. The registry must not be
// modified after the codec is built.
func WithRegistry(r *Registry) Option {
	return func(c *Codec) {
		c.registry = r
	}
}

// New creates a codec holding a copy of cfg
func New(cfg config.Settings, opts ...Option) *Codec {
	c := &Codec{
		cfg:       cfg,
		validator: validator.New(cfg),
		registry:  NewRegistry(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the codec settings
func (c *Codec) Settings() config.Settings {
	return c.cfg
}

// Registry returns the syntax registry
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode serializes inv in the configured syntax
func (c *Codec) Encode(inv *model.Invoice) ([]byte, error) {
	return c.EncodeSyntax(inv, c.cfg.Syntax)
}

// EncodeSyntax serializes inv in the named syntax. An invalid invoice is
// rejected unless XML validation is disabled, in which case the output is
// annotated as unvalidated.
func (c *Codec) EncodeSyntax(inv *model.Invoice, name string) ([]byte, error) {
	syntax := c.registry.Lookup(name)
	if syntax == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyntax, name)
	}

	var comment string
	if res := c.validator.Validate(inv); !res.Valid() {
		if c.cfg.XMLValidation {
			c.logger.Debug().
				Str("invoice", inv.Number).
				Int("violations", len(res.Violations)).
				Msg("encode rejected")
			return nil, &EncodeRejectedError{Violations: res.Violations}
		}
		c.logger.Warn().
			Str("invoice", inv.Number).
			Strs("violations", res.Messages()).
			Msg("encoding invalid invoice without validation")
		comment = UnvalidatedMarker
	}

	data, err := syntax.Encode(inv, comment)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", syntax.Name(), err)
	}
	c.logger.Debug().
		Str("invoice", inv.Number).
		Str("syntax", syntax.Name()).
		Int("bytes", len(data)).
		Msg("invoice encoded")
	return data, nil
}

// Decode parses an XRechnung document of any registered syntax
func (c *Codec) Decode(data []byte) (*DecodeResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, model.NewMalformedDocument("xml", "/", "document is not well-formed", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, model.NewMalformedDocument("xml", "/", "document has no root element", nil)
	}

	syntax, err := c.registry.Detect(root)
	if err != nil {
		return nil, err
	}
	parsed, err := syntax.Decode(root)
	if err != nil {
		c.logger.Debug().Err(err).Str("syntax", syntax.Name()).Msg("decode failed")
		return nil, err
	}

	inv := parsed.Invoice
	derived, err := inv.DerivedTotals()
	if err != nil {
		return nil, model.NewMalformedDocument(syntax.Name(), rootNode(root, syntax.Name()).path, "cannot derive totals", err)
	}

	res := &DecodeResult{
		Invoice:     inv,
		Unvalidated: hasMarker(doc, root),
		Syntax:      syntax.Name(),
	}
	tol := c.cfg.TotalTolerance
	for _, chk := range []struct {
		field    string
		declared decimal.Money
		expected decimal.Money
		message  string
	}{
		{"net_amount", parsed.Declared.Net, derived.Net, "declared net amount differs from sum of line totals"},
		{"tax_amount", parsed.Declared.Tax, derived.Tax, "declared tax amount differs from sum of line taxes"},
		{"total_amount", parsed.Declared.Total, derived.Total, "declared total amount differs from net plus tax"},
		{"payable_amount", parsed.Payable, parsed.Declared.Total, "payable amount differs from declared total"},
	} {
		if !chk.declared.Amount().Sub(chk.expected.Amount()).Abs().LessThan(tol) {
			res.Violations = append(res.Violations, validator.Violation{
				Kind:     validator.KindTotalMismatch,
				Field:    chk.field,
				Expected: chk.expected.Fixed(),
				Actual:   chk.declared.Fixed(),
				Message:  chk.message,
			})
		}
	}

	inv.NetAmount = derived.Net
	inv.TaxAmount = derived.Tax
	inv.TotalAmount = derived.Total

	c.logger.Debug().
		Str("invoice", inv.Number).
		Str("syntax", res.Syntax).
		Int("lines", inv.LineItems().Len()).
		Int("violations", len(res.Violations)).
		Bool("unvalidated", res.Unvalidated).
		Msg("invoice decoded")
	return res, nil
}

func hasMarker(doc *etree.Document, root *etree.Element) bool {
	for _, tokens := range [][]etree.Token{doc.Child, root.Child} {
		for _, tok := range tokens {
			if cm, ok := tok.(*etree.Comment); ok && strings.TrimSpace(cm.Data) == UnvalidatedMarker {
				return true
			}
		}
	}
	return false
}
