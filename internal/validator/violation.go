package validator

import (
	"fmt"
	"slices"
)

// Kind classifies a violation
type Kind string

const (
	KindMissingField     Kind = "MissingField"
	KindMissingTaxID     Kind = "MissingTaxId"
	KindInvalidTaxID     Kind = "InvalidTaxId"
	KindNegativeAmount   Kind = "NegativeAmount"
	KindCurrencyMismatch Kind = "CurrencyMismatch"
	KindTotalMismatch    Kind = "TotalMismatch"
	KindLineItemMismatch Kind = "LineItemMismatch"
	KindEmptyInvoice     Kind = "EmptyInvoice"
	KindPositionGap      Kind = "PositionGap"
	KindInvalidCode      Kind = "InvalidCode"
)

// Violation is a single failed rule. Field uses paths like
// "supplier.tax_id" or "line_items[2].line_total" (bracket holds the position).
type Violation struct {
	Kind     Kind   `json:"kind"`
	Field    string `json:"field"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	if v.Expected != "" || v.Actual != "" {
		return fmt.Sprintf("%s %s: %s (expected %s, got %s)", v.Kind, v.Field, v.Message, v.Expected, v.Actual)
	}
	return fmt.Sprintf("%s %s: %s", v.Kind, v.Field, v.Message)
}

// Result holds violations in rule order, then line order
type Result struct {
	Violations []Violation `json:"violations"`
}

// Valid reports whether no rule failed
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Has reports whether any violation has kind k
func (r Result) Has(k Kind) bool {
	return slices.ContainsFunc(r.Violations, func(v Violation) bool { return v.Kind == k })
}

// OfKind returns the violations of kind k
func (r Result) OfKind(k Kind) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}

// Messages returns one line per violation
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.String())
	}
	return out
}

// LinePath returns the field path of a line item attribute
func LinePath(position int, field string) string {
	return fmt.Sprintf("line_items[%d].%s", position, field)
}
