package server

import (
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

// InvoiceSummary is one entry of the list endpoint
type InvoiceSummary struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	SupplierName  string `json:"supplier_name"`
	BuyerName     string `json:"buyer_name"`
	TotalAmount   string `json:"total_amount"`
	Currency      string `json:"currency"`
}

// ListResponse is the response for GET /api/v1/invoices
type ListResponse struct {
	Invoices []InvoiceSummary `json:"invoices"`
}

// InvoiceResponse wraps a stored or decoded invoice
type InvoiceResponse struct {
	Invoice     *model.Invoice        `json:"invoice"`
	Syntax      string                `json:"syntax,omitempty"`
	Unvalidated bool                  `json:"unvalidated,omitempty"`
	Violations  []validator.Violation `json:"violations,omitempty"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid       bool                  `json:"valid"`
	Syntax      string                `json:"syntax"`
	Unvalidated bool                  `json:"unvalidated,omitempty"`
	Violations  []validator.Violation `json:"violations"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error      string                `json:"error"`
	Details    string                `json:"details,omitempty"`
	Path       string                `json:"path,omitempty"`
	Violations []validator.Violation `json:"violations,omitempty"`
}

func summaryOf(inv *model.Invoice) InvoiceSummary {
	return InvoiceSummary{
		InvoiceNumber: inv.Number,
		InvoiceDate:   inv.Date.Format("2006-01-02"),
		SupplierName:  inv.Supplier.Name,
		BuyerName:     inv.Buyer.Name,
		TotalAmount:   inv.TotalAmount.Fixed(),
		Currency:      inv.Currency,
	}
}
