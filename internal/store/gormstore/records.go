package gormstore

import (
	"fmt"
	"time"

	"github.com/rezonia/xrechnung/internal/decimal"
	"github.com/rezonia/xrechnung/internal/model"
)

// invoiceRecord is the persisted header row. Decimals are stored as text so
// that both drivers round-trip them exactly.
type invoiceRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Number         string    `gorm:"size:64;uniqueIndex;not null"`
	InvoiceDate    time.Time `gorm:"index;not null"`
	DueDate        *time.Time
	BuyerReference string `gorm:"size:200"`
	Note           string `gorm:"type:text"`

	SupplierName  string `gorm:"size:200;index;not null"`
	SupplierTaxID string `gorm:"size:20"`
	BuyerName     string `gorm:"size:200;not null"`
	BuyerTaxID    string `gorm:"size:20"`

	Currency    string `gorm:"size:3;not null"`
	NetAmount   string `gorm:"size:32;not null"`
	TaxAmount   string `gorm:"size:32;not null"`
	TotalAmount string `gorm:"size:32;not null"`

	// XMLContent is the imported document, empty for invoices created as JSON
	XMLSyntax  string `gorm:"size:16"`
	XMLContent string `gorm:"type:text"`

	Lines []lineRecord `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

func (invoiceRecord) TableName() string { return "invoices" }

type lineRecord struct {
	ID          uint   `gorm:"primaryKey"`
	InvoiceID   uint   `gorm:"uniqueIndex:idx_invoice_line_position;not null"`
	Position    int    `gorm:"uniqueIndex:idx_invoice_line_position;not null"`
	Description string `gorm:"type:text;not null"`
	Quantity    string `gorm:"size:32;not null"`
	UnitCode    string `gorm:"size:3;not null"`
	UnitPrice   string `gorm:"size:32;not null"`
	LineTotal   string `gorm:"size:32;not null"`
	TaxRate     string `gorm:"size:8;not null"`
	TaxCategory string `gorm:"size:2;not null"`
}

func (lineRecord) TableName() string { return "invoice_lines" }

func recordOf(inv *model.Invoice) invoiceRecord {
	rec := invoiceRecord{
		Number:         inv.Number,
		InvoiceDate:    model.DateOf(inv.Date),
		BuyerReference: inv.BuyerReference,
		Note:           inv.Note,
		SupplierName:   inv.Supplier.Name,
		SupplierTaxID:  inv.Supplier.TaxID,
		BuyerName:      inv.Buyer.Name,
		BuyerTaxID:     inv.Buyer.TaxID,
		Currency:       inv.Currency,
		NetAmount:      inv.NetAmount.Fixed(),
		TaxAmount:      inv.TaxAmount.Fixed(),
		TotalAmount:    inv.TotalAmount.Fixed(),
	}
	if !inv.DueDate.IsZero() {
		due := model.DateOf(inv.DueDate)
		rec.DueDate = &due
	}
	for _, li := range inv.LineItems().All() {
		rec.Lines = append(rec.Lines, lineRecord{
			Position:    li.Position,
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			UnitCode:    li.UnitCode,
			UnitPrice:   li.UnitPrice.Fixed(),
			LineTotal:   li.LineTotal.Fixed(),
			TaxRate:     li.TaxRate.String(),
			TaxCategory: li.TaxCategory,
		})
	}
	return rec
}

// invoice rebuilds the aggregate. Stored totals are kept as stored, not
// recomputed.
func (r invoiceRecord) invoice() (*model.Invoice, error) {
	inv, err := model.NewInvoice(r.Number, r.InvoiceDate, r.Currency)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", r.Number, err)
	}
	if r.DueDate != nil {
		inv.DueDate = model.DateOf(*r.DueDate)
	}
	inv.BuyerReference = r.BuyerReference
	inv.Note = r.Note
	inv.Supplier = model.Party{Name: r.SupplierName, TaxID: r.SupplierTaxID}
	inv.Buyer = model.Party{Name: r.BuyerName, TaxID: r.BuyerTaxID}

	if inv.NetAmount, err = decimal.ParseMoney(r.NetAmount, r.Currency); err != nil {
		return nil, fmt.Errorf("invoice %s net amount: %w", r.Number, err)
	}
	if inv.TaxAmount, err = decimal.ParseMoney(r.TaxAmount, r.Currency); err != nil {
		return nil, fmt.Errorf("invoice %s tax amount: %w", r.Number, err)
	}
	if inv.TotalAmount, err = decimal.ParseMoney(r.TotalAmount, r.Currency); err != nil {
		return nil, fmt.Errorf("invoice %s total amount: %w", r.Number, err)
	}

	for _, l := range r.Lines {
		item, err := l.lineItem(r.Currency)
		if err != nil {
			return nil, fmt.Errorf("invoice %s line %d: %w", r.Number, l.Position, err)
		}
		if err := inv.AddLineItem(item); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", r.Number, err)
		}
	}
	return inv, nil
}

func (l lineRecord) lineItem(currency string) (model.LineItem, error) {
	qty, err := decimal.ParseQuantity(l.Quantity)
	if err != nil {
		return model.LineItem{}, err
	}
	price, err := decimal.ParseMoney(l.UnitPrice, currency)
	if err != nil {
		return model.LineItem{}, err
	}
	total, err := decimal.ParseMoney(l.LineTotal, currency)
	if err != nil {
		return model.LineItem{}, err
	}
	rate, err := decimal.ParseTaxRate(l.TaxRate)
	if err != nil {
		return model.LineItem{}, err
	}
	return model.LineItem{
		Position:    l.Position,
		Description: l.Description,
		Quantity:    qty,
		UnitCode:    l.UnitCode,
		UnitPrice:   price,
		LineTotal:   total,
		TaxRate:     rate,
		TaxCategory: l.TaxCategory,
	}, nil
}
