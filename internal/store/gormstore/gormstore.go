// Package gormstore implements store.Store on GORM with postgres or sqlite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/store"
)

const (
	connectAttempts = 5
	connectWait     = 2 * time.Second
)

// Store persists invoices in two tables, invoices and invoice_lines.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema. postgres:// URLs and
// key=value DSNs use the postgres driver; anything else is a sqlite path.
// Postgres connections are retried while the server starts.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	if !isPostgres(dsn) {
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return New(ctx, db)
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectWait):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open postgres after %d attempts: %w", connectAttempts, err)
	}
	return New(ctx, db)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// New wraps an open connection and auto-migrates the invoice tables.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&invoiceRecord{}, &lineRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *Store) Load(ctx context.Context, number string) (*model.Invoice, error) {
	var rec invoiceRecord
	err := s.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Omit("xml_content").
		Where("number = ?", number).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("invoice %q: %w", number, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice %q: %w", number, err)
	}
	return rec.invoice()
}

// Save upserts the header by number and replaces all of its lines in one
// transaction.
func (s *Store) Save(ctx context.Context, inv *model.Invoice) error {
	return s.save(ctx, inv, nil)
}

// SaveWithDocument is Save that also stores the imported XML.
func (s *Store) SaveWithDocument(ctx context.Context, inv *model.Invoice, doc store.Document) error {
	return s.save(ctx, inv, &doc)
}

func (s *Store) save(ctx context.Context, inv *model.Invoice, doc *store.Document) error {
	if inv.Number == "" {
		return &model.AggregateError{Op: "save", Field: "invoice_number", Kind: model.ErrMissingValue}
	}
	rec := recordOf(inv)
	if doc != nil {
		rec.XMLSyntax = doc.Syntax
		rec.XMLContent = string(doc.Data)
	}
	lines := rec.Lines
	rec.Lines = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing invoiceRecord
		err := tx.Select("id", "created_at").Where("number = ?", rec.Number).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			if err := tx.Where("invoice_id = ?", rec.ID).Delete(&lineRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Save(&rec).Error; err != nil {
				return err
			}
		}

		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].InvoiceID = rec.ID
		}
		return tx.Create(&lines).Error
	})
	if err != nil {
		return fmt.Errorf("save invoice %q: %w", inv.Number, err)
	}
	return nil
}

// Document returns the XML kept by SaveWithDocument. A later Save clears it.
func (s *Store) Document(ctx context.Context, number string) (store.Document, error) {
	var rec invoiceRecord
	err := s.db.WithContext(ctx).
		Select("xml_syntax", "xml_content").
		Where("number = ?", number).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && rec.XMLContent == "") {
		return store.Document{}, fmt.Errorf("document for invoice %q: %w", number, model.ErrNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("load document %q: %w", number, err)
	}
	return store.Document{Syntax: rec.XMLSyntax, Data: []byte(rec.XMLContent)}, nil
}

func (s *Store) List(ctx context.Context, f store.Filter) ([]*model.Invoice, error) {
	q := s.db.WithContext(ctx).Preload("Lines", orderedLines).Omit("xml_content")
	if f.Supplier != "" {
		q = q.Where("LOWER(supplier_name) LIKE ?", "%"+strings.ToLower(f.Supplier)+"%")
	}
	if !f.From.IsZero() {
		q = q.Where("invoice_date >= ?", model.DateOf(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("invoice_date <= ?", model.DateOf(f.To))
	}

	var recs []invoiceRecord
	if err := q.Order("invoice_date DESC").Order("created_at DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	out := make([]*model.Invoice, 0, len(recs))
	for _, rec := range recs {
		inv, err := rec.invoice()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
