// Package store persists invoice aggregates.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rezonia/xrechnung/internal/model"
)

// Store loads and saves invoices by number. Implementations are safe for
// concurrent use.
type Store interface {
	// Load returns the invoice or an error wrapping model.ErrNotFound.
	Load(ctx context.Context, number string) (*model.Invoice, error)
	// Save inserts or replaces the invoice with the same number. A document
	// kept for a replaced invoice is dropped.
	Save(ctx context.Context, inv *model.Invoice) error
	// SaveWithDocument is Save that also keeps the XML the invoice was
	// imported from.
	SaveWithDocument(ctx context.Context, inv *model.Invoice, doc Document) error
	// Document returns the kept XML or an error wrapping model.ErrNotFound.
	Document(ctx context.Context, number string) (Document, error)
	// List returns matching invoices, newest invoice date first, then most
	// recently created first.
	List(ctx context.Context, f Filter) ([]*model.Invoice, error)
}

// Document is an imported XML document, kept byte for byte
type Document struct {
	Syntax string
	Data   []byte
}

// Filter narrows List. Zero fields match everything; From and To are
// inclusive calendar dates.
type Filter struct {
	Supplier string
	From     time.Time
	To       time.Time
}

// Match reports whether inv passes the filter. Supplier matches as a
// case-insensitive substring of the supplier name.
func (f Filter) Match(inv *model.Invoice) bool {
	date := model.DateOf(inv.Date)
	if f.Supplier != "" && !strings.Contains(strings.ToLower(inv.Supplier.Name), strings.ToLower(f.Supplier)) {
		return false
	}
	if !f.From.IsZero() && date.Before(model.DateOf(f.From)) {
		return false
	}
	if !f.To.IsZero() && date.After(model.DateOf(f.To)) {
		return false
	}
	return true
}

type entry struct {
	inv     *model.Invoice
	doc     *Document
	created uint64
}

// Memory is an in-memory Store. Invoices are cloned on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	byNumber map[string]*entry
	seq      uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byNumber: make(map[string]*entry)}
}

func (m *Memory) Load(_ context.Context, number string) (*model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byNumber[number]
	if !ok {
		return nil, notFound(number)
	}
	return e.inv.Clone(), nil
}

func (m *Memory) Save(_ context.Context, inv *model.Invoice) error {
	return m.save(inv, nil)
}

func (m *Memory) SaveWithDocument(_ context.Context, inv *model.Invoice, doc Document) error {
	doc.Data = slices.Clone(doc.Data)
	return m.save(inv, &doc)
}

func (m *Memory) save(inv *model.Invoice, doc *Document) error {
	if inv.Number == "" {
		return &model.AggregateError{Op: "save", Field: "invoice_number", Kind: model.ErrMissingValue}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byNumber[inv.Number]
	if !ok {
		m.seq++
		e = &entry{created: m.seq}
		m.byNumber[inv.Number] = e
	}
	e.inv = inv.Clone()
	e.doc = doc
	return nil
}

func (m *Memory) Document(_ context.Context, number string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byNumber[number]
	if !ok || e.doc == nil {
		return Document{}, fmt.Errorf("document for %w", notFound(number))
	}
	return Document{Syntax: e.doc.Syntax, Data: slices.Clone(e.doc.Data)}, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]*model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*entry, 0, len(m.byNumber))
	for _, e := range m.byNumber {
		if f.Match(e.inv) {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(a, b *entry) int {
		if c := model.DateOf(b.inv.Date).Compare(model.DateOf(a.inv.Date)); c != 0 {
			return c
		}
		return cmp.Compare(b.created, a.created)
	})

	out := make([]*model.Invoice, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.inv.Clone())
	}
	return out, nil
}

func notFound(number string) error {
	return fmt.Errorf("invoice %q: %w", number, model.ErrNotFound)
}

var _ Store = (*Memory)(nil)
