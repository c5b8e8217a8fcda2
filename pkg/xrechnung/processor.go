package xrechnung

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

// Processor encodes, decodes and validates invoices with one set of settings.
// It is safe for concurrent use.
type Processor struct {
	settings  config.Settings
	codec     *codec.Codec
	validator *validator.Validator
}

// NewProcessor creates a processor holding a copy of settings
func NewProcessor(settings Settings) *Processor {
	return &Processor{
		settings:  settings,
		codec:     codec.New(settings),
		validator: validator.New(settings),
	}
}

// NewDefaultProcessor creates a processor with the built-in settings
func NewDefaultProcessor() *Processor {
	return NewProcessor(config.Default())
}

// LoadSettings resolves settings from xrechnung.* files, .env and
// XRECHNUNG_* variables
func LoadSettings(opts ...Option) (Settings, error) {
	return config.Load(opts...)
}

// Settings returns the processor settings
func (p *Processor) Settings() Settings {
	return p.settings
}

// Encode serializes inv in the configured syntax
func (p *Processor) Encode(inv *Invoice) ([]byte, error) {
	return p.codec.Encode(inv)
}

// EncodeSyntax serializes inv as ubl or cii
func (p *Processor) EncodeSyntax(inv *Invoice, syntax string) ([]byte, error) {
	return p.codec.EncodeSyntax(inv, syntax)
}

// Decode reads an XRechnung document of either syntax
func (p *Processor) Decode(ctx context.Context, r io.Reader) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return p.codec.Decode(data)
}

// DecodeJSON reads the JSON invoice form. Lines without a tax rate use the
// configured default.
func (p *Processor) DecodeJSON(r io.Reader) (*Invoice, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return model.DecodeJSON(data, p.settings.DefaultTaxRate)
}

// Validate checks inv against the configured rules
func (p *Processor) Validate(inv *Invoice) []Violation {
	return p.validator.Validate(inv).Violations
}

// Convert decodes a document and re-encodes it in the target syntax
func (p *Processor) Convert(ctx context.Context, r io.Reader, syntax string) ([]byte, error) {
	res, err := p.Decode(ctx, r)
	if err != nil {
		return nil, err
	}
	if !res.Consistent() {
		return nil, &EncodeRejectedError{Violations: res.Violations}
	}
	return p.codec.EncodeSyntax(res.Invoice, syntax)
}

// DecodeBatch decodes multiple documents concurrently. Results keep the
// input order; the first error is returned alongside the partial results.
func (p *Processor) DecodeBatch(ctx context.Context, inputs [][]byte) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, data []byte) {
			result, err := p.Decode(ctx, bytes.NewReader(data))
			if err != nil {
				errCh <- fmt.Errorf("document %d: %w", idx, err)
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}
