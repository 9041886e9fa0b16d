// Package xml reads structured e-invoices in the two EN 16931 syntaxes:
// UBL 2.1 (XRechnung) and UN/CEFACT CII (ZUGFeRD / Factur-X).
package xml

import (
	"bytes"
	"context"
	"io"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// Adapter parses one XML syntax into Invoice
type Adapter interface {
	// Parse parses XML content into Invoice
	Parse(ctx context.Context, r io.Reader) (*model.Invoice, error)

	// CanParse returns true if adapter can handle this content
	CanParse(content []byte) bool

	// Syntax returns the syntax this adapter reads
	Syntax() model.Format
}

// Registry holds all registered adapters
type Registry struct {
	adapters []Adapter
	fallback Adapter
}

// NewRegistry creates registry with all adapters. Content no adapter claims
// is handed to the UBL adapter, which reports why it is not an invoice.
func NewRegistry() *Registry {
	ubl := NewUBLAdapter()
	return &Registry{
		adapters: []Adapter{
			ubl,
			NewCIIAdapter(),
		},
		fallback: ubl,
	}
}

// Detect identifies the syntax of XML content
func (r *Registry) Detect(content []byte) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.CanParse(content) {
			return a, true
		}
	}
	return nil, false
}

// Parse parses XML using appropriate adapter
func (r *Registry) Parse(ctx context.Context, content []byte) (*model.Invoice, error) {
	adapter, ok := r.Detect(content)
	if !ok {
		adapter = r.fallback
	}
	return adapter.Parse(ctx, bytes.NewReader(content))
}

// RegisterAdapter adds a custom adapter to the registry
func (r *Registry) RegisterAdapter(a Adapter) {
	// Add at the beginning so custom adapters take priority
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// GetAdapter returns adapter for a specific syntax
func (r *Registry) GetAdapter(syntax model.Format) Adapter {
	for _, a := range r.adapters {
		if a.Syntax() == syntax {
			return a
		}
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Parse reads a UBL or CII invoice with the default registry
func Parse(ctx context.Context, content []byte) (*model.Invoice, error) {
	return defaultRegistry.Parse(ctx, content)
}

// DetectSyntax reports the syntax of content, FormatUnknown if none matches
func DetectSyntax(content []byte) model.Format {
	if a, ok := defaultRegistry.Detect(content); ok {
		return a.Syntax()
	}
	return model.FormatUnknown
}
