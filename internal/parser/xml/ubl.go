package xml

import (
	"context"
	"io"

	"github.com/rechnungswerk/einvoice/internal/model"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

// UBLAdapter parses UBL 2.1 invoices such as XRechnung
type UBLAdapter struct{}

// NewUBLAdapter creates a new UBL adapter
func NewUBLAdapter() *UBLAdapter {
	return &UBLAdapter{}
}

// Syntax returns the syntax this adapter reads
func (a *UBLAdapter) Syntax() model.Format {
	return model.FormatUBL
}

// CanParse checks for the UBL invoice namespace
func (a *UBLAdapter) CanParse(content []byte) bool {
	return xrechnung.CanParse(content)
}

// Parse parses UBL XML into Invoice
func (a *UBLAdapter) Parse(_ context.Context, r io.Reader) (*model.Invoice, error) {
	return xrechnung.Parse(r)
}
