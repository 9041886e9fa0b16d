// Package invoicelib provides a public API for German e-invoicing.
//
// It generates XRechnung 3.0 (UBL 2.1, EN 16931) documents from invoice
// records and scores the reliability of invoice data extracted by OCR or an
// LLM.
//
// Example usage:
//
//	xml, err := invoicelib.Generate(&invoicelib.Invoice{
//	    InvoiceNumber: "RE-2026-001",
//	    ...
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report := invoicelib.Score(invoicelib.Fields{"gross_amount": 119.0})
//	fmt.Println(report.OverallConfidence)
package invoicelib

import (
	"context"
	"io"

	"github.com/rechnungswerk/einvoice/internal/confidence"
	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

// Re-export core types for public API
type (
	Invoice          = model.Invoice
	LineItem         = model.LineItem
	Fields           = model.Fields
	Violation        = model.Violation
	Report           = confidence.Report
	FieldConfidence  = confidence.FieldConfidence
	ConsistencyCheck = confidence.ConsistencyCheck
	Level            = confidence.Level
)

// Re-export confidence levels
const (
	LevelHigh   = confidence.LevelHigh
	LevelMedium = confidence.LevelMedium
	LevelLow    = confidence.LevelLow
)

// Re-export error types
type (
	ParseError      = model.ParseError
	ValidationError = model.ValidationError
	ExtractionError = model.ExtractionError
)

// Generate validates inv and returns the XRechnung XML. Validation failures
// are returned as *ValidationError listing every violated rule.
func Generate(inv *Invoice) ([]byte, error) {
	return xrechnung.NewGenerator().Generate(inv)
}

// Validate returns the violated business rules of inv; empty means valid
func Validate(inv *Invoice) []Violation {
	return xrechnung.Validate(inv)
}

// Parse reads an XRechnung (UBL 2.1) or ZUGFeRD / Factur-X (CII) invoice
func Parse(r io.Reader) (*Invoice, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FormatUnknown, "content", "failed to read input", err)
	}
	return xmlparser.Parse(context.Background(), data)
}

// Score rates extracted invoice fields
func Score(fields Fields) *Report {
	return confidence.NewScorer().Score(fields)
}

// CoreFields lists the fields that count double in the overall confidence
func CoreFields() []string {
	return confidence.CoreFields()
}
