package server

import (
	"github.com/rechnungswerk/einvoice/internal/confidence"
	"github.com/rechnungswerk/einvoice/internal/model"
)

// ProcessResponse is the response for process endpoints
type ProcessResponse struct {
	Method      string             `json:"method"`
	Fields      model.Fields       `json:"fields"`
	Invoice     *model.Invoice     `json:"invoice,omitempty"`
	Report      *confidence.Report `json:"report"`
	NeedsReview bool               `json:"needs_review"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// ConfidenceResponse is the response for the confidence endpoint
type ConfidenceResponse struct {
	*confidence.Report
	NeedsReview bool     `json:"needs_review"`
	LowFields   []string `json:"low_fields"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid      bool              `json:"valid"`
	Violations []model.Violation `json:"violations"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// ParseResponse is the response for the parse endpoint
type ParseResponse struct {
	Invoice    *model.Invoice    `json:"invoice"`
	Violations []model.Violation `json:"violations"`
}

// InfoResponse is the response for info endpoint
type InfoResponse struct {
	Format        string `json:"format"`
	MimeType      string `json:"mime_type"`
	Size          int    `json:"size"`
	InvoiceXML    bool   `json:"invoice_xml"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error      string            `json:"error"`
	Details    string            `json:"details,omitempty"`
	Violations []model.Violation `json:"violations,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}
