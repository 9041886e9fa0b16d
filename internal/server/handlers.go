package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/processor"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

const (
	xmlTimeout = 30 * time.Second
	llmTimeout = 2 * time.Minute

	headerWarning = "X-RechnungsWerk-Warning"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"llm":    s.pipeline.HasLLM(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice JSON", Details: err.Error()})
		return
	}

	out, err := s.generator.Generate(&inv)
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	s.metrics.IncrementGenerated()
	s.logger.InfoContext(c.Request.Context(), "xrechnung generated",
		"request_id", c.GetString(ctxRequestID),
		"invoice_number", inv.InvoiceNumber,
		"bytes", len(out),
	)

	if xrechnung.MixedTaxRates(&inv) {
		c.Header(headerWarning, "mixed line tax rates; single TaxSubtotal emitted")
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", out)
}

func (s *Server) handleValidate(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice JSON", Details: err.Error()})
		return
	}

	violations := xrechnung.Validate(&inv)
	for _, v := range violations {
		s.metrics.IncrementValidationFailure(v.Rule)
	}

	var warnings []string
	if xrechnung.MixedTaxRates(&inv) {
		warnings = append(warnings, "line items carry different tax rates; document tax total uses a single rate")
	}

	if violations == nil {
		violations = []model.Violation{}
	}
	c.JSON(http.StatusOK, ValidationResponse{
		Valid:      len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
	})
}

func (s *Server) handleParse(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	inv, err := xmlparser.Parse(c.Request.Context(), body)
	if err != nil {
		s.respondError(c, err, nil)
		return
	}

	violations := xrechnung.Validate(inv)
	if violations == nil {
		violations = []model.Violation{}
	}
	c.JSON(http.StatusOK, ParseResponse{Invoice: inv, Violations: violations})
}

func (s *Server) handleConfidence(c *gin.Context) {
	var fields model.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid fields JSON", Details: err.Error()})
		return
	}

	report := s.scorer.Score(fields)
	threshold := s.pipeline.ReviewThreshold()
	needsReview := report.NeedsReview(threshold)
	s.metrics.ObserveScore(string(processor.MethodFields), report.OverallConfidence, needsReview)

	lowFields := report.LowFields()
	if lowFields == nil {
		lowFields = []string{}
	}
	c.JSON(http.StatusOK, ConfidenceResponse{
		Report:      report,
		NeedsReview: needsReview,
		LowFields:   lowFields,
	})
}

func (s *Server) handleProcessXML(c *gin.Context) {
	s.process(c, xmlTimeout, func(ctx context.Context, body []byte) *processor.Result {
		return s.pipeline.ProcessXMLBytes(ctx, body)
	})
}

func (s *Server) handleProcessPDF(c *gin.Context) {
	s.process(c, xmlTimeout, func(ctx context.Context, body []byte) *processor.Result {
		return s.pipeline.ProcessPDF(ctx, body)
	})
}

func (s *Server) handleProcessImage(c *gin.Context) {
	if !s.requireLLM(c) {
		return
	}

	// Get content type
	contentType := c.ContentType()
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ""
	}

	s.process(c, llmTimeout, func(ctx context.Context, body []byte) *processor.Result {
		mimeType := contentType
		if mimeType == "" {
			mimeType = processor.DetectMimeType(body)
		}
		return s.pipeline.ProcessImage(ctx, body, mimeType)
	})
}

func (s *Server) handleProcessText(c *gin.Context) {
	if !s.requireLLM(c) {
		return
	}
	s.process(c, llmTimeout, func(ctx context.Context, body []byte) *processor.Result {
		return s.pipeline.ProcessText(ctx, string(body))
	})
}

func (s *Server) handleProcessAuto(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	switch processor.DetectFormat(body) {
	case processor.FormatUnknown:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported file format"})
		return
	case processor.FormatImage, processor.FormatText:
		if !s.requireLLM(c) {
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
	defer cancel()
	s.respondResult(c, s.pipeline.Process(ctx, body))
}

func (s *Server) handleInfo(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	format := processor.DetectFormat(body)
	resp := InfoResponse{
		Format:   format.String(),
		MimeType: mimeType(format, body),
		Size:     len(body),
	}

	switch format {
	case processor.FormatXML:
		if inv, err := xmlparser.Parse(c.Request.Context(), body); err == nil {
			resp.InvoiceXML = true
			resp.InvoiceNumber = inv.InvoiceNumber
		}
	case processor.FormatPDF:
		if xml, err := zugferd.ExtractXML(bytes.NewReader(body)); err == nil {
			resp.InvoiceXML = true
			if inv, err := xmlparser.Parse(c.Request.Context(), xml); err == nil {
				resp.InvoiceNumber = inv.InvoiceNumber
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Helper functions

func (s *Server) process(c *gin.Context, timeout time.Duration, fn func(context.Context, []byte) *processor.Result) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	s.respondResult(c, fn(ctx, body))
}

func (s *Server) respondResult(c *gin.Context, result *processor.Result) {
	if result.Error != nil {
		s.respondError(c, result.Error, result.Warnings)
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Method:      string(result.Method),
		Fields:      result.Fields,
		Invoice:     result.Invoice,
		Report:      result.Report,
		NeedsReview: result.NeedsReview,
		Warnings:    result.Warnings,
	})
}

// respondError maps domain errors: invalid or unreadable invoices are 422,
// everything else is a server error.
func (s *Server) respondError(c *gin.Context, err error, warnings []string) {
	var (
		validationErr *model.ValidationError
		parseErr      *model.ParseError
		extractionErr *model.ExtractionError
	)

	switch {
	case errors.As(err, &validationErr):
		for _, v := range validationErr.Violations {
			s.metrics.IncrementValidationFailure(v.Rule)
		}
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "invoice validation failed",
			Details:    validationErr.Error(),
			Violations: validationErr.Violations,
			Warnings:   warnings,
		})
	case errors.As(err, &parseErr), errors.As(err, &extractionErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Warnings: warnings})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "processing timed out"})
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"request_id", c.GetString(ctxRequestID),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) requireLLM(c *gin.Context) bool {
	if s.pipeline.HasLLM() {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "LLM extraction unavailable",
		Details: "no LLM backend configured on server",
	})
	return false
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

func mimeType(format processor.Format, body []byte) string {
	switch format {
	case processor.FormatXML:
		return "application/xml"
	case processor.FormatPDF:
		return "application/pdf"
	case processor.FormatJSON:
		return "application/json"
	case processor.FormatText:
		return "text/plain"
	default:
		return processor.DetectMimeType(body)
	}
}
