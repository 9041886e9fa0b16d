package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rechnungswerk/einvoice/internal/confidence"
	"github.com/rechnungswerk/einvoice/internal/logger"
	"github.com/rechnungswerk/einvoice/internal/metrics"
	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

// Format is the detected input format
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatPDF
	FormatImage
	FormatJSON
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatPDF:
		return "pdf"
	case FormatImage:
		return "image"
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// ExtractionMethod tells how the fields of a result were obtained
type ExtractionMethod string

const (
	MethodXML       ExtractionMethod = "xml"
	MethodZUGFeRD   ExtractionMethod = "zugferd"
	MethodLLMText   ExtractionMethod = "llm_text"
	MethodLLMVision ExtractionMethod = "llm_vision"
	MethodFields    ExtractionMethod = "fields"
)

// Defaults
const (
	DefaultReviewThreshold = 80.0
	DefaultConcurrency     = 4
)

// FieldExtractor turns unstructured input into extracted fields
type FieldExtractor interface {
	ExtractFromText(ctx context.Context, text string) (model.Fields, error)
	ExtractFromImage(ctx context.Context, image []byte, mimeType string) (model.Fields, error)
}

// Result is the outcome of processing one input. Error is set instead of
// returned so batch processing can report per-input failures.
type Result struct {
	Fields      model.Fields
	Invoice     *model.Invoice
	Report      *confidence.Report
	Method      ExtractionMethod
	NeedsReview bool
	Warnings    []string
	Error       error
}

// Pipeline detects input formats, extracts fields and scores them
type Pipeline struct {
	extractor       FieldExtractor
	scorer          *confidence.Scorer
	reviewThreshold float64
	concurrency     int
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithLLMExtractor enables text and image extraction
func WithLLMExtractor(e FieldExtractor) Option {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

// WithReviewThreshold sets the overall confidence below which results need review
func WithReviewThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		p.reviewThreshold = threshold
	}
}

// WithConcurrency bounds ProcessBatch parallelism
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records every scored result
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a new processing pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		scorer:          confidence.NewScorer(),
		reviewThreshold: DefaultReviewThreshold,
		concurrency:     DefaultConcurrency,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasLLM reports whether an extractor is configured
func (p *Pipeline) HasLLM() bool {
	return p.extractor != nil
}

// ReviewThreshold returns the configured review threshold
func (p *Pipeline) ReviewThreshold() float64 {
	return p.reviewThreshold
}

// Process detects the format of data and dispatches to the matching step
func (p *Pipeline) Process(ctx context.Context, data []byte) *Result {
	switch DetectFormat(data) {
	case FormatXML:
		return p.ProcessXMLBytes(ctx, data)
	case FormatPDF:
		return p.ProcessPDF(ctx, data)
	case FormatImage:
		return p.ProcessImage(ctx, data, DetectMimeType(data))
	case FormatJSON:
		return p.ProcessJSON(ctx, data)
	case FormatText:
		return p.ProcessText(ctx, string(data))
	default:
		return &Result{Error: model.NewParseError(model.FormatUnknown, "content", "unsupported input format", nil)}
	}
}

// ProcessXML reads a UBL invoice and scores its fields
func (p *Pipeline) ProcessXML(ctx context.Context, r io.Reader) *Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{Method: MethodXML, Error: model.NewParseError(model.FormatUBL, "content", "failed to read content", err)}
	}
	return p.ProcessXMLBytes(ctx, data)
}

// ProcessXMLBytes is ProcessXML over an in-memory UBL or CII document
func (p *Pipeline) ProcessXMLBytes(ctx context.Context, data []byte) *Result {
	result := &Result{Method: MethodXML}

	inv, err := xmlparser.Parse(ctx, data)
	if err != nil {
		result.Error = err
		return result
	}
	result.Invoice = inv
	result.Fields = inv.Fields()

	for _, v := range xrechnung.Validate(inv) {
		result.Warnings = append(result.Warnings, v.Message)
	}
	if xrechnung.MixedTaxRates(inv) {
		result.Warnings = append(result.Warnings, "line items carry different tax rates; document tax total uses a single rate")
	}

	return p.finish(ctx, result)
}

// ProcessPDF reads the invoice XML embedded in a ZUGFeRD / Factur-X PDF
func (p *Pipeline) ProcessPDF(ctx context.Context, data []byte) *Result {
	xml, err := zugferd.ExtractXML(bytes.NewReader(data))
	if err != nil {
		return &Result{Method: MethodZUGFeRD, Error: err}
	}

	result := p.ProcessXMLBytes(ctx, xml)
	result.Method = MethodZUGFeRD
	return result
}

// ProcessText extracts fields from OCR text with the LLM
func (p *Pipeline) ProcessText(ctx context.Context, text string) *Result {
	result := &Result{Method: MethodLLMText}
	if p.extractor == nil {
		result.Error = model.NewExtractionError(string(MethodLLMText), "LLM extractor not configured", nil)
		return result
	}

	fields, err := p.extractor.ExtractFromText(ctx, text)
	if err != nil {
		result.Error = err
		return result
	}
	return p.finishFields(ctx, result, fields)
}

// ProcessImage extracts fields from an invoice image with the vision model
func (p *Pipeline) ProcessImage(ctx context.Context, image []byte, mimeType string) *Result {
	result := &Result{Method: MethodLLMVision}
	if p.extractor == nil {
		result.Error = model.NewExtractionError(string(MethodLLMVision), "LLM extractor not configured", nil)
		return result
	}

	fields, err := p.extractor.ExtractFromImage(ctx, image, mimeType)
	if err != nil {
		result.Error = err
		return result
	}
	return p.finishFields(ctx, result, fields)
}

// ProcessJSON scores a JSON object of already extracted fields
func (p *Pipeline) ProcessJSON(ctx context.Context, data []byte) *Result {
	var fields model.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return &Result{Method: MethodFields, Error: model.NewParseError(model.FormatJSON, "content", "invalid JSON object", err)}
	}
	return p.ProcessFields(ctx, fields)
}

// ProcessFields scores fields extracted elsewhere
func (p *Pipeline) ProcessFields(ctx context.Context, fields model.Fields) *Result {
	return p.finishFields(ctx, &Result{Method: MethodFields}, fields)
}

// ProcessBatch processes inputs with bounded parallelism. Results keep the
// input order; per-input failures are reported in Result.Error. The returned
// error is only set when ctx ends before all inputs were started.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs [][]byte) ([]*Result, error) {
	results := make([]*Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, data := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = &Result{Error: err}
				return err
			}
			results[i] = p.Process(gctx, data)
			return nil
		})
	}

	return results, g.Wait()
}

// finishFields attaches a typed invoice when the fields decode into one
func (p *Pipeline) finishFields(ctx context.Context, result *Result, fields model.Fields) *Result {
	if fields == nil {
		fields = model.Fields{}
	}
	result.Fields = fields

	if inv, err := model.DecodeInvoice(fields); err == nil {
		result.Invoice = inv
	} else {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fields do not form a typed invoice: %v", err))
	}
	return p.finish(ctx, result)
}

func (p *Pipeline) finish(ctx context.Context, result *Result) *Result {
	result.Report = p.scorer.Score(result.Fields)
	result.NeedsReview = result.Report.NeedsReview(p.reviewThreshold)

	p.metrics.ObserveScore(string(result.Method), result.Report.OverallConfidence, result.NeedsReview)
	p.logger.DebugContext(ctx, "scored invoice record",
		"method", result.Method,
		"overall", result.Report.OverallConfidence,
		"completeness", result.Report.Completeness,
		"needs_review", result.NeedsReview,
		"warnings", len(result.Warnings),
	)
	return result
}

// DetectFormat detects the input format from magic bytes and leading characters
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}

	if isImage(data) {
		return FormatImage
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return FormatPDF
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")))
	switch {
	case len(trimmed) == 0:
		return FormatUnknown
	case trimmed[0] == '<':
		return FormatXML
	case trimmed[0] == '{':
		return FormatJSON
	case utf8.Valid(trimmed):
		return FormatText
	default:
		return FormatUnknown
	}
}

func isImage(data []byte) bool {
	return DetectMimeType(data) != "application/octet-stream"
}

// DetectMimeType returns the image MIME type of data, or
// application/octet-stream for non-image content
func DetectMimeType(data []byte) string {
	switch {
	case len(data) >= 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 4 && data[0] == 0x49 && data[1] == 0x49 && data[2] == 0x2A && data[3] == 0x00:
		return "image/tiff"
	case len(data) >= 4 && data[0] == 0x4D && data[1] == 0x4D && data[2] == 0x00 && data[3] == 0x2A:
		return "image/tiff"
	case len(data) >= 6 && string(data[:6]) == "GIF89a", len(data) >= 6 && string(data[:6]) == "GIF87a":
		return "image/gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
