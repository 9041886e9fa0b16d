package invoicelib

import (
	"context"
	"io"

	"github.com/rechnungswerk/einvoice/internal/llm"
	"github.com/rechnungswerk/einvoice/internal/processor"
)

// Extractor turns unstructured sources into extracted fields
type Extractor interface {
	// ExtractFromText extracts invoice fields from OCR text
	ExtractFromText(ctx context.Context, text string) (Fields, error)

	// ExtractFromImage extracts invoice fields from an invoice image
	ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (Fields, error)
}

// ExtractionResult represents extraction result with metadata
type ExtractionResult struct {
	Invoice     *Invoice
	Fields      Fields
	Report      *Report
	Method      string
	Warnings    []string
	NeedsReview bool
}

// Pipeline processes invoices through the extraction chain
type Pipeline interface {
	// Process processes input and returns extraction result
	Process(ctx context.Context, r io.Reader) (*ExtractionResult, error)

	// ProcessBatch processes multiple inputs
	ProcessBatch(ctx context.Context, inputs []io.Reader) ([]*ExtractionResult, error)
}

// PipelineOptions configures pipeline behavior
type PipelineOptions struct {
	// Below this overall confidence, flag for review (default: 80)
	ReviewThreshold float64

	// LLM Configuration
	LLMAPIKey      string // API key (env: LLM_API_KEY), unused by Ollama
	LLMBaseURL     string // Base URL (env: LLM_BASE_URL)
	LLMModel       string // Text extraction model (env: LLM_MODEL)
	LLMVisionModel string // Vision/image extraction model (env: LLM_VISION_MODEL)

	// Feature flags
	EnableLLM bool

	// Parallel inputs in ProcessBatch
	Concurrency int

	// Extractor replaces the LLM extractor built from the options
	Extractor Extractor
}

// DefaultPipelineOptions returns default pipeline options
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		ReviewThreshold: processor.DefaultReviewThreshold,
		EnableLLM:       true,
		Concurrency:     processor.DefaultConcurrency,
		LLMBaseURL:      llm.DefaultBaseURL,
		LLMModel:        llm.DefaultModel,
		LLMVisionModel:  llm.DefaultVisionModel,
	}
}
