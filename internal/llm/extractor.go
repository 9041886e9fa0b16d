package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// Extraction methods reported in errors and pipeline results
const (
	MethodText   = "llm_text"
	MethodVision = "llm_vision"
)

// Chatter is the part of Client the extractor depends on
type Chatter interface {
	ChatText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
	ChatWithImage(ctx context.Context, model, systemPrompt, userPrompt string, imageData []byte, mimeType string) (string, error)
}

// Extractor turns OCR text or invoice images into extracted fields
type Extractor struct {
	client        Chatter
	textModel     string
	visionModel   string
	ocrCorrection bool
}

// ExtractorOption configures the extractor
type ExtractorOption func(*Extractor)

// WithModel sets the model for both text and vision extraction
func WithModel(model string) ExtractorOption {
	return func(e *Extractor) {
		e.textModel = model
		e.visionModel = model
	}
}

// WithTextModel sets the model for text extraction
func WithTextModel(model string) ExtractorOption {
	return func(e *Extractor) {
		e.textModel = model
	}
}

// WithVisionModel sets the model for image extraction
func WithVisionModel(model string) ExtractorOption {
	return func(e *Extractor) {
		e.visionModel = model
	}
}

// WithOCRCorrection asks the model to repair OCR errors before extracting
func WithOCRCorrection(enabled bool) ExtractorOption {
	return func(e *Extractor) {
		e.ocrCorrection = enabled
	}
}

// NewExtractor creates an extractor. An empty text model falls back to the
// client's default model.
func NewExtractor(client Chatter, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		client:      client,
		visionModel: DefaultVisionModel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFromText extracts fields from OCR or PDF text
func (e *Extractor) ExtractFromText(ctx context.Context, text string) (model.Fields, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.NewExtractionError(MethodText, "empty input text", nil)
	}

	prompt := UserPromptTextExtraction
	if e.ocrCorrection {
		prompt = UserPromptOCRCorrection
	}

	resp, err := e.client.ChatText(ctx, e.textModel, SystemPromptInvoiceExtractor, fmt.Sprintf(prompt, text))
	if err != nil {
		return nil, model.NewExtractionError(MethodText, "chat request failed", err)
	}
	return parseFields(MethodText, resp)
}

// ExtractFromImage extracts fields from an invoice image
func (e *Extractor) ExtractFromImage(ctx context.Context, image []byte, mimeType string) (model.Fields, error) {
	if len(image) == 0 {
		return nil, model.NewExtractionError(MethodVision, "empty image", nil)
	}

	resp, err := e.client.ChatWithImage(ctx, e.visionModel, SystemPromptInvoiceExtractor, UserPromptImageExtraction, image, mimeType)
	if err != nil {
		return nil, model.NewExtractionError(MethodVision, "chat request failed", err)
	}
	return parseFields(MethodVision, resp)
}

func parseFields(method, resp string) (model.Fields, error) {
	var fields model.Fields
	if err := json.Unmarshal([]byte(ExtractJSON(resp)), &fields); err != nil {
		return nil, model.NewExtractionError(method, "response is not a JSON object", err)
	}
	if fields == nil {
		fields = model.Fields{}
	}
	return fields, nil
}
