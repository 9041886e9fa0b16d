package invoicelib

import (
	"context"
	"io"

	"github.com/rechnungswerk/einvoice/internal/llm"
	"github.com/rechnungswerk/einvoice/internal/model"
	"github.com/rechnungswerk/einvoice/internal/processor"
)

// Processor implements Pipeline interface using internal processor
type Processor struct {
	pipeline *processor.Pipeline
	options  PipelineOptions
}

var _ Pipeline = (*Processor)(nil)

// NewProcessor creates a new invoice processor with the given options
func NewProcessor(opts PipelineOptions) *Processor {
	pipelineOpts := []processor.Option{
		processor.WithConcurrency(opts.Concurrency),
	}
	if opts.ReviewThreshold > 0 {
		pipelineOpts = append(pipelineOpts, processor.WithReviewThreshold(opts.ReviewThreshold))
	}

	switch {
	case opts.Extractor != nil:
		pipelineOpts = append(pipelineOpts, processor.WithLLMExtractor(opts.Extractor))
	case opts.EnableLLM:
		var clientOpts []llm.ClientOption
		if opts.LLMBaseURL != "" {
			clientOpts = append(clientOpts, llm.WithBaseURL(opts.LLMBaseURL))
		}
		client := llm.NewClient(opts.LLMAPIKey, clientOpts...)

		var extractorOpts []llm.ExtractorOption
		if opts.LLMModel != "" {
			extractorOpts = append(extractorOpts, llm.WithTextModel(opts.LLMModel))
		}
		if opts.LLMVisionModel != "" {
			extractorOpts = append(extractorOpts, llm.WithVisionModel(opts.LLMVisionModel))
		}
		pipelineOpts = append(pipelineOpts, processor.WithLLMExtractor(llm.NewExtractor(client, extractorOpts...)))
	}

	return &Processor{
		pipeline: processor.NewPipeline(pipelineOpts...),
		options:  opts,
	}
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	return NewProcessor(DefaultPipelineOptions())
}

// Process detects the input format and returns the extraction result
func (p *Processor) Process(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FormatUnknown, "content", "failed to read input", err)
	}
	return toExtractionResult(p.pipeline.Process(ctx, data))
}

// ProcessXML processes XML input directly
func (p *Processor) ProcessXML(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	return toExtractionResult(p.pipeline.ProcessXML(ctx, r))
}

// ProcessPDF processes a hybrid PDF with embedded invoice XML
func (p *Processor) ProcessPDF(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FormatPDF, "content", "failed to read input", err)
	}
	return toExtractionResult(p.pipeline.ProcessPDF(ctx, data))
}

// ProcessText extracts fields from OCR text with the LLM
func (p *Processor) ProcessText(ctx context.Context, text string) (*ExtractionResult, error) {
	return toExtractionResult(p.pipeline.ProcessText(ctx, text))
}

// ProcessImage processes image input directly
func (p *Processor) ProcessImage(ctx context.Context, imageData []byte, mimeType string) (*ExtractionResult, error) {
	if mimeType == "" {
		mimeType = processor.DetectMimeType(imageData)
	}
	return toExtractionResult(p.pipeline.ProcessImage(ctx, imageData, mimeType))
}

// ProcessFields scores already extracted fields
func (p *Processor) ProcessFields(ctx context.Context, fields Fields) *ExtractionResult {
	result, _ := toExtractionResult(p.pipeline.ProcessFields(ctx, fields))
	return result
}

// ProcessBatch processes inputs concurrently. Results keep the input order;
// a failed input leaves a nil entry and the first failure is returned.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []io.Reader) ([]*ExtractionResult, error) {
	data := make([][]byte, len(inputs))
	for i, r := range inputs {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, model.NewParseError(model.FormatUnknown, "content", "failed to read input", err)
		}
		data[i] = b
	}

	processed, err := p.pipeline.ProcessBatch(ctx, data)
	results := make([]*ExtractionResult, len(processed))
	firstErr := err
	for i, pr := range processed {
		result, procErr := toExtractionResult(pr)
		if procErr != nil {
			if firstErr == nil {
				firstErr = procErr
			}
			continue
		}
		results[i] = result
	}

	return results, firstErr
}

func toExtractionResult(result *processor.Result) (*ExtractionResult, error) {
	if result.Error != nil {
		return nil, result.Error
	}

	return &ExtractionResult{
		Invoice:     result.Invoice,
		Fields:      result.Fields,
		Report:      result.Report,
		Method:      string(result.Method),
		Warnings:    result.Warnings,
		NeedsReview: result.NeedsReview,
	}, nil
}
