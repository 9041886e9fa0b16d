package processor_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechnungswerk/einvoice/internal/metrics"
	"github.com/rechnungswerk/einvoice/internal/model"
	"github.com/rechnungswerk/einvoice/internal/processor"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

type fakeExtractor struct {
	fields model.Fields
	err    error
	input  string
}

func (f *fakeExtractor) ExtractFromText(_ context.Context, text string) (model.Fields, error) {
	f.input = text
	return f.fields, f.err
}

func (f *fakeExtractor) ExtractFromImage(_ context.Context, _ []byte, mimeType string) (model.Fields, error) {
	f.input = mimeType
	return f.fields, f.err
}

func sampleXML(t testing.TB) []byte {
	t.Helper()

	inv := &model.Invoice{
		InvoiceNumber: "RE-2026-001",
		InvoiceDate:   "2026-02-23",
		SellerName:    "Musterfirma GmbH",
		SellerVATID:   "DE123456789",
		SellerAddress: "Musterstraße 1, 10115 Berlin",
		BuyerName:     "Käufer AG",
		BuyerAddress:  "Industrieweg 7, 80331 München",
		NetAmount:     decimal.NewFromInt(1500),
		TaxAmount:     decimal.NewFromInt(285),
		GrossAmount:   decimal.NewFromInt(1785),
		TaxRate:       decimal.NewFromInt(19),
		IBAN:          "DE89370400440532013000",
	}
	out, err := xrechnung.NewGenerator().Generate(inv)
	require.NoError(t, err)
	return out
}

func TestNewPipeline(t *testing.T) {
	p := processor.NewPipeline()
	require.NotNil(t, p)
	assert.False(t, p.HasLLM())
	assert.Equal(t, processor.DefaultReviewThreshold, p.ReviewThreshold())
}

func TestNewPipeline_WithOptions(t *testing.T) {
	p := processor.NewPipeline(
		processor.WithLLMExtractor(&fakeExtractor{}),
		processor.WithReviewThreshold(60),
		processor.WithConcurrency(2),
		processor.WithLogger(nil),
	)
	require.NotNil(t, p)
	assert.True(t, p.HasLLM())
	assert.Equal(t, 60.0, p.ReviewThreshold())
}

func TestProcessXML(t *testing.T) {
	p := processor.NewPipeline()

	result := p.ProcessXML(context.Background(), strings.NewReader(string(sampleXML(t))))
	require.NoError(t, result.Error)
	require.NotNil(t, result.Invoice)
	require.NotNil(t, result.Report)

	assert.Equal(t, processor.MethodXML, result.Method)
	assert.Equal(t, "RE-2026-001", result.Invoice.InvoiceNumber)
	assert.Equal(t, "RE-2026-001", result.Fields["invoice_number"])
	assert.Equal(t, 100.0, result.Report.Completeness)
	assert.False(t, result.NeedsReview)
	assert.Empty(t, result.Warnings)

	for _, c := range result.Report.ConsistencyChecks {
		assert.True(t, c.Passed, c.Check)
	}
}

func TestProcessXML_Invalid(t *testing.T) {
	p := processor.NewPipeline()

	result := p.ProcessXML(context.Background(), strings.NewReader("<Invoice><InvoiceNo>1</InvoiceNo></Invoice>"))
	require.Error(t, result.Error)

	var parseErr *model.ParseError
	require.ErrorAs(t, result.Error, &parseErr)
	assert.Equal(t, model.FormatUBL, parseErr.Format)
}

func TestProcessXMLBytes_CII(t *testing.T) {
	xml := `<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
  xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
  xmlns:udt="urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100">
  <rsm:ExchangedDocument>
    <ram:ID>FX-7</ram:ID>
    <ram:IssueDateTime><udt:DateTimeString format="102">20260305</udt:DateTimeString></ram:IssueDateTime>
  </rsm:ExchangedDocument>
  <rsm:SupplyChainTradeTransaction>
    <ram:ApplicableHeaderTradeAgreement>
      <ram:SellerTradeParty>
        <ram:Name>Lieferant GmbH</ram:Name>
        <ram:SpecifiedTaxRegistration><ram:ID schemeID="VA">DE123456789</ram:ID></ram:SpecifiedTaxRegistration>
      </ram:SellerTradeParty>
      <ram:BuyerTradeParty><ram:Name>Kunden AG</ram:Name></ram:BuyerTradeParty>
    </ram:ApplicableHeaderTradeAgreement>
    <ram:ApplicableHeaderTradeSettlement>
      <ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>
      <ram:ApplicableTradeTax><ram:RateApplicablePercent>19</ram:RateApplicablePercent></ram:ApplicableTradeTax>
      <ram:SpecifiedTradeSettlementHeaderMonetarySummation>
        <ram:TaxBasisTotalAmount>100.00</ram:TaxBasisTotalAmount>
        <ram:TaxTotalAmount currencyID="EUR">19.00</ram:TaxTotalAmount>
        <ram:GrandTotalAmount>119.00</ram:GrandTotalAmount>
      </ram:SpecifiedTradeSettlementHeaderMonetarySummation>
    </ram:ApplicableHeaderTradeSettlement>
  </rsm:SupplyChainTradeTransaction>
</rsm:CrossIndustryInvoice>`

	result := processor.NewPipeline().ProcessXMLBytes(context.Background(), []byte(xml))
	require.NoError(t, result.Error)
	assert.Equal(t, processor.MethodXML, result.Method)
	assert.Equal(t, "FX-7", result.Invoice.InvoiceNumber)
	assert.Equal(t, "2026-03-05", result.Invoice.InvoiceDate)
	assert.Empty(t, result.Warnings)

	for _, c := range result.Report.ConsistencyChecks {
		assert.True(t, c.Passed, c.Check)
	}
}

func TestProcessXMLBytes_ValidationWarnings(t *testing.T) {
	xml := strings.Replace(string(sampleXML(t)), "<cbc:ID>RE-2026-001</cbc:ID>", "<cbc:ID></cbc:ID>", 1)

	result := processor.NewPipeline().ProcessXMLBytes(context.Background(), []byte(xml))
	require.NoError(t, result.Error)
	assert.Contains(t, result.Warnings, "BT-1: Rechnungsnummer fehlt")
	assert.Equal(t, "Pflichtfeld fehlt", result.Report.FieldConfidences["invoice_number"].Reason)
}

func TestProcessPDF_NoAttachment(t *testing.T) {
	result := processor.NewPipeline().ProcessPDF(context.Background(), []byte("%PDF-1.4\n%broken"))
	require.Error(t, result.Error)
	assert.Equal(t, processor.MethodZUGFeRD, result.Method)
}

func TestProcessText(t *testing.T) {
	fake := &fakeExtractor{fields: model.Fields{
		"invoice_number": "RE-7",
		"net_amount":     100.0,
		"tax_amount":     19.0,
		"gross_amount":   119.0,
		"tax_rate":       19.0,
	}}
	p := processor.NewPipeline(processor.WithLLMExtractor(fake))

	result := p.ProcessText(context.Background(), "Rechnung RE-7")
	require.NoError(t, result.Error)

	assert.Equal(t, "Rechnung RE-7", fake.input)
	assert.Equal(t, processor.MethodLLMText, result.Method)
	require.NotNil(t, result.Invoice)
	assert.True(t, result.Invoice.GrossAmount.Equal(decimal.NewFromInt(119)))
	assert.Len(t, result.Report.ConsistencyChecks, 2)
	assert.True(t, result.NeedsReview, "most core fields are missing")
}

func TestProcessText_UntypedFields(t *testing.T) {
	fake := &fakeExtractor{fields: model.Fields{"net_amount": "1.500,00"}}
	p := processor.NewPipeline(processor.WithLLMExtractor(fake))

	result := p.ProcessText(context.Background(), "text")
	require.NoError(t, result.Error)
	assert.Nil(t, result.Invoice)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "typed invoice")
	assert.Equal(t, 5, result.Report.FieldConfidences["net_amount"].Score)
}

func TestProcessText_ExtractorError(t *testing.T) {
	fake := &fakeExtractor{err: model.NewExtractionError("llm_text", "chat request failed", errors.New("timeout"))}
	p := processor.NewPipeline(processor.WithLLMExtractor(fake))

	result := p.ProcessText(context.Background(), "text")
	var extErr *model.ExtractionError
	require.ErrorAs(t, result.Error, &extErr)
	assert.Nil(t, result.Report)
}

func TestProcessImage_NoLLM(t *testing.T) {
	result := processor.NewPipeline().ProcessImage(context.Background(), []byte("fake image"), "image/png")
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "LLM extractor not configured")
	assert.Equal(t, processor.MethodLLMVision, result.Method)
}

func TestProcessImage(t *testing.T) {
	fake := &fakeExtractor{fields: model.Fields{"invoice_number": "RE-1"}}
	p := processor.NewPipeline(processor.WithLLMExtractor(fake))

	result := p.Process(context.Background(), []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	require.NoError(t, result.Error)
	assert.Equal(t, processor.MethodLLMVision, result.Method)
	assert.Equal(t, "image/png", fake.input)
}

func TestProcessJSON(t *testing.T) {
	p := processor.NewPipeline()

	result := p.Process(context.Background(), []byte(`{"net_amount":1000.0,"tax_amount":190.0,"gross_amount":1190.0,"tax_rate":19.0}`))
	require.NoError(t, result.Error)
	assert.Equal(t, processor.MethodFields, result.Method)
	assert.Equal(t, 95, result.Report.FieldConfidences["gross_amount"].Score)

	result = p.ProcessJSON(context.Background(), []byte(`{"net_amount":`))
	var parseErr *model.ParseError
	require.ErrorAs(t, result.Error, &parseErr)
	assert.Equal(t, model.FormatJSON, parseErr.Format)
}

func TestProcessFields_Empty(t *testing.T) {
	result := processor.NewPipeline().ProcessFields(context.Background(), nil)
	require.NoError(t, result.Error)

	assert.Equal(t, 0.0, result.Report.OverallConfidence)
	assert.Empty(t, result.Report.ConsistencyChecks)
	assert.True(t, result.NeedsReview)
}

func TestProcess_Unknown(t *testing.T) {
	result := processor.NewPipeline().Process(context.Background(), []byte{0x00, 0xFE, 0xFF})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "unsupported input format")
}

func TestProcessBatch(t *testing.T) {
	m := metrics.New()
	p := processor.NewPipeline(processor.WithConcurrency(2), processor.WithMetrics(m))

	inputs := [][]byte{
		sampleXML(t),
		[]byte(`{"invoice_number":"RE-2"}`),
		[]byte("plain text without extractor"),
	}
	for i := 0; i < 5; i++ {
		inputs = append(inputs, []byte(fmt.Sprintf(`{"invoice_number":"B-%d"}`, i)))
	}

	results, err := p.ProcessBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))

	assert.Equal(t, processor.MethodXML, results[0].Method)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, "RE-2", results[1].Fields["invoice_number"])
	assert.Error(t, results[2].Error)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("B-%d", i), results[3+i].Fields["invoice_number"])
	}
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := processor.NewPipeline().ProcessBatch(ctx, [][]byte{[]byte(`{}`)})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Error, context.Canceled)
}

func TestProcessBatch_CancelledFillsEveryResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := [][]byte{[]byte(`{}`), []byte(`{}`), []byte(`{}`)}
	results, err := processor.NewPipeline(processor.WithConcurrency(1)).ProcessBatch(ctx, inputs)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NotNil(t, r)
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected processor.Format
	}{
		{"XML with declaration", []byte(`<?xml version="1.0"?><Invoice/>`), processor.FormatXML},
		{"XML with BOM and whitespace", []byte("\xEF\xBB\xBF\n  <Invoice/>"), processor.FormatXML},
		{"PDF", []byte("%PDF-1.4\n%some content"), processor.FormatPDF},
		{"PNG image", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, processor.FormatImage},
		{"JPEG image", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}, processor.FormatImage},
		{"TIFF little-endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}, processor.FormatImage},
		{"TIFF big-endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08}, processor.FormatImage},
		{"JSON", []byte(` {"invoice_number":"1"}`), processor.FormatJSON},
		{"OCR text", []byte("Rechnung Nr. 2026-001\nGesamtbetrag 1.785,00 EUR"), processor.FormatText},
		{"Binary", []byte{0x00, 0xFE, 0xFF}, processor.FormatUnknown},
		{"Whitespace only", []byte("   \n"), processor.FormatUnknown},
		{"Empty data", []byte{}, processor.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, processor.DetectFormat(tt.data))
		})
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		format   processor.Format
		expected string
	}{
		{processor.FormatXML, "xml"},
		{processor.FormatPDF, "pdf"},
		{processor.FormatImage, "image"},
		{processor.FormatJSON, "json"},
		{processor.FormatText, "text"},
		{processor.FormatUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.format.String())
		})
	}
}

func TestExtractionMethod(t *testing.T) {
	assert.Equal(t, processor.ExtractionMethod("xml"), processor.MethodXML)
	assert.Equal(t, processor.ExtractionMethod("zugferd"), processor.MethodZUGFeRD)
	assert.Equal(t, processor.ExtractionMethod("llm_text"), processor.MethodLLMText)
	assert.Equal(t, processor.ExtractionMethod("llm_vision"), processor.MethodLLMVision)
	assert.Equal(t, processor.ExtractionMethod("fields"), processor.MethodFields)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/gif", processor.DetectMimeType([]byte("GIF89a....")))
	assert.Equal(t, "image/webp", processor.DetectMimeType([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "application/octet-stream", processor.DetectMimeType([]byte("%PDF")))
}

func BenchmarkDetectFormat_XML(b *testing.B) {
	data := []byte(`<?xml version="1.0"?><Invoice><Number>1</Number></Invoice>`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		processor.DetectFormat(data)
	}
}

func BenchmarkProcessXML(b *testing.B) {
	ctx := context.Background()
	p := processor.NewPipeline()
	data := sampleXML(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ProcessXMLBytes(ctx, data)
	}
}
