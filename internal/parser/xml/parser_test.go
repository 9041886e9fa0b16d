package xml_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

const ciiSample = `<?xml version="1.0" encoding="UTF-8"?>
<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
    xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
    xmlns:udt="urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100">
  <rsm:ExchangedDocumentContext>
    <ram:GuidelineSpecifiedDocumentContextParameter>
      <ram:ID>urn:cen.eu:en16931:2017</ram:ID>
    </ram:GuidelineSpecifiedDocumentContextParameter>
  </rsm:ExchangedDocumentContext>
  <rsm:ExchangedDocument>
    <ram:ID>FX-2026-042</ram:ID>
    <ram:TypeCode>380</ram:TypeCode>
    <ram:IssueDateTime>
      <udt:DateTimeString format="102">20260305</udt:DateTimeString>
    </ram:IssueDateTime>
  </rsm:ExchangedDocument>
  <rsm:SupplyChainTradeTransaction>
    <ram:IncludedSupplyChainTradeLineItem>
      <ram:SpecifiedTradeProduct>
        <ram:Name>Beratung</ram:Name>
      </ram:SpecifiedTradeProduct>
      <ram:SpecifiedLineTradeAgreement>
        <ram:NetPriceProductTradePrice>
          <ram:ChargeAmount>100.00</ram:ChargeAmount>
        </ram:NetPriceProductTradePrice>
      </ram:SpecifiedLineTradeAgreement>
      <ram:SpecifiedLineTradeDelivery>
        <ram:BilledQuantity unitCode="HUR">10</ram:BilledQuantity>
      </ram:SpecifiedLineTradeDelivery>
      <ram:SpecifiedLineTradeSettlement>
        <ram:ApplicableTradeTax>
          <ram:TypeCode>VAT</ram:TypeCode>
          <ram:CategoryCode>S</ram:CategoryCode>
          <ram:RateApplicablePercent>19</ram:RateApplicablePercent>
        </ram:ApplicableTradeTax>
        <ram:SpecifiedTradeSettlementLineMonetarySummation>
          <ram:LineTotalAmount>1000.00</ram:LineTotalAmount>
        </ram:SpecifiedTradeSettlementLineMonetarySummation>
      </ram:SpecifiedLineTradeSettlement>
    </ram:IncludedSupplyChainTradeLineItem>
    <ram:ApplicableHeaderTradeAgreement>
      <ram:BuyerReference>04011000-12345-03</ram:BuyerReference>
      <ram:SellerTradeParty>
        <ram:Name>Lieferant GmbH</ram:Name>
        <ram:PostalTradeAddress>
          <ram:PostcodeCode>80333</ram:PostcodeCode>
          <ram:LineOne>Lieferantenstraße 20</ram:LineOne>
          <ram:CityName>München</ram:CityName>
          <ram:CountryID>DE</ram:CountryID>
        </ram:PostalTradeAddress>
        <ram:URIUniversalCommunication>
          <ram:URIID schemeID="EM">rechnung@lieferant.de</ram:URIID>
        </ram:URIUniversalCommunication>
        <ram:SpecifiedTaxRegistration>
          <ram:ID schemeID="FC">201/113/40209</ram:ID>
        </ram:SpecifiedTaxRegistration>
        <ram:SpecifiedTaxRegistration>
          <ram:ID schemeID="VA">DE123456789</ram:ID>
        </ram:SpecifiedTaxRegistration>
      </ram:SellerTradeParty>
      <ram:BuyerTradeParty>
        <ram:Name>Kunden AG</ram:Name>
        <ram:PostalTradeAddress>
          <ram:PostcodeCode>69876</ram:PostcodeCode>
          <ram:LineOne>Kundenstraße 15</ram:LineOne>
          <ram:CityName>Frankfurt</ram:CityName>
          <ram:CountryID>DE</ram:CountryID>
        </ram:PostalTradeAddress>
      </ram:BuyerTradeParty>
    </ram:ApplicableHeaderTradeAgreement>
    <ram:ApplicableHeaderTradeDelivery/>
    <ram:ApplicableHeaderTradeSettlement>
      <ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>
      <ram:SpecifiedTradeSettlementPaymentMeans>
        <ram:TypeCode>58</ram:TypeCode>
        <ram:PayeePartyCreditorFinancialAccount>
          <ram:IBANID>DE02120300000000202051</ram:IBANID>
          <ram:AccountName>Lieferant GmbH</ram:AccountName>
        </ram:PayeePartyCreditorFinancialAccount>
        <ram:PayeeSpecifiedCreditorFinancialInstitution>
          <ram:BICID>BYLADEM1001</ram:BICID>
        </ram:PayeeSpecifiedCreditorFinancialInstitution>
      </ram:SpecifiedTradeSettlementPaymentMeans>
      <ram:ApplicableTradeTax>
        <ram:CalculatedAmount>190.00</ram:CalculatedAmount>
        <ram:TypeCode>VAT</ram:TypeCode>
        <ram:BasisAmount>1000.00</ram:BasisAmount>
        <ram:CategoryCode>S</ram:CategoryCode>
        <ram:RateApplicablePercent>19.00</ram:RateApplicablePercent>
      </ram:ApplicableTradeTax>
      <ram:SpecifiedTradePaymentTerms>
        <ram:DueDateDateTime>
          <udt:DateTimeString format="102">20260404</udt:DateTimeString>
        </ram:DueDateDateTime>
      </ram:SpecifiedTradePaymentTerms>
      <ram:SpecifiedTradeSettlementHeaderMonetarySummation>
        <ram:LineTotalAmount>1000.00</ram:LineTotalAmount>
        <ram:TaxBasisTotalAmount>1000.00</ram:TaxBasisTotalAmount>
        <ram:TaxTotalAmount currencyID="EUR">190.00</ram:TaxTotalAmount>
        <ram:GrandTotalAmount>1190.00</ram:GrandTotalAmount>
        <ram:DuePayableAmount>1190.00</ram:DuePayableAmount>
      </ram:SpecifiedTradeSettlementHeaderMonetarySummation>
    </ram:ApplicableHeaderTradeSettlement>
  </rsm:SupplyChainTradeTransaction>
</rsm:CrossIndustryInvoice>`

func ublSample(t *testing.T) []byte {
	t.Helper()
	out, err := xrechnung.NewGenerator().Generate(&model.Invoice{
		InvoiceNumber: "RE-2026-001",
		InvoiceDate:   "2026-02-23",
		SellerName:    "Musterfirma GmbH",
		SellerVATID:   "DE123456789",
		SellerAddress: "Musterstraße 1, 10115 Berlin",
		BuyerName:     "Käufer AG",
		NetAmount:     decimal.NewFromInt(1500),
		TaxAmount:     decimal.NewFromInt(285),
		GrossAmount:   decimal.NewFromInt(1785),
		TaxRate:       decimal.NewFromInt(19),
	})
	require.NoError(t, err)
	return out
}

func TestRegistry_NewRegistry(t *testing.T) {
	registry := xmlparser.NewRegistry()
	require.NotNil(t, registry)

	for _, syntax := range []model.Format{model.FormatUBL, model.FormatCII} {
		adapter := registry.GetAdapter(syntax)
		require.NotNil(t, adapter, "adapter for %s", syntax)
		assert.Equal(t, syntax, adapter.Syntax())
	}
	assert.Nil(t, registry.GetAdapter(model.FormatPDF))
}

func TestRegistry_Detect(t *testing.T) {
	registry := xmlparser.NewRegistry()

	tests := []struct {
		name    string
		content []byte
		want    model.Format
		found   bool
	}{
		{"ubl", ublSample(t), model.FormatUBL, true},
		{"cii", []byte(ciiSample), model.FormatCII, true},
		{"unknown root", []byte("<Invoice><InvoiceNo>1</InvoiceNo></Invoice>"), "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, ok := registry.Detect(tt.content)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				require.NotNil(t, adapter)
				assert.Equal(t, tt.want, adapter.Syntax())
			}
		})
	}
}

func TestDetectSyntax(t *testing.T) {
	assert.Equal(t, model.FormatCII, xmlparser.DetectSyntax([]byte(ciiSample)))
	assert.Equal(t, model.FormatUBL, xmlparser.DetectSyntax(ublSample(t)))
	assert.Equal(t, model.FormatUnknown, xmlparser.DetectSyntax([]byte("<foo/>")))
}

func TestParse_CII(t *testing.T) {
	inv, err := xmlparser.Parse(context.Background(), []byte(ciiSample))
	require.NoError(t, err)

	assert.Equal(t, "FX-2026-042", inv.InvoiceNumber)
	assert.Equal(t, "2026-03-05", inv.InvoiceDate)
	assert.Equal(t, "2026-04-04", inv.DueDate)
	assert.Equal(t, "Lieferant GmbH", inv.SellerName)
	assert.Equal(t, "DE123456789", inv.SellerVATID)
	assert.Equal(t, "Lieferantenstraße 20, 80333 München", inv.SellerAddress)
	assert.Equal(t, "rechnung@lieferant.de", inv.SellerEndpointID)
	assert.Equal(t, "EM", inv.SellerEndpointScheme)
	assert.Equal(t, "Kunden AG", inv.BuyerName)
	assert.Empty(t, inv.BuyerVATID)
	assert.Equal(t, "Kundenstraße 15, 69876 Frankfurt", inv.BuyerAddress)
	assert.Equal(t, "04011000-12345-03", inv.BuyerReference)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, "DE02120300000000202051", inv.IBAN)
	assert.Equal(t, "BYLADEM1001", inv.BIC)
	assert.Equal(t, "Lieferant GmbH", inv.PaymentAccountName)

	assert.True(t, inv.NetAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(190)))
	assert.True(t, inv.GrossAmount.Equal(decimal.NewFromInt(1190)))
	assert.True(t, inv.TaxRate.Equal(decimal.NewFromInt(19)))

	require.Len(t, inv.LineItems, 1)
	item := inv.LineItems[0]
	assert.Equal(t, "Beratung", item.Description)
	assert.True(t, item.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, item.NetAmount.Equal(decimal.NewFromInt(1000)))
	require.True(t, item.TaxRate.Valid)
	assert.True(t, item.TaxRate.Decimal.Equal(decimal.NewFromInt(19)))

	assert.Empty(t, xrechnung.Validate(inv))
}

func TestParse_UBL(t *testing.T) {
	inv, err := xmlparser.Parse(context.Background(), ublSample(t))
	require.NoError(t, err)

	assert.Equal(t, "RE-2026-001", inv.InvoiceNumber)
	assert.Equal(t, "Musterstraße 1, 10115 Berlin", inv.SellerAddress)
	assert.True(t, inv.GrossAmount.Equal(decimal.NewFromInt(1785)))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  model.Format
		field   string
	}{
		{
			name:    "unknown root falls back to UBL",
			content: "<Invoice><InvoiceNo>1</InvoiceNo></Invoice>",
			format:  model.FormatUBL,
		},
		{
			name: "invalid CII amount",
			content: `<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
  xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100">
  <rsm:SupplyChainTradeTransaction>
    <ram:ApplicableHeaderTradeSettlement>
      <ram:SpecifiedTradeSettlementHeaderMonetarySummation>
        <ram:GrandTotalAmount>zwölf</ram:GrandTotalAmount>
      </ram:SpecifiedTradeSettlementHeaderMonetarySummation>
    </ram:ApplicableHeaderTradeSettlement>
  </rsm:SupplyChainTradeTransaction>
</rsm:CrossIndustryInvoice>`,
			format: model.FormatCII,
			field:  "GrandTotalAmount",
		},
		{
			name:    "truncated CII",
			content: `<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"><rsm:ExchangedDocument>`,
			format:  model.FormatCII,
			field:   "xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := xmlparser.Parse(context.Background(), []byte(tt.content))
			require.Error(t, err)

			var parseErr *model.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.format, parseErr.Format)
			if tt.field != "" {
				assert.Equal(t, tt.field, parseErr.Field)
			}
		})
	}
}

type stubAdapter struct{}

func (stubAdapter) Parse(context.Context, io.Reader) (*model.Invoice, error) {
	return &model.Invoice{InvoiceNumber: "STUB"}, nil
}

func (stubAdapter) CanParse(content []byte) bool {
	return bytes.HasPrefix(content, []byte("<stub"))
}

func (stubAdapter) Syntax() model.Format {
	return model.FormatUnknown
}

func TestRegistry_RegisterAdapter(t *testing.T) {
	registry := xmlparser.NewRegistry()
	registry.RegisterAdapter(stubAdapter{})

	inv, err := registry.Parse(context.Background(), []byte("<stub/>"))
	require.NoError(t, err)
	assert.Equal(t, "STUB", inv.InvoiceNumber)

	inv, err = registry.Parse(context.Background(), []byte(ciiSample))
	require.NoError(t, err)
	assert.Equal(t, "FX-2026-042", inv.InvoiceNumber)
}
