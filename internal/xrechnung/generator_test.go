package xrechnung_test

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechnungswerk/einvoice/internal/model"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

func sampleInvoice() *model.Invoice {
	return &model.Invoice{
		InvoiceNumber: "RE-2026-001",
		InvoiceDate:   "2026-02-23",
		SellerName:    "Musterfirma GmbH",
		SellerVATID:   "DE123456789",
		BuyerName:     "Käufer AG",
		NetAmount:     decimal.RequireFromString("1500.0"),
		TaxAmount:     decimal.RequireFromString("285.0"),
		GrossAmount:   decimal.RequireFromString("1785.0"),
		TaxRate:       decimal.RequireFromString("19.0"),
	}
}

func generateDoc(t *testing.T, inv *model.Invoice) *etree.Document {
	t.Helper()

	out, err := xrechnung.NewGenerator().Generate(inv)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	return doc
}

func childTags(el *etree.Element) []string {
	var tags []string
	for _, c := range el.ChildElements() {
		tags = append(tags, c.FullTag())
	}
	return tags
}

func TestGenerate_Scenario(t *testing.T) {
	doc := generateDoc(t, sampleInvoice())
	root := doc.Root()

	assert.Equal(t, "285.00", root.FindElement("cac:TaxTotal/cbc:TaxAmount").Text())
	assert.Equal(t, "1785.00", root.FindElement("cac:LegalMonetaryTotal/cbc:PayableAmount").Text())
	assert.Equal(t, "1500.00", root.FindElement("cac:LegalMonetaryTotal/cbc:TaxExclusiveAmount").Text())
	assert.Equal(t, "1785.00", root.FindElement("cac:LegalMonetaryTotal/cbc:TaxInclusiveAmount").Text())
	assert.Equal(t, xrechnung.CustomizationID, root.FindElement("cbc:CustomizationID").Text())
	assert.Equal(t, xrechnung.ProfileID, root.FindElement("cbc:ProfileID").Text())
	assert.Equal(t, "380", root.FindElement("cbc:InvoiceTypeCode").Text())
	assert.Equal(t, "EUR", root.FindElement("cbc:DocumentCurrencyCode").Text())
}

func TestGenerate_XMLDeclarationAndNamespaces(t *testing.T) {
	out, err := xrechnung.NewGenerator().GenerateString(sampleInvoice())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"`)
	assert.Contains(t, out, `xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"`)
	assert.Contains(t, out, `xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"`)
	assert.Contains(t, out, "Käufer AG")
	assert.Contains(t, out, "\n  <cbc:UBLVersionID>2.1</cbc:UBLVersionID>")
}

func TestGenerate_ElementOrder(t *testing.T) {
	inv := sampleInvoice()
	inv.DueDate = "2026-03-23"
	inv.LineItems = []model.LineItem{
		{Description: "Beratung", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100), NetAmount: decimal.NewFromInt(1000)},
		{Description: "Reise", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500), NetAmount: decimal.NewFromInt(500)},
	}

	root := generateDoc(t, inv).Root()

	expected := []string{
		"cbc:UBLVersionID",
		"cbc:CustomizationID",
		"cbc:ProfileID",
		"cbc:ID",
		"cbc:IssueDate",
		"cbc:DueDate",
		"cbc:InvoiceTypeCode",
		"cbc:DocumentCurrencyCode",
		"cbc:BuyerReference",
		"cac:AccountingSupplierParty",
		"cac:AccountingCustomerParty",
		"cac:PaymentMeans",
		"cac:TaxTotal",
		"cac:LegalMonetaryTotal",
		"cac:InvoiceLine",
		"cac:InvoiceLine",
	}
	assert.Equal(t, expected, childTags(root))

	partyOrder := []string{
		"cbc:EndpointID",
		"cac:PartyName",
		"cac:PostalAddress",
		"cac:PartyTaxScheme",
		"cac:PartyLegalEntity",
	}
	assert.Equal(t, partyOrder, childTags(root.FindElement("cac:AccountingSupplierParty/cac:Party")))

	// Buyer without VAT ID has no PartyTaxScheme, EndpointID stays first
	buyerTags := childTags(root.FindElement("cac:AccountingCustomerParty/cac:Party"))
	require.NotEmpty(t, buyerTags)
	assert.Equal(t, "cbc:EndpointID", buyerTags[0])
	assert.NotContains(t, buyerTags, "cac:PartyTaxScheme")

	lineOrder := []string{
		"cbc:ID",
		"cbc:InvoicedQuantity",
		"cbc:LineExtensionAmount",
		"cac:Item",
		"cac:Price",
	}
	assert.Equal(t, lineOrder, childTags(root.FindElement("cac:InvoiceLine")))
}

func TestGenerate_Defaults(t *testing.T) {
	root := generateDoc(t, sampleInvoice()).Root()

	assert.Equal(t, "n/a", root.FindElement("cbc:BuyerReference").Text())
	assert.Nil(t, root.FindElement("cbc:DueDate"))

	seller := root.FindElement("cac:AccountingSupplierParty/cac:Party/cbc:EndpointID")
	require.NotNil(t, seller)
	assert.Equal(t, "DE123456789", seller.Text())
	assert.Equal(t, "EM", seller.SelectAttrValue("schemeID", ""))

	buyer := root.FindElement("cac:AccountingCustomerParty/cac:Party/cbc:EndpointID")
	require.NotNil(t, buyer)
	assert.Equal(t, "unknown@example.com", buyer.Text())
	assert.Equal(t, "EM", buyer.SelectAttrValue("schemeID", ""))
}

func TestGenerate_ExplicitRouting(t *testing.T) {
	inv := sampleInvoice()
	inv.BuyerReference = "991-12345-67"
	inv.BuyerEndpointID = "rechnung@kaeufer.de"
	inv.BuyerEndpointScheme = "EM"
	inv.SellerEndpointID = "0204:991-1"
	inv.SellerEndpointScheme = "0204"

	root := generateDoc(t, inv).Root()

	assert.Equal(t, "991-12345-67", root.FindElement("cbc:BuyerReference").Text())
	seller := root.FindElement("cac:AccountingSupplierParty/cac:Party/cbc:EndpointID")
	assert.Equal(t, "0204:991-1", seller.Text())
	assert.Equal(t, "0204", seller.SelectAttrValue("schemeID", ""))
	assert.Equal(t, "rechnung@kaeufer.de", root.FindElement("cac:AccountingCustomerParty/cac:Party/cbc:EndpointID").Text())
}

func TestGenerate_EmptyAddressOmitsParts(t *testing.T) {
	inv := sampleInvoice()
	inv.SellerAddress = ""

	postal := generateDoc(t, inv).Root().FindElement("cac:AccountingSupplierParty/cac:Party/cac:PostalAddress")
	require.NotNil(t, postal)

	assert.Equal(t, []string{"cac:Country"}, childTags(postal))
	assert.Equal(t, "DE", postal.FindElement("cac:Country/cbc:IdentificationCode").Text())
}

func TestGenerate_ParsedAddress(t *testing.T) {
	inv := sampleInvoice()
	inv.SellerAddress = "Musterstraße 1, 10115 Berlin"
	inv.BuyerAddress = "Rue de la Paix 5, Paris"
	inv.BuyerVATID = "FR12345678901"

	root := generateDoc(t, inv).Root()

	seller := root.FindElement("cac:AccountingSupplierParty/cac:Party/cac:PostalAddress")
	assert.Equal(t, []string{"cbc:StreetName", "cbc:CityName", "cbc:PostalZone", "cac:Country"}, childTags(seller))
	assert.Equal(t, "Musterstraße 1", seller.FindElement("cbc:StreetName").Text())
	assert.Equal(t, "Berlin", seller.FindElement("cbc:CityName").Text())
	assert.Equal(t, "10115", seller.FindElement("cbc:PostalZone").Text())

	buyer := root.FindElement("cac:AccountingCustomerParty/cac:Party/cac:PostalAddress")
	assert.Equal(t, []string{"cbc:StreetName", "cbc:CityName", "cac:Country"}, childTags(buyer))
	assert.Equal(t, "FR", buyer.FindElement("cac:Country/cbc:IdentificationCode").Text())
}

func TestGenerate_CurrencyPropagation(t *testing.T) {
	inv := sampleInvoice()
	inv.Currency = "USD"
	inv.LineItems = []model.LineItem{
		{Description: "Service", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1500), NetAmount: decimal.NewFromInt(1500)},
	}

	doc := generateDoc(t, inv)
	assert.Equal(t, "USD", doc.Root().FindElement("cbc:DocumentCurrencyCode").Text())

	withCurrency := doc.FindElements(".//*[@currencyID]")
	require.NotEmpty(t, withCurrency)
	for _, el := range withCurrency {
		assert.Equal(t, "USD", el.SelectAttrValue("currencyID", ""), "element %s", el.FullTag())
	}
}

func TestGenerate_PaymentMeans(t *testing.T) {
	t.Run("without IBAN", func(t *testing.T) {
		pm := generateDoc(t, sampleInvoice()).Root().FindElement("cac:PaymentMeans")
		require.NotNil(t, pm)
		assert.Equal(t, "1", pm.FindElement("cbc:PaymentMeansCode").Text())
		assert.Nil(t, pm.FindElement("cac:PayeeFinancialAccount"))
	})

	t.Run("with IBAN and BIC", func(t *testing.T) {
		inv := sampleInvoice()
		inv.IBAN = "de89 3704 0044 0532 0130 00"
		inv.BIC = "COBADEFFXXX"
		inv.PaymentAccountName = "Musterfirma GmbH"

		pm := generateDoc(t, inv).Root().FindElement("cac:PaymentMeans")
		assert.Equal(t, "58", pm.FindElement("cbc:PaymentMeansCode").Text())
		account := pm.FindElement("cac:PayeeFinancialAccount")
		require.NotNil(t, account)
		assert.Equal(t, []string{"cbc:ID", "cbc:Name", "cac:FinancialInstitutionBranch"}, childTags(account))
		assert.Equal(t, "DE89370400440532013000", account.FindElement("cbc:ID").Text())
		assert.Equal(t, "COBADEFFXXX", account.FindElement("cac:FinancialInstitutionBranch/cbc:ID").Text())
	})

	t.Run("IBAN only", func(t *testing.T) {
		inv := sampleInvoice()
		inv.IBAN = "DE89370400440532013000"

		account := generateDoc(t, inv).Root().FindElement("cac:PaymentMeans/cac:PayeeFinancialAccount")
		require.NotNil(t, account)
		assert.Equal(t, []string{"cbc:ID"}, childTags(account))
	})
}

func TestGenerate_TaxBlock(t *testing.T) {
	root := generateDoc(t, sampleInvoice()).Root()

	sub := root.FindElement("cac:TaxTotal/cac:TaxSubtotal")
	require.NotNil(t, sub)
	assert.Equal(t, "1500.00", sub.FindElement("cbc:TaxableAmount").Text())
	assert.Equal(t, "285.00", sub.FindElement("cbc:TaxAmount").Text())
	assert.Equal(t, "S", sub.FindElement("cac:TaxCategory/cbc:ID").Text())
	assert.Equal(t, "19.00", sub.FindElement("cac:TaxCategory/cbc:Percent").Text())
	assert.Equal(t, "VAT", sub.FindElement("cac:TaxCategory/cac:TaxScheme/cbc:ID").Text())
	assert.Len(t, root.FindElements("cac:TaxTotal/cac:TaxSubtotal"), 1)
}

func TestGenerate_FallbackLine(t *testing.T) {
	t.Run("default name", func(t *testing.T) {
		lines := generateDoc(t, sampleInvoice()).Root().SelectElements("cac:InvoiceLine")
		require.Len(t, lines, 1)

		line := lines[0]
		assert.Equal(t, "1", line.FindElement("cbc:ID").Text())
		assert.Equal(t, "1.00", line.FindElement("cbc:InvoicedQuantity").Text())
		assert.Equal(t, "C62", line.FindElement("cbc:InvoicedQuantity").SelectAttrValue("unitCode", ""))
		assert.Equal(t, "1500.00", line.FindElement("cbc:LineExtensionAmount").Text())
		assert.Equal(t, "Leistung", line.FindElement("cac:Item/cbc:Name").Text())
		assert.Equal(t, "19.00", line.FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:Percent").Text())
		assert.Equal(t, "1500.00", line.FindElement("cac:Price/cbc:PriceAmount").Text())
	})

	t.Run("document description", func(t *testing.T) {
		inv := sampleInvoice()
		inv.Description = "Wartungsvertrag Q1"

		line := generateDoc(t, inv).Root().FindElement("cac:InvoiceLine")
		assert.Equal(t, "Wartungsvertrag Q1", line.FindElement("cac:Item/cbc:Name").Text())
	})
}

func TestGenerate_LineItemTaxRates(t *testing.T) {
	inv := sampleInvoice()
	inv.LineItems = []model.LineItem{
		{Description: "Buch", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(250), NetAmount: decimal.NewFromInt(500), TaxRate: decimal.NewNullDecimal(decimal.NewFromInt(7))},
		{Description: "Software", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000)},
	}

	lines := generateDoc(t, inv).Root().SelectElements("cac:InvoiceLine")
	require.Len(t, lines, 2)

	assert.Equal(t, "7.00", lines[0].FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:Percent").Text())
	assert.Equal(t, "2.00", lines[0].FindElement("cbc:InvoicedQuantity").Text())
	assert.Equal(t, "250.00", lines[0].FindElement("cac:Price/cbc:PriceAmount").Text())

	// Missing rate falls back to document rate, missing net to quantity * price
	assert.Equal(t, "19.00", lines[1].FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:Percent").Text())
	assert.Equal(t, "1000.00", lines[1].FindElement("cbc:LineExtensionAmount").Text())
	assert.Equal(t, "2", lines[1].FindElement("cbc:ID").Text())

	assert.True(t, xrechnung.MixedTaxRates(inv))
	assert.False(t, xrechnung.MixedTaxRates(sampleInvoice()))
}

func TestGenerate_Idempotent(t *testing.T) {
	gen := xrechnung.NewGenerator()
	inv := sampleInvoice()
	inv.IBAN = "DE89370400440532013000"

	first, err := gen.Generate(inv)
	require.NoError(t, err)
	second, err := gen.Generate(inv)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerate_DoesNotMutateInput(t *testing.T) {
	inv := sampleInvoice()
	_, err := xrechnung.NewGenerator().Generate(inv)
	require.NoError(t, err)

	assert.Empty(t, inv.BuyerReference)
	assert.Empty(t, inv.SellerEndpointID)
	assert.Empty(t, inv.Currency)
}

func TestGenerate_InconsistentTotals(t *testing.T) {
	inv := sampleInvoice()
	inv.GrossAmount = decimal.RequireFromString("9999.99")

	out, err := xrechnung.NewGenerator().Generate(inv)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "BR-CO-15")
	assert.Contains(t, err.Error(), "Gesamtbetrag 9999.99 != Netto+MwSt 1785.00")

	var validationErr *model.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.True(t, validationErr.HasRule(xrechnung.RuleTotals))
}

func TestGenerate_CollectsAllViolations(t *testing.T) {
	inv := sampleInvoice()
	inv.InvoiceNumber = ""
	inv.SellerName = ""
	inv.GrossAmount = decimal.NewFromInt(1)

	_, err := xrechnung.NewGenerator().Generate(inv)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "BT-1")
	assert.Contains(t, msg, "BT-27")
	assert.Contains(t, msg, "BR-CO-15")
	assert.Equal(t, 2, strings.Count(msg, "; "))
}
