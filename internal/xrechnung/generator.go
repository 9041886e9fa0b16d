// Package xrechnung generates and reads EN 16931 / XRechnung 3.0 invoices
// in UBL 2.1 syntax.
//
// Element order follows the UBL 2.1 schema sequence; Schematron validators
// such as the KoSIT validator reject documents whose order differs even when
// the content is correct.
package xrechnung

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	dec "github.com/rechnungswerk/einvoice/internal/decimal"
	"github.com/rechnungswerk/einvoice/internal/model"
)

// UBL namespaces
const (
	NamespaceInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NamespaceCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NamespaceCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
)

// Fixed document identifiers
const (
	UBLVersionID           = "2.1"
	CustomizationID        = "urn:cen.eu:en16931:2017#compliant#urn:xeinkauf.de:kosit:xrechnung_3.0"
	ProfileID              = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"
	InvoiceTypeCommercial  = "380"
	PaymentMeansSEPA       = "58"
	PaymentMeansUnknown    = "1"
	TaxCategoryStandard    = "S"
	TaxSchemeVAT           = "VAT"
	UnitCodePiece          = "C62"
	indentSpaces           = 2
	xmlDeclarationInstData = `version="1.0" encoding="UTF-8"`
)

// Generator serializes invoices into XRechnung UBL XML. It holds no state and
// is safe for concurrent use.
type Generator struct{}

// NewGenerator creates a new generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate validates inv and returns the UTF-8 encoded XML document.
// A *model.ValidationError listing every violation is returned when the
// invoice is incomplete or its totals are inconsistent.
func (g *Generator) Generate(inv *model.Invoice) ([]byte, error) {
	if violations := Validate(inv); len(violations) > 0 {
		return nil, model.NewValidationError(violations)
	}

	doc := g.build(withDefaults(inv))
	return doc.WriteToBytes()
}

// GenerateString is Generate returning a string
func (g *Generator) GenerateString(inv *model.Invoice) (string, error) {
	out, err := g.Generate(inv)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// withDefaults returns a copy with routing defaults applied
func withDefaults(inv *model.Invoice) *model.Invoice {
	c := *inv
	if blank(c.BuyerReference) {
		c.BuyerReference = model.DefaultBuyerReference
	}
	if blank(c.SellerEndpointID) {
		c.SellerEndpointID = firstNonBlank(c.SellerVATID, model.DefaultEndpointID)
	}
	if blank(c.BuyerEndpointID) {
		c.BuyerEndpointID = firstNonBlank(c.BuyerVATID, model.DefaultEndpointID)
	}
	if blank(c.SellerEndpointScheme) {
		c.SellerEndpointScheme = model.DefaultEndpointScheme
	}
	if blank(c.BuyerEndpointScheme) {
		c.BuyerEndpointScheme = model.DefaultEndpointScheme
	}
	c.Currency = c.CurrencyOrDefault()
	return &c
}

func (g *Generator) build(inv *model.Invoice) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", xmlDeclarationInstData)

	root := doc.CreateElement("Invoice")
	root.CreateAttr("xmlns", NamespaceInvoice)
	root.CreateAttr("xmlns:cac", NamespaceCAC)
	root.CreateAttr("xmlns:cbc", NamespaceCBC)

	cbc(root, "UBLVersionID", UBLVersionID)
	cbc(root, "CustomizationID", CustomizationID)
	cbc(root, "ProfileID", ProfileID)
	cbc(root, "ID", inv.InvoiceNumber)
	cbc(root, "IssueDate", inv.InvoiceDate)
	if !blank(inv.DueDate) {
		cbc(root, "DueDate", inv.DueDate)
	}
	cbc(root, "InvoiceTypeCode", InvoiceTypeCommercial)
	cbc(root, "DocumentCurrencyCode", inv.Currency)
	cbc(root, "BuyerReference", inv.BuyerReference)

	supplier := root.CreateElement("cac:AccountingSupplierParty")
	addParty(supplier, party{
		endpointID:     inv.SellerEndpointID,
		endpointScheme: inv.SellerEndpointScheme,
		name:           inv.SellerName,
		address:        inv.SellerAddress,
		vatID:          inv.SellerVATID,
	})

	customer := root.CreateElement("cac:AccountingCustomerParty")
	addParty(customer, party{
		endpointID:     inv.BuyerEndpointID,
		endpointScheme: inv.BuyerEndpointScheme,
		name:           inv.BuyerName,
		address:        inv.BuyerAddress,
		vatID:          inv.BuyerVATID,
	})

	addPaymentMeans(root, inv)
	addTaxTotal(root, inv)
	addMonetaryTotal(root, inv)
	addInvoiceLines(root, inv)

	doc.Indent(indentSpaces)
	return doc
}

type party struct {
	endpointID     string
	endpointScheme string
	name           string
	address        string
	vatID          string
}

func addParty(parent *etree.Element, p party) {
	el := parent.CreateElement("cac:Party")

	// EndpointID must be the first child of Party
	endpoint := cbc(el, "EndpointID", p.endpointID)
	endpoint.CreateAttr("schemeID", p.endpointScheme)

	name := el.CreateElement("cac:PartyName")
	cbc(name, "Name", p.name)

	addr := ParseAddress(p.address)
	postal := el.CreateElement("cac:PostalAddress")
	if addr.Street != "" {
		cbc(postal, "StreetName", addr.Street)
	}
	if addr.City != "" {
		cbc(postal, "CityName", addr.City)
	}
	if addr.PostalCode != "" {
		cbc(postal, "PostalZone", addr.PostalCode)
	}
	country := postal.CreateElement("cac:Country")
	cbc(country, "IdentificationCode", CountryFromVATID(p.vatID))

	if !blank(p.vatID) {
		taxScheme := el.CreateElement("cac:PartyTaxScheme")
		cbc(taxScheme, "CompanyID", p.vatID)
		scheme := taxScheme.CreateElement("cac:TaxScheme")
		cbc(scheme, "ID", TaxSchemeVAT)
	}

	legal := el.CreateElement("cac:PartyLegalEntity")
	cbc(legal, "RegistrationName", p.name)
}

func addPaymentMeans(root *etree.Element, inv *model.Invoice) {
	pm := root.CreateElement("cac:PaymentMeans")
	if blank(inv.IBAN) {
		cbc(pm, "PaymentMeansCode", PaymentMeansUnknown)
		return
	}

	cbc(pm, "PaymentMeansCode", PaymentMeansSEPA)
	account := pm.CreateElement("cac:PayeeFinancialAccount")
	cbc(account, "ID", compactIBAN(inv.IBAN))
	if !blank(inv.PaymentAccountName) {
		cbc(account, "Name", inv.PaymentAccountName)
	}
	if !blank(inv.BIC) {
		branch := account.CreateElement("cac:FinancialInstitutionBranch")
		cbc(branch, "ID", strings.TrimSpace(inv.BIC))
	}
}

func addTaxTotal(root *etree.Element, inv *model.Invoice) {
	total := root.CreateElement("cac:TaxTotal")
	amount(total, "TaxAmount", inv.TaxAmount, inv.Currency)

	sub := total.CreateElement("cac:TaxSubtotal")
	amount(sub, "TaxableAmount", inv.NetAmount, inv.Currency)
	amount(sub, "TaxAmount", inv.TaxAmount, inv.Currency)
	addTaxCategory(sub, "cac:TaxCategory", inv.TaxRate)
}

func addMonetaryTotal(root *etree.Element, inv *model.Invoice) {
	total := root.CreateElement("cac:LegalMonetaryTotal")
	amount(total, "LineExtensionAmount", inv.NetAmount, inv.Currency)
	amount(total, "TaxExclusiveAmount", inv.NetAmount, inv.Currency)
	amount(total, "TaxInclusiveAmount", inv.GrossAmount, inv.Currency)
	amount(total, "PayableAmount", inv.GrossAmount, inv.Currency)
}

func addInvoiceLines(root *etree.Element, inv *model.Invoice) {
	items := inv.LineItems
	if len(items) == 0 {
		items = []model.LineItem{fallbackLine(inv)}
	}

	for i := range items {
		item := &items[i]
		line := root.CreateElement("cac:InvoiceLine")
		cbc(line, "ID", strconv.Itoa(i+1))
		qty := cbc(line, "InvoicedQuantity", dec.Format2(item.EffectiveQuantity()))
		qty.CreateAttr("unitCode", UnitCodePiece)
		amount(line, "LineExtensionAmount", item.EffectiveNetAmount(), inv.Currency)

		it := line.CreateElement("cac:Item")
		cbc(it, "Name", firstNonBlank(item.Description, model.DefaultLineName))
		addTaxCategory(it, "cac:ClassifiedTaxCategory", item.EffectiveTaxRate(inv.TaxRate))

		price := line.CreateElement("cac:Price")
		amount(price, "PriceAmount", unitPrice(item), inv.Currency)
	}
}

// fallbackLine represents the whole document as one position
func fallbackLine(inv *model.Invoice) model.LineItem {
	return model.LineItem{
		Description: firstNonBlank(inv.Description, model.DefaultLineName),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   inv.NetAmount,
		NetAmount:   inv.NetAmount,
		TaxRate:     decimal.NewNullDecimal(inv.TaxRate),
	}
}

func unitPrice(item *model.LineItem) decimal.Decimal {
	if !item.UnitPrice.IsZero() {
		return item.UnitPrice
	}
	return item.EffectiveNetAmount().Div(item.EffectiveQuantity())
}

func addTaxCategory(parent *etree.Element, tag string, rate decimal.Decimal) {
	cat := parent.CreateElement(tag)
	cbc(cat, "ID", TaxCategoryStandard)
	cbc(cat, "Percent", dec.Format2(rate))
	scheme := cat.CreateElement("cac:TaxScheme")
	cbc(scheme, "ID", TaxSchemeVAT)
}

func cbc(parent *etree.Element, tag, text string) *etree.Element {
	el := parent.CreateElement("cbc:" + tag)
	el.SetText(text)
	return el
}

func amount(parent *etree.Element, tag string, value decimal.Decimal, currency string) *etree.Element {
	el := cbc(parent, tag, dec.Format2(value))
	el.CreateAttr("currencyID", currency)
	return el
}

func compactIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if !blank(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
