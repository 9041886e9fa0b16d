package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// NamespaceCII is the root namespace of ZUGFeRD 2.x / Factur-X documents
const NamespaceCII = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"

// CII XML structures. Elements are matched by local name, so the rsm/ram/udt
// prefixes used by producers do not matter.
type ciiInvoice struct {
	XMLName     xml.Name       `xml:"CrossIndustryInvoice"`
	Document    ciiDocument    `xml:"ExchangedDocument"`
	Transaction ciiTransaction `xml:"SupplyChainTradeTransaction"`
}

type ciiDocument struct {
	ID        string  `xml:"ID"`
	TypeCode  string  `xml:"TypeCode"`
	IssueDate ciiDate `xml:"IssueDateTime>DateTimeString"`
}

type ciiDate struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

type ciiTransaction struct {
	Lines      []ciiLine     `xml:"IncludedSupplyChainTradeLineItem"`
	Agreement  ciiAgreement  `xml:"ApplicableHeaderTradeAgreement"`
	Settlement ciiSettlement `xml:"ApplicableHeaderTradeSettlement"`
}

type ciiLine struct {
	Name      string `xml:"SpecifiedTradeProduct>Name"`
	NetPrice  string `xml:"SpecifiedLineTradeAgreement>NetPriceProductTradePrice>ChargeAmount"`
	Quantity  string `xml:"SpecifiedLineTradeDelivery>BilledQuantity"`
	TaxRate   string `xml:"SpecifiedLineTradeSettlement>ApplicableTradeTax>RateApplicablePercent"`
	LineTotal string `xml:"SpecifiedLineTradeSettlement>SpecifiedTradeSettlementLineMonetarySummation>LineTotalAmount"`
}

type ciiAgreement struct {
	BuyerReference string   `xml:"BuyerReference"`
	Seller         ciiParty `xml:"SellerTradeParty"`
	Buyer          ciiParty `xml:"BuyerTradeParty"`
}

type ciiParty struct {
	Name             string     `xml:"Name"`
	Address          ciiAddress `xml:"PostalTradeAddress"`
	Endpoint         ciiID      `xml:"URIUniversalCommunication>URIID"`
	TaxRegistrations []ciiID    `xml:"SpecifiedTaxRegistration>ID"`
}

type ciiAddress struct {
	Postcode string `xml:"PostcodeCode"`
	LineOne  string `xml:"LineOne"`
	City     string `xml:"CityName"`
	Country  string `xml:"CountryID"`
}

type ciiID struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type ciiSettlement struct {
	Currency     string            `xml:"InvoiceCurrencyCode"`
	PaymentMeans []ciiPaymentMeans `xml:"SpecifiedTradeSettlementPaymentMeans"`
	Taxes        []ciiTax          `xml:"ApplicableTradeTax"`
	DueDate      ciiDate           `xml:"SpecifiedTradePaymentTerms>DueDateDateTime>DateTimeString"`
	Totals       ciiTotals         `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type ciiPaymentMeans struct {
	IBAN        string `xml:"PayeePartyCreditorFinancialAccount>IBANID"`
	AccountName string `xml:"PayeePartyCreditorFinancialAccount>AccountName"`
	BIC         string `xml:"PayeeSpecifiedCreditorFinancialInstitution>BICID"`
}

type ciiTax struct {
	Calculated string `xml:"CalculatedAmount"`
	Basis      string `xml:"BasisAmount"`
	Rate       string `xml:"RateApplicablePercent"`
}

type ciiTotals struct {
	LineTotal  string   `xml:"LineTotalAmount"`
	TaxBasis   string   `xml:"TaxBasisTotalAmount"`
	TaxTotal   []string `xml:"TaxTotalAmount"`
	GrandTotal string   `xml:"GrandTotalAmount"`
	DuePayable string   `xml:"DuePayableAmount"`
}

// CIIAdapter parses UN/CEFACT Cross Industry Invoices (ZUGFeRD, Factur-X)
type CIIAdapter struct{}

// NewCIIAdapter creates a new CII adapter
func NewCIIAdapter() *CIIAdapter {
	return &CIIAdapter{}
}

// Syntax returns the syntax this adapter reads
func (a *CIIAdapter) Syntax() model.Format {
	return model.FormatCII
}

// CanParse checks for the CII root namespace
func (a *CIIAdapter) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte(NamespaceCII))
}

// Parse parses CII XML into Invoice
func (a *CIIAdapter) Parse(_ context.Context, r io.Reader) (*model.Invoice, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FormatCII, "content", "failed to read content", err)
	}

	var doc ciiInvoice
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError(model.FormatCII, "xml", "failed to parse XML", err)
	}
	if doc.XMLName.Space != NamespaceCII {
		return nil, model.NewParseError(model.FormatCII, "root", "not a CrossIndustryInvoice document", nil)
	}

	return a.convertInvoice(&doc)
}

func (a *CIIAdapter) convertInvoice(doc *ciiInvoice) (*model.Invoice, error) {
	agreement := doc.Transaction.Agreement
	settlement := doc.Transaction.Settlement

	result := &model.Invoice{
		InvoiceNumber:        strings.TrimSpace(doc.Document.ID),
		InvoiceDate:          parseDate(doc.Document.IssueDate),
		DueDate:              parseDate(settlement.DueDate),
		SellerName:           strings.TrimSpace(agreement.Seller.Name),
		SellerVATID:          vatID(agreement.Seller.TaxRegistrations),
		SellerAddress:        joinAddress(agreement.Seller.Address),
		SellerEndpointID:     strings.TrimSpace(agreement.Seller.Endpoint.Value),
		SellerEndpointScheme: agreement.Seller.Endpoint.SchemeID,
		BuyerName:            strings.TrimSpace(agreement.Buyer.Name),
		BuyerVATID:           vatID(agreement.Buyer.TaxRegistrations),
		BuyerAddress:         joinAddress(agreement.Buyer.Address),
		BuyerEndpointID:      strings.TrimSpace(agreement.Buyer.Endpoint.Value),
		BuyerEndpointScheme:  agreement.Buyer.Endpoint.SchemeID,
		BuyerReference:       strings.TrimSpace(agreement.BuyerReference),
		Currency:             strings.TrimSpace(settlement.Currency),
	}

	if len(settlement.PaymentMeans) > 0 {
		pm := settlement.PaymentMeans[0]
		result.IBAN = strings.TrimSpace(pm.IBAN)
		result.BIC = strings.TrimSpace(pm.BIC)
		result.PaymentAccountName = strings.TrimSpace(pm.AccountName)
	}

	var err error
	totals := settlement.Totals
	if result.NetAmount, err = parseAmount("TaxBasisTotalAmount", firstNonEmpty(totals.TaxBasis, totals.LineTotal)); err != nil {
		return nil, err
	}
	if result.GrossAmount, err = parseAmount("GrandTotalAmount", totals.GrandTotal); err != nil {
		return nil, err
	}

	if len(totals.TaxTotal) > 0 {
		if result.TaxAmount, err = parseAmount("TaxTotalAmount", totals.TaxTotal[0]); err != nil {
			return nil, err
		}
	} else {
		for _, tax := range settlement.Taxes {
			amount, err := parseAmount("CalculatedAmount", tax.Calculated)
			if err != nil {
				return nil, err
			}
			result.TaxAmount = result.TaxAmount.Add(amount)
		}
	}
	if len(settlement.Taxes) > 0 {
		if result.TaxRate, err = parseAmount("RateApplicablePercent", settlement.Taxes[0].Rate); err != nil {
			return nil, err
		}
	}

	for _, line := range doc.Transaction.Lines {
		item := model.LineItem{
			Description: strings.TrimSpace(line.Name),
		}
		if item.Quantity, err = parseAmount("BilledQuantity", line.Quantity); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = parseAmount("ChargeAmount", line.NetPrice); err != nil {
			return nil, err
		}
		if item.NetAmount, err = parseAmount("LineTotalAmount", line.LineTotal); err != nil {
			return nil, err
		}
		if strings.TrimSpace(line.TaxRate) != "" {
			rate, err := parseAmount("RateApplicablePercent", line.TaxRate)
			if err != nil {
				return nil, err
			}
			item.TaxRate = decimal.NewNullDecimal(rate)
		}
		result.LineItems = append(result.LineItems, item)
	}

	return result, nil
}

// parseDate converts format 102 (CCYYMMDD) to ISO 8601; other formats are kept as-is
func parseDate(d ciiDate) string {
	v := strings.TrimSpace(d.Value)
	if d.Format != "" && d.Format != "102" {
		return v
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return v
	}
	return t.Format(time.DateOnly)
}

// parseAmount treats a missing amount as zero
func parseAmount(field, v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, model.NewParseError(model.FormatCII, field, "invalid amount "+v, err)
	}
	return d, nil
}

// vatID prefers the VAT registration (scheme VA) over the tax number (FC)
func vatID(ids []ciiID) string {
	fallback := ""
	for _, id := range ids {
		switch id.SchemeID {
		case "VA":
			return strings.TrimSpace(id.Value)
		case "FC":
			if fallback == "" {
				fallback = strings.TrimSpace(id.Value)
			}
		}
	}
	return fallback
}

func joinAddress(a ciiAddress) string {
	city := strings.TrimSpace(strings.TrimSpace(a.Postcode) + " " + strings.TrimSpace(a.City))
	street := strings.TrimSpace(a.LineOne)
	switch {
	case street == "":
		return city
	case city == "":
		return street
	default:
		return street + ", " + city
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
