package xrechnung

import (
	"bytes"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// CanParse returns true if content looks like a UBL invoice
func CanParse(content []byte) bool {
	return bytes.Contains(content, []byte(NamespaceInvoice))
}

// Parse reads a UBL 2.1 invoice back into an Invoice record.
// Postal address parts are joined as "street, postal city".
func Parse(r io.Reader) (*model.Invoice, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FormatUBL, "content", "failed to read content", err)
	}
	return ParseBytes(content)
}

// ParseBytes is Parse over an in-memory document
func ParseBytes(content []byte) (*model.Invoice, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, model.NewParseError(model.FormatUBL, "xml", "failed to parse XML", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Invoice" || root.NamespaceURI() != NamespaceInvoice {
		return nil, model.NewParseError(model.FormatUBL, "root", "not a UBL 2.1 Invoice document", nil)
	}

	inv := &model.Invoice{
		InvoiceNumber:  text(root, "cbc:ID"),
		InvoiceDate:    text(root, "cbc:IssueDate"),
		DueDate:        text(root, "cbc:DueDate"),
		Currency:       text(root, "cbc:DocumentCurrencyCode"),
		BuyerReference: text(root, "cbc:BuyerReference"),
	}

	if p := root.FindElement("cac:AccountingSupplierParty/cac:Party"); p != nil {
		pr := readParty(p)
		inv.SellerName = pr.name
		inv.SellerVATID = pr.vatID
		inv.SellerAddress = pr.address
		inv.SellerEndpointID = pr.endpointID
		inv.SellerEndpointScheme = pr.endpointScheme
	}
	if p := root.FindElement("cac:AccountingCustomerParty/cac:Party"); p != nil {
		pr := readParty(p)
		inv.BuyerName = pr.name
		inv.BuyerVATID = pr.vatID
		inv.BuyerAddress = pr.address
		inv.BuyerEndpointID = pr.endpointID
		inv.BuyerEndpointScheme = pr.endpointScheme
	}

	if account := root.FindElement("cac:PaymentMeans/cac:PayeeFinancialAccount"); account != nil {
		inv.IBAN = text(account, "cbc:ID")
		inv.PaymentAccountName = text(account, "cbc:Name")
		inv.BIC = text(account, "cac:FinancialInstitutionBranch/cbc:ID")
	}

	var err error
	if inv.TaxAmount, err = amountAt(root, "cac:TaxTotal/cbc:TaxAmount"); err != nil {
		return nil, err
	}
	if inv.TaxRate, err = amountAt(root, "cac:TaxTotal/cac:TaxSubtotal/cac:TaxCategory/cbc:Percent"); err != nil {
		return nil, err
	}
	if inv.NetAmount, err = amountAt(root, "cac:LegalMonetaryTotal/cbc:TaxExclusiveAmount"); err != nil {
		return nil, err
	}
	if inv.GrossAmount, err = amountAt(root, "cac:LegalMonetaryTotal/cbc:PayableAmount"); err != nil {
		return nil, err
	}

	for _, line := range root.SelectElements("cac:InvoiceLine") {
		item := model.LineItem{
			Description: text(line, "cac:Item/cbc:Name"),
		}
		if item.Quantity, err = amountAt(line, "cbc:InvoicedQuantity"); err != nil {
			return nil, err
		}
		if item.NetAmount, err = amountAt(line, "cbc:LineExtensionAmount"); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = amountAt(line, "cac:Price/cbc:PriceAmount"); err != nil {
			return nil, err
		}
		if el := line.FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:Percent"); el != nil {
			rate, err := parseAmount("cbc:Percent", el.Text())
			if err != nil {
				return nil, err
			}
			item.TaxRate = decimal.NewNullDecimal(rate)
		}
		inv.LineItems = append(inv.LineItems, item)
	}

	return inv, nil
}

type partyRecord struct {
	name           string
	vatID          string
	address        string
	endpointID     string
	endpointScheme string
}

func readParty(p *etree.Element) partyRecord {
	pr := partyRecord{
		name:  text(p, "cac:PartyName/cbc:Name"),
		vatID: text(p, "cac:PartyTaxScheme/cbc:CompanyID"),
	}
	if pr.name == "" {
		pr.name = text(p, "cac:PartyLegalEntity/cbc:RegistrationName")
	}
	if ep := p.SelectElement("cbc:EndpointID"); ep != nil {
		pr.endpointID = strings.TrimSpace(ep.Text())
		pr.endpointScheme = ep.SelectAttrValue("schemeID", "")
	}

	if postal := p.SelectElement("cac:PostalAddress"); postal != nil {
		street := text(postal, "cbc:StreetName")
		cityLine := strings.TrimSpace(text(postal, "cbc:PostalZone") + " " + text(postal, "cbc:CityName"))
		switch {
		case street != "" && cityLine != "":
			pr.address = street + ", " + cityLine
		case street != "":
			pr.address = street
		default:
			pr.address = cityLine
		}
	}
	return pr
}

func text(el *etree.Element, path string) string {
	found := el.FindElement(path)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

func amountAt(el *etree.Element, path string) (decimal.Decimal, error) {
	v := text(el, path)
	if v == "" {
		return decimal.Zero, nil
	}
	return parseAmount(path, v)
}

func parseAmount(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, model.NewParseError(model.FormatUBL, field, "invalid amount "+v, err)
	}
	return d, nil
}
