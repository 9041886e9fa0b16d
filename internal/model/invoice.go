package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Default values applied by the XRechnung generator after validation
const (
	DefaultCurrency       = "EUR"
	DefaultBuyerReference = "n/a"
	DefaultEndpointID     = "unknown@example.com"
	DefaultEndpointScheme = "EM"
	DefaultCountryCode    = "DE"
	DefaultLineName       = "Leistung"
)

// Invoice is the structured invoice record supplied by callers.
// JSON names follow the EN 16931 field naming used throughout the API.
type Invoice struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	DueDate       string `json:"due_date,omitempty"`

	SellerName           string `json:"seller_name"`
	SellerVATID          string `json:"seller_vat_id,omitempty"`
	SellerAddress        string `json:"seller_address,omitempty"`
	SellerEndpointID     string `json:"seller_endpoint_id,omitempty"`
	SellerEndpointScheme string `json:"seller_endpoint_scheme,omitempty"`

	BuyerName           string `json:"buyer_name"`
	BuyerVATID          string `json:"buyer_vat_id,omitempty"`
	BuyerAddress        string `json:"buyer_address,omitempty"`
	BuyerEndpointID     string `json:"buyer_endpoint_id,omitempty"`
	BuyerEndpointScheme string `json:"buyer_endpoint_scheme,omitempty"`
	BuyerReference      string `json:"buyer_reference,omitempty"`

	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Currency    string          `json:"currency,omitempty"`

	IBAN               string `json:"iban,omitempty"`
	BIC                string `json:"bic,omitempty"`
	PaymentAccountName string `json:"payment_account_name,omitempty"`

	// Description names the synthetic line emitted when LineItems is empty
	Description string     `json:"description,omitempty"`
	LineItems   []LineItem `json:"line_items,omitempty"`
}

// LineItem is a single invoice position
type LineItem struct {
	Description string              `json:"description"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	NetAmount   decimal.Decimal     `json:"net_amount"`
	TaxRate     decimal.NullDecimal `json:"tax_rate"`
}

// CurrencyOrDefault returns the document currency, EUR when unset
func (inv *Invoice) CurrencyOrDefault() string {
	if inv.Currency == "" {
		return DefaultCurrency
	}
	return inv.Currency
}

// EffectiveQuantity returns the quantity, treating an unset (zero) quantity as 1
func (li *LineItem) EffectiveQuantity() decimal.Decimal {
	if li.Quantity.IsZero() {
		return decimal.NewFromInt(1)
	}
	return li.Quantity
}

// EffectiveNetAmount returns the stated net amount or quantity * unit price
func (li *LineItem) EffectiveNetAmount() decimal.Decimal {
	if !li.NetAmount.IsZero() {
		return li.NetAmount
	}
	return li.EffectiveQuantity().Mul(li.UnitPrice).Round(2)
}

// EffectiveTaxRate returns the item rate or the document fallback
func (li *LineItem) EffectiveTaxRate(fallback decimal.Decimal) decimal.Decimal {
	if li.TaxRate.Valid {
		return li.TaxRate.Decimal
	}
	return fallback
}

// Fields converts the invoice into the loosely typed field map used for
// confidence scoring. Amounts become float64 like JSON-decoded LLM output.
func (inv *Invoice) Fields() Fields {
	f := Fields{
		"invoice_number":       inv.InvoiceNumber,
		"invoice_date":         inv.InvoiceDate,
		"due_date":             inv.DueDate,
		"seller_name":          inv.SellerName,
		"seller_vat_id":        inv.SellerVATID,
		"seller_address":       inv.SellerAddress,
		"seller_endpoint_id":   inv.SellerEndpointID,
		"buyer_name":           inv.BuyerName,
		"buyer_vat_id":         inv.BuyerVATID,
		"buyer_address":        inv.BuyerAddress,
		"buyer_endpoint_id":    inv.BuyerEndpointID,
		"buyer_reference":      inv.BuyerReference,
		"net_amount":           inv.NetAmount.InexactFloat64(),
		"tax_amount":           inv.TaxAmount.InexactFloat64(),
		"gross_amount":         inv.GrossAmount.InexactFloat64(),
		"tax_rate":             inv.TaxRate.InexactFloat64(),
		"currency":             inv.Currency,
		"iban":                 inv.IBAN,
		"bic":                  inv.BIC,
		"payment_account_name": inv.PaymentAccountName,
	}

	items := make([]any, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		item := map[string]any{
			"description": li.Description,
			"quantity":    li.Quantity.InexactFloat64(),
			"unit_price":  li.UnitPrice.InexactFloat64(),
			"net_amount":  li.NetAmount.InexactFloat64(),
		}
		if li.TaxRate.Valid {
			item["tax_rate"] = li.TaxRate.Decimal.InexactFloat64()
		}
		items = append(items, item)
	}
	f["line_items"] = items

	return f
}

// DecodeInvoice converts an extracted field map into a typed Invoice.
// Fields that cannot be represented (e.g. "1.500,00" as an amount) yield an error.
func DecodeInvoice(fields Fields) (*Invoice, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	var inv Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, NewParseError(FormatJSON, "fields", "fields do not form a valid invoice", err)
	}
	return &inv, nil
}
