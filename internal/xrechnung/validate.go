package xrechnung

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	dec "github.com/rechnungswerk/einvoice/internal/decimal"
	"github.com/rechnungswerk/einvoice/internal/model"
)

// Business terms and rules checked before generation
const (
	RuleInvoiceNumber = "BT-1"
	RuleInvoiceDate   = "BT-2"
	RuleSellerName    = "BT-27"
	RuleSellerVATID   = "BT-31"
	RuleBuyerName     = "BT-44"
	RuleTotals        = "BR-CO-15"
)

var totalsTolerance = decimal.RequireFromString("0.01")

// Validate checks mandatory business terms and the gross total rule.
// All violations are collected; an empty result means the invoice can be generated.
func Validate(inv *model.Invoice) []model.Violation {
	var violations []model.Violation

	add := func(rule, text string) {
		violations = append(violations, model.Violation{
			Rule:    rule,
			Message: rule + ": " + text,
		})
	}

	if blank(inv.InvoiceNumber) {
		add(RuleInvoiceNumber, "Rechnungsnummer fehlt")
	}
	if blank(inv.InvoiceDate) {
		add(RuleInvoiceDate, "Rechnungsdatum fehlt")
	}
	if blank(inv.SellerName) {
		add(RuleSellerName, "Verkäufername fehlt")
	}
	if blank(inv.SellerVATID) {
		add(RuleSellerVATID, "Verkäufer USt-ID fehlt (empfohlen)")
	}
	if blank(inv.BuyerName) {
		add(RuleBuyerName, "Käufername fehlt")
	}

	expected := dec.Round2(inv.NetAmount).Add(dec.Round2(inv.TaxAmount))
	gross := dec.Round2(inv.GrossAmount)
	if !dec.WithinTolerance(gross, expected, totalsTolerance) {
		add(RuleTotals, fmt.Sprintf("Gesamtbetrag %s != Netto+MwSt %s", dec.Format2(gross), dec.Format2(expected)))
	}

	return violations
}

// MixedTaxRates reports whether line items carry a rate different from the
// document rate. The generator still emits a single TaxSubtotal in that case.
func MixedTaxRates(inv *model.Invoice) bool {
	for _, li := range inv.LineItems {
		if !li.EffectiveTaxRate(inv.TaxRate).Equal(inv.TaxRate) {
			return true
		}
	}
	return false
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
