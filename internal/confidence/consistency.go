package confidence

import (
	"fmt"

	"github.com/shopspring/decimal"

	dec "github.com/rechnungswerk/einvoice/internal/decimal"
	"github.com/rechnungswerk/einvoice/internal/model"
)

// Consistency check names
const (
	CheckTotals    = "Netto + MwSt = Brutto"
	CheckTax       = "MwSt = Netto * Steuersatz"
	CheckLineItems = "Summe Positionen = Nettobetrag"
)

var (
	amountTolerance   = decimal.RequireFromString("0.02")
	lineItemTolerance = decimal.RequireFromString("0.05")
	defaultTaxRate    = decimal.NewFromInt(19)
)

// checkConsistency runs the cross-field checks whose preconditions hold.
// The returned slice is never nil.
func checkConsistency(fields model.Fields) []ConsistencyCheck {
	checks := []ConsistencyCheck{}

	net, netOK := dec.ToDecimal(fields.Get("net_amount"))
	tax := taxAmount(fields.Get("tax_amount"))
	gross, grossOK := dec.ToDecimal(fields.Get("gross_amount"))

	if netOK && net.IsPositive() && dec.IsNonNegative(tax) && grossOK && gross.IsPositive() {
		expected := dec.Round2(net.Add(tax))
		checks = append(checks, ConsistencyCheck{
			Check:  CheckTotals,
			Passed: dec.WithinTolerance(gross, expected, amountTolerance),
			Detail: fmt.Sprintf("%s + %s = %s (Brutto: %s)",
				dec.Format2(net), dec.Format2(tax), dec.Format2(expected), dec.Format2(gross)),
		})
	}

	if rate, ok := taxRate(fields.Get("tax_rate")); ok && netOK && net.IsPositive() && rate.IsPositive() {
		expected := dec.CalculateVAT(net, rate)
		checks = append(checks, ConsistencyCheck{
			Check:  CheckTax,
			Passed: dec.WithinTolerance(tax, expected, amountTolerance),
			Detail: fmt.Sprintf("%s * %s%% = %s (MwSt: %s)",
				dec.Format2(net), rate.String(), dec.Format2(expected), dec.Format2(tax)),
		})
	}

	if items, ok := asList(fields.Get("line_items")); ok && len(items) > 0 {
		sum := dec.Round2(sumLineItems(items))
		checks = append(checks, ConsistencyCheck{
			Check:  CheckLineItems,
			Passed: dec.WithinTolerance(sum, net, lineItemTolerance),
			Detail: fmt.Sprintf("Summe %s (Netto: %s)", dec.Format2(sum), dec.Format2(net)),
		})
	}

	return checks
}

// taxRate applies the 19% default only when no rate was extracted at all
func taxRate(v any) (decimal.Decimal, bool) {
	if v == nil || v == "" {
		return defaultTaxRate, true
	}
	return dec.ToDecimal(v)
}

// taxAmount reads a missing or unreadable tax amount as 0
func taxAmount(v any) decimal.Decimal {
	tax, ok := dec.ToDecimal(v)
	if !ok {
		return decimal.Zero
	}
	return tax
}

// sumLineItems adds item net amounts, falling back to quantity * unit price
func sumLineItems(items []any) decimal.Decimal {
	var amounts []decimal.Decimal
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := dec.ToDecimal(m["net_amount"]); ok {
			amounts = append(amounts, n)
			continue
		}
		qty, ok := dec.ToDecimal(m["quantity"])
		if !ok {
			qty = decimal.NewFromInt(1)
		}
		price, _ := dec.ToDecimal(m["unit_price"])
		amounts = append(amounts, qty.Mul(price))
	}
	return dec.Sum(amounts)
}
