package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoices against the XRechnung business rules",
	Long: `Validate JSON invoice records, UBL XML invoices or hybrid PDFs.

Checks performed:
  - BT-1  invoice number present
  - BT-2  invoice date present
  - BT-27 seller name present
  - BT-31 seller VAT ID present
  - BT-44 buyer name present
  - BR-CO-15 gross amount = net amount + tax amount (tolerance 0.01)

Examples:
  rechnungswerk validate invoice.json
  rechnungswerk validate *.xml -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	results := make([]*ValidationResult, 0, len(files))
	allValid := true

	for _, file := range files {
		result := validateFile(cmd.Context(), file)
		results = append(results, result)

		if !result.Valid {
			allValid = false
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(out, "✓ %s: VALID\n", r.File)
			} else {
				fmt.Fprintf(out, "✗ %s: INVALID\n", r.File)
				for _, e := range r.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}
			for _, w := range r.Warnings {
				fmt.Fprintf(out, "  ⚠ %s\n", w)
			}
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}

	return nil
}

func validateFile(ctx context.Context, filePath string) *ValidationResult {
	result := &ValidationResult{
		File:     filePath,
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	data, err := readInput(nil, filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	inv, err := readInvoice(ctx, data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("parse error: %v", err))
		return result
	}
	result.InvoiceNumber = inv.InvoiceNumber

	for _, v := range xrechnung.Validate(inv) {
		result.Valid = false
		result.Errors = append(result.Errors, v.Message)
	}

	if xrechnung.MixedTaxRates(inv) {
		result.Warnings = append(result.Warnings, "line items carry different tax rates; document tax total uses a single rate")
	}
	for i, item := range inv.LineItems {
		if item.Description == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line item %d: missing description", i+1))
		}
	}

	return result
}

// ValidationResult holds the result of validating a single file
type ValidationResult struct {
	File          string   `json:"file"`
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}
