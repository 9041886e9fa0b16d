package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/model"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

var (
	generateOutput string
	generatePDF    string
	attachmentName string
)

var generateCmd = &cobra.Command{
	Use:   "generate [invoice.json]",
	Short: "Generate an XRechnung XML from a JSON invoice record",
	Long: `Validate a JSON invoice record and write the XRechnung 3.0 (UBL 2.1) XML.

Mandatory fields are invoice_number, invoice_date, seller_name, seller_vat_id
and buyer_name; gross_amount must equal net_amount + tax_amount within 0.01.
All violations are reported at once.

With --pdf the XML is attached to an existing PDF instead, producing a
ZUGFeRD / Factur-X style hybrid invoice.

Examples:
  rechnungswerk generate invoice.json
  rechnungswerk generate invoice.json -o invoice.xml
  cat invoice.json | rechnungswerk generate -
  rechnungswerk generate invoice.json --pdf rechnung.pdf -o hybrid.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Output file (default: stdout)")
	generateCmd.Flags().StringVar(&generatePDF, "pdf", "", "Attach the XML to this PDF")
	generateCmd.Flags().StringVar(&attachmentName, "attachment-name", zugferd.XRechnungName, "Attachment name inside the PDF")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	inv, err := readInvoice(cmd.Context(), data)
	if err != nil {
		return err
	}

	xml, err := xrechnung.NewGenerator().Generate(inv)
	if err != nil {
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			for _, msg := range validationErr.Messages() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", msg)
			}
			return fmt.Errorf("invoice is not valid (%d violations)", len(validationErr.Violations))
		}
		return err
	}

	if xrechnung.MixedTaxRates(inv) {
		log.Warn("line items carry different tax rates; the XML contains a single tax subtotal",
			"invoice_number", inv.InvoiceNumber)
	}

	w, closeOutput, err := createOutput(cmd.OutOrStdout(), generateOutput)
	if err != nil {
		return err
	}
	defer closeOutput()

	if generatePDF == "" {
		_, err = w.Write(xml)
		return err
	}

	pdf, err := os.ReadFile(generatePDF)
	if err != nil {
		return fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := zugferd.EmbedXML(bytes.NewReader(pdf), w, xml, attachmentName); err != nil {
		return err
	}
	printVerbose("Attached %s to %s\n", attachmentName, generatePDF)
	return nil
}
