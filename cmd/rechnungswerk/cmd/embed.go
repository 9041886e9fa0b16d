package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

var (
	embedOutput string
	embedName   string
)

var embedCmd = &cobra.Command{
	Use:   "embed <invoice.pdf> <invoice.xml>",
	Short: "Attach invoice XML to a PDF",
	Long: `Attach an XRechnung / UBL XML document to an existing PDF as an embedded
file, the container used by ZUGFeRD / Factur-X hybrid invoices.

The XML must be a readable UBL invoice. The PDF itself is not converted to
PDF/A-3.

Examples:
  rechnungswerk embed rechnung.pdf rechnung.xml -o hybrid.pdf
  rechnungswerk embed rechnung.pdf rechnung.xml --name factur-x.xml -o hybrid.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "Output PDF (required)")
	embedCmd.Flags().StringVar(&embedName, "name", zugferd.XRechnungName, "Attachment name inside the PDF")
	_ = embedCmd.MarkFlagRequired("output")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	pdf, err := readInput(nil, args[0])
	if err != nil {
		return err
	}
	xml, err := readInput(nil, args[1])
	if err != nil {
		return err
	}

	inv, err := xmlparser.Parse(cmd.Context(), xml)
	if err != nil {
		return fmt.Errorf("%s is not a UBL or CII invoice: %w", args[1], err)
	}

	name := embedName
	if !cmd.Flags().Changed("name") && xmlparser.DetectSyntax(xml) == model.FormatCII {
		name = zugferd.FacturXName
	}

	w, closeOutput, err := createOutput(cmd.OutOrStdout(), embedOutput)
	if err != nil {
		return err
	}
	defer closeOutput()

	if err := zugferd.EmbedXML(bytes.NewReader(pdf), w, xml, name); err != nil {
		return err
	}

	log.Info("embedded invoice xml",
		"invoice_number", inv.InvoiceNumber,
		"attachment", name,
		"output", embedOutput,
	)
	return nil
}
