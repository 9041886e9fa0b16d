package cmd

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

var extractOutput string

var extractXMLCmd = &cobra.Command{
	Use:   "extract-xml <invoice.pdf>",
	Short: "Extract the embedded invoice XML from a PDF",
	Long: `Write the invoice XML embedded in a ZUGFeRD / Factur-X / XRechnung hybrid PDF.

The attachment named factur-x.xml, zugferd-invoice.xml or xrechnung.xml is
preferred; otherwise the first XML attachment is used.

Examples:
  rechnungswerk extract-xml hybrid.pdf
  rechnungswerk extract-xml hybrid.pdf -o invoice.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runExtractXML,
}

func init() {
	rootCmd.AddCommand(extractXMLCmd)

	extractXMLCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output file (default: stdout)")
}

func runExtractXML(cmd *cobra.Command, args []string) error {
	pdf, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	xml, err := zugferd.ExtractXML(bytes.NewReader(pdf))
	if err != nil {
		return err
	}

	w, closeOutput, err := createOutput(cmd.OutOrStdout(), extractOutput)
	if err != nil {
		return err
	}
	defer closeOutput()

	_, err = w.Write(xml)
	return err
}
