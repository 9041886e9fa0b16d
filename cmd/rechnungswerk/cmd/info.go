package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/processor"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show information about invoice files",
	Long: `Display information about invoice files without full processing.

Shows:
  - Detected file format (XML, PDF, image, JSON, text)
  - Whether a UBL invoice (or embedded invoice XML) is present
  - File metadata

Examples:
  rechnungswerk info invoice.xml
  rechnungswerk info *.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	out := cmd.OutOrStdout()
	for _, file := range files {
		printFileInfo(cmd.Context(), out, file)
		fmt.Fprintln(out)
	}

	return nil
}

func printFileInfo(ctx context.Context, w io.Writer, filePath string) {
	fmt.Fprintf(w, "File: %s\n", filePath)

	info, err := os.Stat(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "  Size: %d bytes\n", info.Size())
	fmt.Fprintf(w, "  Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error reading file: %v\n", err)
		return
	}

	format := processor.DetectFormat(data)
	fmt.Fprintf(w, "  Format: %s\n", formatName(format))

	switch format {
	case processor.FormatXML:
		printInvoiceXML(ctx, w, data)
		if preview := getPreview(string(data), 200); preview != "" {
			fmt.Fprintf(w, "  Preview: %s\n", preview)
		}
	case processor.FormatPDF:
		xml, err := zugferd.ExtractXML(bytes.NewReader(data))
		if err != nil {
			fmt.Fprintln(w, "  Embedded invoice XML: none")
			return
		}
		fmt.Fprintf(w, "  Embedded invoice XML: %d bytes\n", len(xml))
		printInvoiceXML(ctx, w, xml)
	case processor.FormatImage:
		fmt.Fprintf(w, "  MIME type: %s\n", processor.DetectMimeType(data))
	}
}

func printInvoiceXML(ctx context.Context, w io.Writer, data []byte) {
	syntax := xmlparser.DetectSyntax(data)
	if syntax == model.FormatUnknown {
		fmt.Fprintln(w, "  Document: not a UBL or CII invoice")
		return
	}

	inv, err := xmlparser.Parse(ctx, data)
	if err != nil {
		fmt.Fprintf(w, "  Document: %s invoice (unreadable: %v)\n", syntax, err)
		return
	}
	fmt.Fprintf(w, "  Document: %s invoice\n", syntax)
	fmt.Fprintf(w, "  Invoice: %s (%s)\n", inv.InvoiceNumber, inv.InvoiceDate)
	fmt.Fprintf(w, "  Seller: %s\n", inv.SellerName)
	fmt.Fprintf(w, "  Gross: %s %s\n", inv.GrossAmount.StringFixed(2), inv.CurrencyOrDefault())
}

func formatName(f processor.Format) string {
	switch f {
	case processor.FormatXML:
		return "XML"
	case processor.FormatPDF:
		return "PDF"
	case processor.FormatImage:
		return "Image"
	case processor.FormatJSON:
		return "JSON (extracted fields)"
	case processor.FormatText:
		return "Text (OCR output)"
	default:
		return "Unknown"
	}
}

func getPreview(content string, maxLen int) string {
	// Remove XML declaration
	if idx := strings.Index(content, "?>"); idx >= 0 {
		content = content[idx+2:]
	}

	content = strings.Join(strings.Fields(content), " ")

	if len(content) > maxLen {
		content = content[:maxLen] + "..."
	}

	return content
}
