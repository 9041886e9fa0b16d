package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/confidence"
	"github.com/rechnungswerk/einvoice/internal/model"
)

var (
	outputFile string
	timeout    time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process invoice files",
	Long: `Process one or more invoice files, extract their fields and score them.

Supported formats:
  - XML: UBL 2.1 / XRechnung (.xml)
  - PDF: ZUGFeRD / Factur-X with embedded XML (.pdf)
  - JSON: already extracted fields (.json)
  - Text: OCR output (.txt)
  - Images: .png, .jpg, .jpeg, .tiff, .gif, .webp

The extraction flow:
  1. XML and hybrid PDFs: direct parsing (no LLM needed)
  2. JSON fields: scored as-is
  3. OCR text: LLM text extraction
  4. Images: LLM vision extraction

Files are processed in parallel (config: concurrency).

Examples:
  rechnungswerk process invoice.xml
  rechnungswerk process scan.png --llm-base-url http://localhost:11434/v1
  rechnungswerk process *.xml -o results.json
  rechnungswerk process invoices/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	processCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Timeout for the whole batch")
}

func runProcess(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to process")
	}

	printVerbose("Found %d files to process\n", len(files))

	results := make([]*ProcessResult, len(files))
	inputs := make([][]byte, 0, len(files))
	index := make([]int, 0, len(files))
	for i, file := range files {
		results[i] = &ProcessResult{File: file}

		data, err := readInput(nil, file)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		inputs = append(inputs, data)
		index = append(index, i)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	processed, err := newPipeline().ProcessBatch(ctx, inputs)
	for j, pr := range processed {
		result := results[index[j]]
		if pr.Error != nil {
			result.Error = pr.Error.Error()
			printVerbose("%s: error: %s\n", result.File, result.Error)
			continue
		}

		result.Method = string(pr.Method)
		result.Invoice = pr.Invoice
		result.Fields = pr.Fields
		result.Report = pr.Report
		result.Confidence = pr.Report.OverallConfidence
		result.NeedsReview = pr.NeedsReview
		result.Warnings = pr.Warnings
		printVerbose("%s: method %s, confidence %.2f\n", result.File, result.Method, result.Confidence)
	}
	if err != nil {
		return fmt.Errorf("batch aborted: %w", err)
	}

	return outputResults(cmd.OutOrStdout(), results)
}

func outputResults(stdout io.Writer, results []*ProcessResult) error {
	w, closeOutput, err := createOutput(stdout, outputFile)
	if err != nil {
		return err
	}
	defer closeOutput()

	switch outputFormat {
	case "json":
		return writeJSON(w, results)
	case "table":
		return outputTable(w, results)
	case "csv":
		return outputCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputTable(w io.Writer, results []*ProcessResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tNUMBER\tDATE\tGROSS\tMETHOD\tCONFIDENCE\tREVIEW")
	fmt.Fprintln(tw, "----\t------\t----\t-----\t------\t----------\t------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\n", r.File, r.Error)
			continue
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			r.File,
			fieldString(r.Fields, "invoice_number"),
			fieldString(r.Fields, "invoice_date"),
			fieldString(r.Fields, "gross_amount"),
			r.Method,
			r.Confidence,
			yesNo(r.NeedsReview),
		)
	}

	return tw.Flush()
}

func outputCSV(w io.Writer, results []*ProcessResult) error {
	cw := csv.NewWriter(w)
	header := []string{"file", "invoice_number", "invoice_date", "seller_name", "seller_vat_id",
		"buyer_name", "net_amount", "tax_amount", "gross_amount", "currency",
		"method", "confidence", "completeness", "needs_review", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{r.File}
		for _, name := range header[1:10] {
			record = append(record, fieldString(r.Fields, name))
		}
		completeness := ""
		if r.Report != nil {
			completeness = strconv.FormatFloat(r.Report.Completeness, 'f', 2, 64)
		}
		record = append(record,
			r.Method,
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			completeness,
			strconv.FormatBool(r.NeedsReview),
			r.Error,
		)
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func fieldString(fields model.Fields, name string) string {
	v := fields.Get(name)
	if model.IsEmptyValue(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ProcessResult holds the result of processing a single file
type ProcessResult struct {
	File        string             `json:"file"`
	Method      string             `json:"method,omitempty"`
	Invoice     *model.Invoice     `json:"invoice,omitempty"`
	Fields      model.Fields       `json:"fields,omitempty"`
	Report      *confidence.Report `json:"report,omitempty"`
	Confidence  float64            `json:"confidence,omitempty"`
	NeedsReview bool               `json:"needs_review"`
	Warnings    []string           `json:"warnings,omitempty"`
	Error       string             `json:"error,omitempty"`
}
