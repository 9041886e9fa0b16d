package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/confidence"
)

var scoreThreshold float64

var scoreCmd = &cobra.Command{
	Use:   "score [fields.json...]",
	Short: "Score the confidence of extracted invoice fields",
	Long: `Rate each field of an extracted invoice record (0-100), run the
amount consistency checks and compute the overall confidence and completeness.

Input is a JSON object of field names to values, as produced by OCR or LLM
extraction. Records below the review threshold or with a failed consistency
check are flagged for review.

Examples:
  rechnungswerk score fields.json
  cat fields.json | rechnungswerk score -
  rechnungswerk score extracted/*.json -f table --threshold 85`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().Float64Var(&scoreThreshold, "threshold", 0, "Review threshold (default from config)")
}

func runScore(cmd *cobra.Command, args []string) error {
	files := args
	if len(args) != 1 || args[0] != "-" {
		var err error
		if files, err = collectFiles(args); err != nil {
			return err
		}
	}

	if scoreThreshold > 0 {
		cfg.ReviewThreshold = scoreThreshold
	}
	pipeline := newPipeline()

	results := make([]*ScoreResult, 0, len(files))
	for _, file := range files {
		result := &ScoreResult{File: file}
		results = append(results, result)

		data, err := readInput(cmd.InOrStdin(), file)
		if err != nil {
			result.Error = err.Error()
			continue
		}

		processed := pipeline.ProcessJSON(context.Background(), data)
		if processed.Error != nil {
			result.Error = processed.Error.Error()
			continue
		}
		result.Report = processed.Report
		result.NeedsReview = processed.NeedsReview
		result.LowFields = processed.Report.LowFields()
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		return writeJSON(out, results)
	case "table":
		return outputScoreTable(out, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputScoreTable(w io.Writer, results []*ScoreResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, r := range results {
		fmt.Fprintf(tw, "%s\n", r.File)
		if r.Error != "" {
			fmt.Fprintf(tw, "  ERROR: %s\n\n", r.Error)
			continue
		}

		fmt.Fprintln(tw, "  FIELD\tSCORE\tLEVEL\tREASON")
		names := make([]string, 0, len(r.Report.FieldConfidences))
		for name := range r.Report.FieldConfidences {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fc := r.Report.FieldConfidences[name]
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", name, fc.Score, fc.Level, fc.Reason)
		}

		for _, check := range r.Report.ConsistencyChecks {
			status := "OK"
			if !check.Passed {
				status = "FAILED"
			}
			fmt.Fprintf(tw, "  check %s\t%s\t\t%s\n", check.Check, status, check.Detail)
		}

		fmt.Fprintf(tw, "  overall\t%.2f\t\tcompleteness %.2f%%, needs review: %t\n\n",
			r.Report.OverallConfidence, r.Report.Completeness, r.NeedsReview)
	}

	return tw.Flush()
}

// ScoreResult holds the confidence report for a single file
type ScoreResult struct {
	File        string             `json:"file"`
	Report      *confidence.Report `json:"report,omitempty"`
	NeedsReview bool               `json:"needs_review"`
	LowFields   []string           `json:"low_fields,omitempty"`
	Error       string             `json:"error,omitempty"`
}
