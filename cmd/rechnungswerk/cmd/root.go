package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/config"
	"github.com/rechnungswerk/einvoice/internal/llm"
	"github.com/rechnungswerk/einvoice/internal/logger"
	"github.com/rechnungswerk/einvoice/internal/processor"
)

var (
	version = "1.0.0"

	// Global flags
	cfgFile        string
	verbose        bool
	outputFormat   string
	apiKey         string
	llmBaseURL     string
	llmModel       string
	llmVisionModel string

	// Resolved before every command runs
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rechnungswerk",
	Short: "Generate XRechnung invoices and score extracted invoice data",
	Long: `RechnungsWerk creates EN 16931 / XRechnung 3.0 (UBL 2.1) e-invoices and
rates the reliability of invoice data extracted by OCR or an LLM.

Supports:
  - XRechnung generation and validation from JSON invoice records
  - UBL invoices and ZUGFeRD / Factur-X PDFs with embedded XML
  - OCR text and invoice images via an OpenAI-compatible LLM (Ollama by default)

Examples:
  # Generate an XRechnung from a JSON record
  rechnungswerk generate invoice.json -o invoice.xml

  # Score extracted fields
  rechnungswerk score fields.json -f table

  # Process a folder of invoices with a local Ollama
  rechnungswerk process invoices/ --llm-base-url http://localhost:11434/v1

  # Attach the XML to a PDF
  rechnungswerk embed invoice.pdf invoice.xml -o hybrid.pdf`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, csv, table)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for LLM provider (env: LLM_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&llmBaseURL, "llm-base-url", "", "LLM API base URL (env: LLM_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&llmModel, "llm-model", "", "LLM model for text extraction (env: LLM_MODEL)")
	rootCmd.PersistentFlags().StringVar(&llmVisionModel, "llm-vision-model", "", "LLM model for vision/image extraction (env: LLM_VISION_MODEL)")
}

// loadConfig reads the config file and environment, then applies flags on top
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if apiKey != "" {
		loaded.LLM.APIKey = apiKey
		loaded.LLM.Enabled = true
	}
	if llmBaseURL != "" {
		loaded.LLM.BaseURL = llmBaseURL
		loaded.LLM.Enabled = true
	}
	if llmModel != "" {
		loaded.LLM.Model = llmModel
	}
	if llmVisionModel != "" {
		loaded.LLM.VisionModel = llmVisionModel
	}
	if verbose {
		loaded.Log.Level = "debug"
	}

	cfg = loaded
	log = logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return nil
}

func newLLMClient() *llm.Client {
	return llm.NewClient(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithDefaultModel(cfg.LLM.Model),
	)
}

func newPipeline() *processor.Pipeline {
	opts := []processor.Option{
		processor.WithLogger(log),
		processor.WithReviewThreshold(cfg.ReviewThreshold),
		processor.WithConcurrency(cfg.Concurrency),
	}

	if cfg.LLM.Enabled {
		extractor := llm.NewExtractor(newLLMClient(),
			llm.WithTextModel(cfg.LLM.Model),
			llm.WithVisionModel(cfg.LLM.VisionModel),
		)
		opts = append(opts, processor.WithLLMExtractor(extractor))
		printVerbose("LLM extraction enabled (%s, text: %s, vision: %s)\n",
			cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.VisionModel)
	}

	return processor.NewPipeline(opts...)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
