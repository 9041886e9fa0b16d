package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rechnungswerk/einvoice/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for generating and scoring invoices.

The API provides endpoints for:
  - POST /api/v1/xrechnung           - JSON invoice to XRechnung XML
  - POST /api/v1/xrechnung/validate  - Check the business rules
  - POST /api/v1/xrechnung/parse     - XRechnung XML to JSON invoice
  - POST /api/v1/confidence          - Score extracted fields
  - POST /api/v1/process/xml         - Process UBL XML
  - POST /api/v1/process/pdf         - Process ZUGFeRD / Factur-X PDF
  - POST /api/v1/process/image       - Process image invoice (LLM)
  - POST /api/v1/process/text        - Process OCR text (LLM)
  - POST /api/v1/process/auto        - Auto-detect and process
  - POST /api/v1/info                - Get file information
  - GET  /health                     - Health check
  - GET  /metrics                    - Prometheus metrics

Examples:
  # Start server on the configured address
  rechnungswerk serve

  # Start on custom port with a local Ollama
  rechnungswerk serve --address :9000 --llm-base-url http://localhost:11434/v1

  # Start in debug mode
  rechnungswerk serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default from config)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 5*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	address := cfg.Server.Address
	if serverAddr != "" {
		address = serverAddr
	}

	config := &server.Config{
		Address:         address,
		MaxBodySize:     cfg.Server.MaxBodySize,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    writeTimeout,
		Debug:           serverDebug,
		ReviewThreshold: cfg.ReviewThreshold,
		Concurrency:     cfg.Concurrency,
		LLMEnabled:      cfg.LLM.Enabled,
		LLMAPIKey:       cfg.LLM.APIKey,
		LLMBaseURL:      cfg.LLM.BaseURL,
		LLMModel:        cfg.LLM.Model,
		LLMVisionModel:  cfg.LLM.VisionModel,
		LLMTimeout:      cfg.LLM.Timeout,
	}

	srv := server.NewServer(config, server.WithLogger(log))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
