package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rechnungswerk/einvoice/internal/confidence"
	"github.com/rechnungswerk/einvoice/internal/llm"
	"github.com/rechnungswerk/einvoice/internal/logger"
	"github.com/rechnungswerk/einvoice/internal/metrics"
	"github.com/rechnungswerk/einvoice/internal/processor"
	"github.com/rechnungswerk/einvoice/internal/xrechnung"
)

// Config holds server configuration
type Config struct {
	Address         string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Debug           bool
	ReviewThreshold float64
	Concurrency     int

	LLMEnabled     bool
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMVisionModel string
	LLMTimeout     time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    *Config
	router    *gin.Engine
	pipeline  *processor.Pipeline
	generator *xrechnung.Generator
	scorer    *confidence.Scorer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the server
type Option func(*Server)

// WithLogger sets the request and application logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPipeline replaces the pipeline built from the config
func WithPipeline(p *processor.Pipeline) Option {
	return func(s *Server) {
		s.pipeline = p
	}
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:    config,
		router:    gin.New(),
		generator: xrechnung.NewGenerator(),
		scorer:    confidence.NewScorer(),
		logger:    logger.Discard(),
		metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pipeline == nil {
		s.pipeline = s.buildPipeline()
	}

	s.router.Use(gin.Recovery(), requestID(), s.requestLogger(), bodyLimit(config.MaxBodySize))
	s.setupRoutes()
	return s
}

func (s *Server) buildPipeline() *processor.Pipeline {
	opts := []processor.Option{
		processor.WithLogger(s.logger),
		processor.WithMetrics(s.metrics),
		processor.WithConcurrency(s.config.Concurrency),
	}
	if s.config.ReviewThreshold > 0 {
		opts = append(opts, processor.WithReviewThreshold(s.config.ReviewThreshold))
	}

	if s.config.LLMEnabled || s.config.LLMAPIKey != "" {
		var clientOpts []llm.ClientOption
		if s.config.LLMBaseURL != "" {
			clientOpts = append(clientOpts, llm.WithBaseURL(s.config.LLMBaseURL))
		}
		if s.config.LLMTimeout > 0 {
			clientOpts = append(clientOpts, llm.WithTimeout(s.config.LLMTimeout))
		}
		if s.config.LLMModel != "" {
			clientOpts = append(clientOpts, llm.WithDefaultModel(s.config.LLMModel))
		}
		client := llm.NewClient(s.config.LLMAPIKey, clientOpts...)

		var extractorOpts []llm.ExtractorOption
		if s.config.LLMVisionModel != "" {
			extractorOpts = append(extractorOpts, llm.WithVisionModel(s.config.LLMVisionModel))
		}
		opts = append(opts, processor.WithLLMExtractor(llm.NewExtractor(client, extractorOpts...)))
	}

	return processor.NewPipeline(opts...)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		// XRechnung endpoints
		v1.POST("/xrechnung", s.handleGenerate)
		v1.POST("/xrechnung/validate", s.handleValidate)
		v1.POST("/xrechnung/parse", s.handleParse)

		// Scoring endpoint
		v1.POST("/confidence", s.handleConfidence)

		// Process endpoints
		v1.POST("/process/xml", s.handleProcessXML)
		v1.POST("/process/pdf", s.handleProcessPDF)
		v1.POST("/process/image", s.handleProcessImage)
		v1.POST("/process/text", s.handleProcessText)
		v1.POST("/process/auto", s.handleProcessAuto)

		// Info endpoint
		v1.POST("/info", s.handleInfo)
	}
}

// Run starts the HTTP server and shuts it down gracefully when ctx ends
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.config.Address, "llm", s.pipeline.HasLLM())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}
