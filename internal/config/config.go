// Package config loads the YAML configuration shared by the CLI and the server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rechnungswerk/einvoice/internal/llm"
	"github.com/rechnungswerk/einvoice/internal/processor"
)

// Config is the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Log    LogConfig    `yaml:"log"`

	// ReviewThreshold is the overall confidence below which a record needs review
	ReviewThreshold float64 `yaml:"review_threshold"`
	// Concurrency bounds batch processing
	Concurrency int `yaml:"concurrency"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address     string        `yaml:"address"`
	MaxBodySize int64         `yaml:"max_body_size"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// LLMConfig configures the OpenAI-compatible extraction backend
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	VisionModel string        `yaml:"vision_model"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8080",
			MaxBodySize: 50 << 20,
			ReadTimeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:     llm.DefaultBaseURL,
			Model:       llm.DefaultModel,
			VisionModel: llm.DefaultVisionModel,
			Timeout:     llm.DefaultTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		ReviewThreshold: processor.DefaultReviewThreshold,
		Concurrency:     processor.DefaultConcurrency,
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := os.Getenv("RW_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
		c.LLM.Enabled = true
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
		c.LLM.Enabled = true
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if model := os.Getenv("LLM_VISION_MODEL"); model != "" {
		c.LLM.VisionModel = model
	}
	if level := os.Getenv("RW_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if threshold := os.Getenv("RW_REVIEW_THRESHOLD"); threshold != "" {
		v, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			return fmt.Errorf("invalid RW_REVIEW_THRESHOLD %q: %w", threshold, err)
		}
		c.ReviewThreshold = v
	}
	return nil
}

// Validate rejects values the application cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.ReviewThreshold < 0 || c.ReviewThreshold > 100 {
		problems = append(problems, fmt.Sprintf("review_threshold %v outside 0..100", c.ReviewThreshold))
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.Server.MaxBodySize <= 0 {
		problems = append(problems, "server.max_body_size must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if c.LLM.Enabled && c.LLM.BaseURL == "" {
		problems = append(problems, "llm.base_url is required when llm is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
