package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available LLM models from API",
	Long: `Fetch and list available LLM models from the configured API endpoint.

This command queries the /models endpoint of your LLM provider. A local
Ollama (http://localhost:11434/v1) is used when nothing is configured.

To use a specific model, set the environment variables:
  LLM_MODEL=<model-id>         # For text extraction
  LLM_VISION_MODEL=<model-id>  # For vision/image extraction

Or use CLI flags:
  --llm-model <model-id>
  --llm-vision-model <model-id>`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	apiKeyStatus := "Not set"
	if key := cfg.LLM.APIKey; key != "" {
		if len(key) > 8 {
			apiKeyStatus = "Set (" + key[:8] + "...)"
		} else {
			apiKeyStatus = "Set"
		}
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "  LLM_BASE_URL:     %s\n", cfg.LLM.BaseURL)
	fmt.Fprintf(out, "  LLM_MODEL:        %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "  LLM_VISION_MODEL: %s\n", cfg.LLM.VisionModel)
	fmt.Fprintf(out, "  LLM_API_KEY:      %s\n", apiKeyStatus)
	fmt.Fprintf(out, "  Enabled:          %t\n", cfg.LLM.Enabled)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Fetching models from %s/models...\n\n", strings.TrimSuffix(cfg.LLM.BaseURL, "/"))

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	models, err := newLLMClient().ListModels(ctx)
	if err != nil {
		fmt.Fprintf(out, "Could not fetch models: %v\n\n", err)
		fmt.Fprintln(out, "Tip: Your API provider may not support the /models endpoint.")
		fmt.Fprintln(out, "     You can still use models by setting LLM_MODEL and LLM_VISION_MODEL directly.")
		return nil
	}

	if len(models) == 0 {
		fmt.Fprintln(out, "No models returned from API.")
		return nil
	}

	fmt.Fprintf(out, "Available Models (%d):\n", len(models))
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL ID\tOWNER\tCREATED")
	fmt.Fprintln(w, "--------\t-----\t-------")

	for _, m := range models {
		created := ""
		if m.Created > 0 {
			created = time.Unix(m.Created, 0).Format("2006-01-02")
		}
		owner := m.OwnedBy
		if owner == "" || owner == "library" {
			owner = inferProvider(m.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, owner, created)
	}
	return w.Flush()
}

// inferProvider tries to infer the provider from model ID
func inferProvider(modelID string) string {
	modelID = strings.ToLower(modelID)

	switch {
	case strings.Contains(modelID, "gpt") || strings.Contains(modelID, "openai"):
		return "openai"
	case strings.Contains(modelID, "llama") || strings.Contains(modelID, "llava"):
		return "meta"
	case strings.Contains(modelID, "mistral") || strings.Contains(modelID, "mixtral"):
		return "mistral"
	case strings.Contains(modelID, "qwen"):
		return "alibaba"
	case strings.Contains(modelID, "gemma") || strings.Contains(modelID, "gemini"):
		return "google"
	case strings.Contains(modelID, "deepseek"):
		return "deepseek"
	default:
		return "-"
	}
}
