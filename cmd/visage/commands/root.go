package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avosel/visage-core/core/avatar/heygen"
	"github.com/avosel/visage-core/core/llms"
	"github.com/avosel/visage-core/core/llms/gemini"
	"github.com/avosel/visage-core/core/llms/openai"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "visage",
	Short: "Conversational streaming-avatar toolkit",
	Long: `visage drives interactive streaming-avatar sessions: it manages the
vendor session lifecycle, keeps the conversation transcript, and answers
completed user turns with a streaming language model relayed to the avatar
as paced speech.

Credentials come from the config file (visage.yaml by default), a local
.env file, or the HEYGEN_API_KEY / OPENAI_API_KEY / GEMINI_API_KEY
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
}

func newHeygenClient(cfg Config) (*heygen.Client, error) {
	if cfg.HeyGen.APIKey == "" {
		return nil, fmt.Errorf("a HeyGen API key is required (config heygen.api_key or HEYGEN_API_KEY)")
	}

	opts := []heygen.ClientOption{}
	if cfg.HeyGen.BaseURL != "" {
		opts = append(opts, heygen.WithBaseURL(cfg.HeyGen.BaseURL))
	}
	return heygen.NewClient(cfg.HeyGen.APIKey, opts...), nil
}

func newAdapter(ctx context.Context, cfg Config) (llms.Adapter, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("a language model API key is required (config llm.api_key or the provider's env var)")
	}

	switch cfg.LLM.Provider {
	case "openai", "":
		opts := []openai.ClientOption{}
		if cfg.LLM.Model != "" {
			opts = append(opts, openai.WithModel(cfg.LLM.Model))
		}
		return openai.NewClient(cfg.LLM.APIKey, opts...), nil
	case "gemini":
		opts := []gemini.ClientOption{}
		if cfg.LLM.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.LLM.Model))
		}
		client, err := gemini.NewClient(ctx, cfg.LLM.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want openai or gemini)", cfg.LLM.Provider)
	}
}
