package commands

import (
	"github.com/spf13/cobra"

	orchestration "github.com/avosel/visage-core/core"
	"github.com/avosel/visage-core/core/avatar"
	"github.com/avosel/visage-core/core/avatar/heygen"
	"github.com/avosel/visage-core/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive avatar chat session in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		applyChatFlags(cmd, &cfg)

		client, err := newHeygenClient(cfg)
		if err != nil {
			return err
		}
		adapter, err := newAdapter(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		token, err := client.CreateSessionToken(cmd.Context())
		if err != nil {
			return err
		}

		sessionOpts := []heygen.SessionOption{}
		if cfg.HeyGen.BaseURL != "" {
			sessionOpts = append(sessionOpts, heygen.WithSessionBaseURL(cfg.HeyGen.BaseURL))
		}

		orchestrator := orchestration.NewOrchestrator(
			orchestration.WithAdapter(adapter),
			orchestration.WithHandleFactory(func(sessionToken string) avatar.Handle {
				return heygen.NewSession(sessionToken, sessionOpts...)
			}),
			orchestration.WithQuotaSource(client),
			orchestration.WithSystemPrompt(cfg.SystemPrompt),
			orchestration.WithModel(cfg.LLM.Model),
		)

		voiceChat, _ := cmd.Flags().GetBool("voice-chat")
		return tui.Run(cmd.Context(), orchestrator, orchestration.SessionConfig{
			Token:     token,
			AvatarID:  cfg.Avatar.AvatarID,
			VoiceID:   cfg.Avatar.VoiceID,
			VoiceRate: cfg.Avatar.VoiceRate,
			Quality:   cfg.Avatar.Quality,
			Language:  cfg.Avatar.Language,
			VoiceChat: voiceChat,
		})
	},
}

func applyChatFlags(cmd *cobra.Command, cfg *Config) {
	if v, _ := cmd.Flags().GetString("avatar"); v != "" {
		cfg.Avatar.AvatarID = v
	}
	if v, _ := cmd.Flags().GetString("voice"); v != "" {
		cfg.Avatar.VoiceID = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.LLM.Model = v
	}
	if v, _ := cmd.Flags().GetString("system-prompt"); v != "" {
		cfg.SystemPrompt = v
	}
}

func init() {
	chatCmd.Flags().String("avatar", "", "avatar id to stream")
	chatCmd.Flags().String("voice", "", "voice id override")
	chatCmd.Flags().String("model", "", "language model override")
	chatCmd.Flags().String("system-prompt", "", "system prompt override")
	chatCmd.Flags().Bool("voice-chat", false, "request the microphone pipeline once the stream is ready")
	rootCmd.AddCommand(chatCmd)
}
