package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avosel/visage-core/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend relay server",
	Long: `Run the backend relay in front of the vendor API. Browser clients get
short-lived session tokens from it and relay speech tasks, interrupts, the
unload-cleanup beacon and chat completions through it, so the account API
key never leaves the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.Server.Addr = v
		}

		client, err := newHeygenClient(cfg)
		if err != nil {
			return err
		}

		// The chat endpoint is optional; the relay works without a model.
		adapter, err := newAdapter(cmd.Context(), cfg)
		if err != nil {
			adapter = nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.New(client, adapter).Run(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}
