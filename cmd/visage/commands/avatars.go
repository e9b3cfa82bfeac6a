package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var avatarsCmd = &cobra.Command{
	Use:   "avatars",
	Short: "List the streaming-capable avatars of the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		client, err := newHeygenClient(cfg)
		if err != nil {
			return err
		}

		avatars, err := client.ListAvatars(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AVATAR ID\tPOSE\tSTATUS\tDEFAULT VOICE\tPUBLIC")
		for _, a := range avatars {
			public := ""
			if a.IsPublic {
				public = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.AvatarID, a.PoseName, a.Status, a.DefaultVoiceID, public)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(avatarsCmd)
}
