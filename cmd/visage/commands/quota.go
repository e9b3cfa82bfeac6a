package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show the remaining streaming credits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		client, err := newHeygenClient(cfg)
		if err != nil {
			return err
		}

		quota, err := client.RemainingQuota(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d credit(s) remaining (about %d streaming minute(s))\n", quota.Credits(), quota.Minutes())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}
