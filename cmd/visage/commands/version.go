package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X ...commands.version=".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the visage version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("visage", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
