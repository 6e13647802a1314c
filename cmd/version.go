package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// build is set via ldflags at build time.
var build = "unknown"

// SetBuild records the build identifier shown by the version command.
func SetBuild(b string) {
	if b != "" {
		build = b
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("promptforge %s\n", build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
