package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print version information",
	GroupID: groupAdmin,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "bikeshare %s\n", Version)
		fmt.Fprintf(w, "  commit: %s\n", GitCommit)
		fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	},
}
