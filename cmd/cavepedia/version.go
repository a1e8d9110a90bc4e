package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cavepedia version %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
