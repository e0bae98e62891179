package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		v := version.Get()
		if commit := version.Commit(); commit != "" {
			v += " (" + commit + ")"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "taskpilot version %s\n", v)
	},
}
