package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "Autonomous task orchestration engine",
	Long: `taskpilot turns a free-text list of work items into a validated,
dependency-ordered plan and drives each item through an execution surface,
confirming completion before moving on.

Core capabilities:
- Extracts tasks from TODO markers, numbered and bulleted lists
- Maps dependencies and breaks cycles deterministically
- Schedules tasks into parallel phases by priority
- Confirms each task with a probe loop and detects requests for input
- Records every session and status event`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config plus .taskpilot.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
