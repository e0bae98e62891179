package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/rules"
)

var rulesDefault bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the rule table as YAML",
	Long: `Print the categorization, dependency, priority and confirmation rules
in effect. The output can be saved, edited and pointed at with rules.path
in the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs := rules.Default()
		if !rulesDefault {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Logging.File = ""
			cfg.Telemetry.Enabled = false
			rt, err := newRuntime(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			rs = rt.ruleSet
		}
		data, err := rules.Marshal(rs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	rulesCmd.Flags().BoolVar(&rulesDefault, "default", false, "Print the built-in defaults, ignoring rules.path")
}
