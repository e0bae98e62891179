package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	planText        string
	planFramework   string
	planMaxParallel int
	planJSON        bool
)

var planCmd = &cobra.Command{
	Use:   "plan [task-file]",
	Short: "Show the execution plan without running it",
	Long: `Extract, validate and plan a task list, then print the phases,
priority scores, dependency edges and warnings. Nothing is sent to an
execution surface and nothing is recorded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	addInputFlags(planCmd, &planText, &planFramework)
	planCmd.Flags().IntVar(&planMaxParallel, "max-parallel", 0, "Maximum tasks per phase")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan snapshot, tasks and edges as JSON")
}

// planOutput is the JSON form of the plan command.
type planOutput struct {
	Snapshot models.PlanSnapshot   `json:"snapshot"`
	Plan     *models.ExecutionPlan `json:"plan"`
	Tasks    []*models.Task        `json:"tasks"`
	Edges    []graph.Edge          `json:"edges"`
	Warnings []models.Warning      `json:"warnings,omitempty"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	input, err := buildInput(args, planText, planFramework, stdinIfPiped())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.Engine.MaxParallel = planMaxParallel
	}
	// Planning never opens a log file or telemetry exporter.
	cfg.Logging.File = ""
	cfg.Telemetry.Enabled = false

	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	s, err := rt.newEngine(nil).Prepare(input, project.Detect(rt.root))
	if err != nil {
		return err
	}

	if planJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{
			Snapshot: s.Snapshot(),
			Plan:     s.Plan(),
			Tasks:    s.Tasks(),
			Edges:    s.Graph().Edges(),
			Warnings: s.Warnings(),
		})
	}
	printPlan(cmd.OutOrStdout(), s)
	return nil
}
