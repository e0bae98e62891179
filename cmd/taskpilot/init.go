package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/internal/state"
)

var (
	initForce       bool
	initNoGitignore bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a taskpilot project",
	Long: `Initialize a directory for use with taskpilot.

This command:
  - Creates the .taskpilot directory with logs and the session store
  - Writes a .taskpilot.yaml template and an example reply script
  - Adds taskpilot state to .gitignore

The directory argument is optional and defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing template files")
	initCmd.Flags().BoolVar(&initNoGitignore, "no-gitignore", false, "Do not touch .gitignore")
}

const projectConfigTemplate = `# taskpilot project configuration
engine:
  max_parallel: 3
  max_attempts: 3
  confirmation_timeout: 10m
surface:
  kind: scripted
  script: .taskpilot/script.yaml
state:
  driver: sqlite
logging:
  level: info
eventlog:
  path: .taskpilot/events.ndjson
`

const scriptTemplate = `# Replies of the scripted execution surface, one per command.
delay: 200ms
default: ["working on it", "yes, done"]
tasks:
  - match: deploy
    replies: ["which environment would you like? (y/n)"]
`

const exampleTasks = `TODO: create database schema for users, then create API endpoint for users
- add login button to the header
- write tests for the users endpoint
- deploy to staging
`

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	fmt.Fprintf(out, "Initializing taskpilot in %s...\n\n", absPath)

	for _, dir := range []string{".taskpilot", filepath.Join(".taskpilot", "logs")} {
		if err := os.MkdirAll(filepath.Join(absPath, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus(out, "✓", "Created .taskpilot directory structure", color.FgGreen)

	db, err := state.OpenProject(absPath)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	db.Close()
	printStatus(out, "✓", "Created session store "+filepath.Join(".taskpilot", "state.db"), color.FgGreen)

	files := []struct {
		path, content, label string
	}{
		{config.ProjectFile, projectConfigTemplate, "project config"},
		{filepath.Join(".taskpilot", "script.yaml"), scriptTemplate, "example reply script"},
		{filepath.Join(".taskpilot", "example-tasks.md"), exampleTasks, "example task list"},
	}
	for _, f := range files {
		written, err := writeTemplate(filepath.Join(absPath, f.path), f.content, initForce)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		if written {
			printStatus(out, "✓", fmt.Sprintf("Created %s (%s)", f.path, f.label), color.FgGreen)
		} else {
			printStatus(out, "•", fmt.Sprintf("Kept existing %s", f.path), color.FgYellow)
		}
	}

	if !initNoGitignore {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus(out, "✓", "Updated .gitignore with taskpilot entries", color.FgGreen)
	}

	pctx := project.Detect(absPath)
	fmt.Fprintf(out, "\nDetected surfaces: frontend=%t backend=%t database=%t\n",
		pctx.Frontend, pctx.Backend, pctx.Database)

	if config.GetAPIKeySource(nil) == config.KeySourceNone {
		printStatus(out, "⚠", "ANTHROPIC_API_KEY not set (needed only for the claude surface)", color.FgYellow)
	}

	fmt.Fprintf(out, "\n%s taskpilot initialization complete!\n\n", color.GreenString("✓"))
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  taskpilot plan .taskpilot/example-tasks.md")
	fmt.Fprintln(out, "  taskpilot run .taskpilot/example-tasks.md")
	return nil
}

// writeTemplate writes content to path unless it exists and force is false.
func writeTemplate(path, content string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, []byte(content), 0o644)
}

// updateGitignore appends taskpilot state entries that are missing.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	entries := []string{
		".taskpilot/state.db*",
		".taskpilot/logs/",
		".taskpilot/events.ndjson",
		".taskpilot/surface/",
	}
	var missing []string
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# taskpilot\n")
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}
	return os.WriteFile(gitignorePath, []byte(b.String()), 0o644)
}
