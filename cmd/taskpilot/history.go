package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/eventlog"
	"github.com/ShayCichocki/taskpilot/internal/state"
)

var (
	historyLimit  int
	historyEvents bool
	historyTask   string
	historyLog    bool
	historyPurge  time.Duration
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List recorded sessions or show one session",
	Long: `Without arguments, lists recent sessions from the session store.
With a session id, prints that session's report, or its status events
with --events. Add --from-log to read the events from the NDJSON event log
instead of the session store.

Use --purge to delete sessions older than a duration (e.g. --purge 720h).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum sessions to list")
	historyCmd.Flags().BoolVar(&historyEvents, "events", false, "Show the session's status events")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "Only show events of this task")
	historyCmd.Flags().BoolVar(&historyLog, "from-log", false, "Read --events from the event log file")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete sessions older than this duration")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Telemetry.Enabled = false

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if historyLog {
		if len(args) == 0 || !historyEvents {
			return fmt.Errorf("--from-log needs a session id and --events")
		}
		if cfg.EventLog.Path == "" {
			return fmt.Errorf("event log is disabled (eventlog.path is empty)")
		}
		events, err := loggedEvents(rt.resolve(cfg.EventLog.Path), args[0], historyTask)
		if err != nil {
			return err
		}
		if historyJSON {
			return enc.Encode(events)
		}
		printEvents(out, args[0], events)
		return nil
	}

	db, err := rt.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if historyPurge > 0 {
		n, err := db.PurgeOldSessions(ctx, historyPurge)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		fmt.Fprintf(out, "Purged %d sessions older than %s\n", n, historyPurge)
		if len(args) == 0 {
			return nil
		}
	}

	if len(args) == 0 {
		sessions, err := db.ListSessions(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if historyJSON {
			return enc.Encode(sessions)
		}
		printSessions(out, sessions)
		return nil
	}

	id := args[0]
	if historyEvents {
		events, err := db.Events(ctx, id, historyTask)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		if historyJSON {
			return enc.Encode(events)
		}
		printEvents(out, id, events)
		return nil
	}

	report, err := db.GetReport(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if historyJSON {
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

// loggedEvents reads one session's events from the NDJSON event log.
func loggedEvents(path, sessionID, taskID string) ([]bus.StatusEvent, error) {
	events, err := eventlog.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return eventlog.Filter(events, sessionID, taskID), nil
}

func printEvents(w io.Writer, sessionID string, events []bus.StatusEvent) {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events recorded for session %s\n", sessionID)
	}
	for _, ev := range events {
		printEvent(w, ev)
	}
}
