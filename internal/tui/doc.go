// Package tui provides the terminal progress view for taskpilot sessions.
//
// The view is read-only apart from pause/resume/stop. It shows:
//   - The execution plan, phase by phase, with per-task state
//   - Counts of completed, failed and in-flight tasks
//   - A scrolling feed of status events from the bus
//
// Usage:
//
//	app := tui.NewApp(tui.Options{SessionID: s.ID, Snapshot: s.Snapshot, Controls: eng.Controller()})
//	program := tui.NewProgram(app)
//	go tui.Forward(ctx, program, eng.Bus().Subscribe(bus.DefaultBuffer))
//
//	// When the session ends
//	program.Send(tui.DoneMsg{Report: report, Err: err})
package tui
