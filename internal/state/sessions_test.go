package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func sampleReport(id string, started time.Time) *models.SessionReport {
	return &models.SessionReport{
		SessionID:  id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Outcome:    models.OutcomePartial,
		Plan:       &models.ExecutionPlan{Phases: []models.Phase{{Index: 0, TaskIDs: []string{"task-1"}}, {Index: 1, TaskIDs: []string{"task-2"}}}, MaxParallel: 2},
		Tasks: []models.TaskResult{
			{ID: "task-1", RawText: "create database schema", Category: models.CategoryDatabase, State: models.TaskFailed,
				Reason: models.ReasonMaxAttemptsExceeded, Attempts: 3, Phase: 0},
			{ID: "task-2", RawText: "create API endpoint", Category: models.CategoryBackend, State: models.TaskCancelled,
				Reason: models.ReasonDependencyFailed, Dependencies: []string{"task-1"}, Phase: 1},
		},
		Warnings: []models.Warning{{Kind: models.WarningPhaseFailures, TaskIDs: []string{"task-1"}, Message: "phase 0 failed"}},
	}
}

func TestSaveReport_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)
	input := models.TaskListInput{RawText: "create database schema, then create API endpoint"}

	if err := db.SaveReport(ctx, input, sampleReport("s-1", started)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	// Saving twice replaces the rows.
	if err := db.SaveReport(ctx, input, sampleReport("s-1", started)); err != nil {
		t.Fatalf("second SaveReport failed: %v", err)
	}

	got, err := db.GetReport(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.Outcome != models.OutcomePartial || len(got.Tasks) != 2 {
		t.Errorf("GetReport() = outcome %s with %d tasks", got.Outcome, len(got.Tasks))
	}
	if res, _ := got.Result("task-2"); res.Reason != models.ReasonDependencyFailed {
		t.Errorf("task-2 reason = %q", res.Reason)
	}

	var tasks, warnings int
	db.QueryRow(ctx, "SELECT COUNT(*) FROM tasks WHERE session_id = ?", "s-1").Scan(&tasks)
	db.QueryRow(ctx, "SELECT COUNT(*) FROM warnings WHERE session_id = ?", "s-1").Scan(&warnings)
	if tasks != 2 || warnings != 1 {
		t.Errorf("stored %d tasks and %d warnings, want 2 and 1", tasks, warnings)
	}
}

func TestGetReport_NotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetReport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport(missing) error = %v, want ErrNotFound", err)
	}
	if err := db.EnsureSession(ctx, "running", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetReport(ctx, "running"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport(running) error = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "mid", "new"} {
		if err := db.SaveReport(ctx, models.TaskListInput{RawText: id}, sampleReport(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Fatalf("ListSessions() order = %v", all)
	}
	if all[0].TaskCount != 2 || all[0].Completed != 0 || all[0].Failed != 2 {
		t.Errorf("counts = %+v", all[0])
	}
	if all[0].FinishedAt == nil {
		t.Error("FinishedAt not loaded")
	}

	limited, err := db.ListSessions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListSessions(2) returned %d rows", len(limited))
	}
}

func TestEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.EnsureSession(ctx, "s-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	events := []bus.StatusEvent{
		{Type: bus.EventTransition, SessionID: "s-1", TaskID: "task-1", From: models.TaskValidated, To: models.TaskExecuting, Phase: 0, Timestamp: time.Now()},
		{Type: bus.EventSignal, SessionID: "s-1", TaskID: "task-2", Phase: 0, Detail: "working on it", Timestamp: time.Now()},
		{Type: bus.EventTransition, SessionID: "s-1", TaskID: "task-1", From: models.TaskAwaitingConfirmation, To: models.TaskFailed,
			Reason: models.ReasonConfirmationTimeout, Phase: 0, Attempt: 2, Timestamp: time.Now()},
	}
	for i, ev := range events {
		if err := db.AppendEvent(ctx, i, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := db.Events(ctx, "s-1", "task-1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Events(task-1) returned %d events", len(got))
	}
	if got[1].Reason != models.ReasonConfirmationTimeout || got[1].Attempt != 2 || got[1].To != models.TaskFailed {
		t.Errorf("second event = %+v", got[1])
	}

	all, err := db.Events(ctx, "s-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[1].Detail != "working on it" {
		t.Errorf("Events(all) = %+v", all)
	}
}

func TestPurgeOldSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveReport(ctx, models.TaskListInput{}, sampleReport("ancient", time.Now().Add(-48*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendEvent(ctx, 0, bus.StatusEvent{Type: bus.EventSessionStarted, SessionID: "ancient", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveReport(ctx, models.TaskListInput{}, sampleReport("fresh", time.Now())); err != nil {
		t.Fatal(err)
	}

	n, err := db.PurgeOldSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}

	var tasks, events int
	db.QueryRow(ctx, "SELECT COUNT(*) FROM tasks WHERE session_id = ?", "ancient").Scan(&tasks)
	db.QueryRow(ctx, "SELECT COUNT(*) FROM events WHERE session_id = ?", "ancient").Scan(&events)
	if tasks != 0 || events != 0 {
		t.Errorf("purged session left %d tasks and %d events", tasks, events)
	}
	if _, err := db.GetReport(ctx, "fresh"); err != nil {
		t.Errorf("fresh session was purged: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	db := setupTestDB(t)
	b := bus.New(nil)
	sub := b.Subscribe(bus.DefaultBuffer)
	rec := NewRecorder(db, nil)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background(), sub)
		close(done)
	}()

	b.Publish(bus.StatusEvent{Type: bus.EventTransition, SessionID: "s-9", TaskID: "task-1", From: models.TaskPending, To: models.TaskRefining, Phase: -1})
	b.Publish(bus.StatusEvent{Type: bus.EventSessionStarted, SessionID: "s-9", Phase: -1})
	b.Publish(bus.StatusEvent{Type: bus.EventSessionDone, SessionID: "s-9", Phase: -1})
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop after the bus closed")
	}
	if rec.Saved() != 3 {
		t.Fatalf("Saved() = %d, want 3", rec.Saved())
	}

	events, err := db.Events(context.Background(), "s-9", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 || events[0].To != models.TaskRefining || events[2].Type != bus.EventSessionDone {
		t.Errorf("recorded events = %+v", events)
	}

	sessions, err := db.ListSessions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Outcome != OutcomeRunning {
		t.Errorf("placeholder session = %+v", sessions)
	}
}
