package models

import (
	"testing"
	"time"
)

func TestTaskState_Valid(t *testing.T) {
	tests := []struct {
		name  string
		state TaskState
		want  bool
	}{
		{"pending is valid", TaskPending, true},
		{"refining is valid", TaskRefining, true},
		{"validated is valid", TaskValidated, true},
		{"rejected is valid", TaskRejected, true},
		{"executing is valid", TaskExecuting, true},
		{"awaiting is valid", TaskAwaitingConfirmation, true},
		{"completed is valid", TaskCompleted, true},
		{"failed is valid", TaskFailed, true},
		{"cancelled is valid", TaskCancelled, true},
		{"empty string is invalid", TaskState(""), false},
		{"typo is invalid", TaskState("canceled"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("TaskState(%q).Valid() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestTaskState_Terminal(t *testing.T) {
	terminal := map[TaskState]bool{
		TaskCompleted: true,
		TaskFailed:    true,
		TaskCancelled: true,
		TaskRejected:  true,
	}
	all := []TaskState{TaskPending, TaskRefining, TaskValidated, TaskRejected, TaskExecuting,
		TaskAwaitingConfirmation, TaskCompleted, TaskFailed, TaskCancelled}

	for _, s := range all {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("TaskState(%q).Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"task-1", "task-1", 0},
		{"task-1", "task-2", -1},
		{"task-2", "task-10", -1},
		{"task-10", "task-9", 1},
		{"task-01", "task-1", 0},
		{"a", "b", -1},
		{"task", "task-1", -1},
	}

	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTask_Clone(t *testing.T) {
	orig := &Task{ID: "task-1", Dependencies: []string{"task-2"}}
	c := orig.Clone()
	c.Dependencies[0] = "task-3"

	if orig.Dependencies[0] != "task-2" {
		t.Errorf("Clone shares dependency slice with original")
	}
	if !orig.HasDependency("task-2") {
		t.Errorf("HasDependency(task-2) = false, want true")
	}
	if (*Task)(nil).Clone() != nil {
		t.Errorf("Clone of nil task should be nil")
	}
}

func TestTaskListInput_Framework(t *testing.T) {
	if got := (TaskListInput{RawText: "x"}).Framework(); got != "" {
		t.Errorf("Framework() with nil context = %q, want empty", got)
	}
	ctx := "framework: react"
	if got := (TaskListInput{FrameworkContext: &ctx}).Framework(); got != ctx {
		t.Errorf("Framework() = %q, want %q", got, ctx)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"ui", CategoryUI, true},
		{"Backend", CategoryBackend, true},
		{" database ", CategoryDatabase, true},
		{"whatever", CategoryGeneral, false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseCategory(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestConfirmationSession_Bounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cs := NewConfirmationSession("task-1", 0, 0, now)

	if cs.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", cs.MaxAttempts, DefaultMaxAttempts)
	}
	if got := cs.Deadline.Sub(now); got != DefaultConfirmationTimeout {
		t.Errorf("deadline offset = %v, want %v", got, DefaultConfirmationTimeout)
	}

	for i := 0; i < DefaultMaxAttempts; i++ {
		if !cs.CanAttempt() {
			t.Fatalf("CanAttempt() = false after %d sends", i)
		}
		cs.RecordSend(i > 0)
	}
	if cs.CanAttempt() {
		t.Errorf("CanAttempt() = true after %d sends", cs.AttemptCount)
	}
	if !cs.LastWasProbe {
		t.Errorf("LastWasProbe = false after probe")
	}

	if cs.Expired(now) {
		t.Errorf("Expired at start")
	}
	if !cs.Expired(cs.Deadline) {
		t.Errorf("not Expired at deadline")
	}
	if cs.Remaining(cs.Deadline.Add(time.Second)) != 0 {
		t.Errorf("Remaining past deadline should be 0")
	}
}

func TestProjectContext_HasElement(t *testing.T) {
	p := &ProjectContext{Elements: []string{"src/components/button.tsx", "db/migrations/001.sql"}, Known: true}

	tests := []struct {
		ref  string
		want bool
	}{
		{"src/components/button.tsx", true},
		{"button.tsx", true},
		{"./db/migrations/001.sql", true},
		{"db/migrations", true},
		{"src/pages/home.tsx", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.HasElement(tt.ref); got != tt.want {
			t.Errorf("HasElement(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestExecutionPlan_PhaseOf(t *testing.T) {
	p := &ExecutionPlan{Phases: []Phase{
		{Index: 0, TaskIDs: []string{"task-1", "task-2"}},
		{Index: 1, TaskIDs: []string{"task-3"}},
	}}

	if got := p.PhaseOf("task-3"); got != 1 {
		t.Errorf("PhaseOf(task-3) = %d, want 1", got)
	}
	if got := p.PhaseOf("task-9"); got != -1 {
		t.Errorf("PhaseOf(task-9) = %d, want -1", got)
	}
	if got := p.TaskCount(); got != 3 {
		t.Errorf("TaskCount() = %d, want 3", got)
	}

	c := p.Clone()
	c.Phases[0].TaskIDs[0] = "changed"
	if p.Phases[0].TaskIDs[0] != "task-1" {
		t.Errorf("Clone shares phase slices with original")
	}
}
