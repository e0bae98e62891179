package prioritize

import (
	"math"
	"testing"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

const eps = 1e-9

func buildGraph(t *testing.T, texts []string, edges ...[2]int) *graph.TaskGraph {
	t.Helper()
	g := graph.New()
	for i, text := range texts {
		g.AddTask(&models.Task{ID: models.TaskID(i + 1), Index: i, RefinedText: text})
	}
	for _, e := range edges {
		if _, err := g.AddEdge(models.TaskID(e[0]), models.TaskID(e[1]), graph.EdgeExplicit, ""); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestDependencyFactor(t *testing.T) {
	tests := []struct {
		name                   string
		out, in, maxOut, maxIn int
		want                   float64
	}{
		{"isolated graph", 0, 0, 0, 0, 0.3},
		{"root of chain", 1, 0, 1, 1, 1.0},
		{"leaf of chain", 0, 1, 1, 1, 0.0},
		{"half", 1, 1, 2, 2, 0.35 + 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dependencyFactor(tt.out, tt.in, tt.maxOut, tt.maxIn); math.Abs(got-tt.want) > eps {
				t.Errorf("dependencyFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdjustClamps(t *testing.T) {
	if got := adjust(0, 0); got != 0.5 {
		t.Errorf("adjust(0,0) = %v", got)
	}
	if got := adjust(9, 0); got != 1 {
		t.Errorf("adjust(9,0) = %v", got)
	}
	if got := adjust(0, 9); got != 0 {
		t.Errorf("adjust(0,9) = %v", got)
	}
}

func TestPrioritize_Scores(t *testing.T) {
	p := New(rules.MustCompile(rules.Default()))
	g := buildGraph(t, []string{
		"fix critical login bug",
		"refactor payment architecture",
		"fix typo in label",
	}, [2]int{1, 2})

	got := p.Prioritize(g)
	if len(got) != 3 {
		t.Fatalf("got %d tasks", len(got))
	}

	f := p.Explain(g)
	// task-1: unblocks task-2, 3 of 12 high-value words, neutral complexity and risk.
	want1 := 0.4*1.0 + 0.3*(3.0/12.0) + 0.2*0.5 + 0.1*0.5
	if math.Abs(f["task-1"].Score-want1) > eps {
		t.Errorf("task-1 score = %v, want %v", f["task-1"].Score, want1)
	}
	// task-3: "typo" and "label" are both simple and low risk.
	if math.Abs(f["task-3"].Complexity-0.7) > eps || math.Abs(f["task-3"].Risk-0.7) > eps {
		t.Errorf("task-3 factors = %+v", f["task-3"])
	}
	// task-2: "refactor" and "architecture" are complex, "payment" is high risk.
	if math.Abs(f["task-2"].Complexity-0.3) > eps || math.Abs(f["task-2"].Risk-0.4) > eps {
		t.Errorf("task-2 factors = %+v", f["task-2"])
	}
	if f["task-2"].Dependency != 0 {
		t.Errorf("task-2 dependency = %v, want 0", f["task-2"].Dependency)
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].PriorityScore < got[i].PriorityScore {
			t.Errorf("not sorted: %v before %v", got[i-1].PriorityScore, got[i].PriorityScore)
		}
	}
	if got[0].ID != "task-1" || got[1].ID != "task-3" || got[2].ID != "task-2" {
		t.Errorf("order = %s %s %s, want task-1 task-3 task-2", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[2].EstimatedDuration <= 0 {
		t.Error("duration not estimated")
	}
}

func TestPrioritize_StableTies(t *testing.T) {
	p := New(rules.MustCompile(rules.Default()))
	texts := []string{"add red button", "add blue header", "add green footer", "add grey sidebar"}
	for run := 0; run < 20; run++ {
		got := p.Prioritize(buildGraph(t, texts))
		for i, task := range got {
			if task.ID != models.TaskID(i+1) {
				t.Fatalf("run %d: position %d holds %s", run, i, task.ID)
			}
		}
	}
}

func TestPrioritize_Deterministic(t *testing.T) {
	p := New(rules.MustCompile(rules.Default()))
	texts := []string{
		"migrate database schema", "add login page", "fix security bug in auth",
		"write tests", "update readme", "deploy to production",
	}
	edges := [][2]int{{1, 2}, {1, 3}, {3, 4}, {2, 4}, {4, 6}}
	var first []string
	for run := 0; run < 20; run++ {
		var ids []string
		for _, task := range p.Prioritize(buildGraph(t, texts, edges...)) {
			ids = append(ids, task.ID)
		}
		if run == 0 {
			first = ids
			continue
		}
		for i := range ids {
			if ids[i] != first[i] {
				t.Fatalf("run %d order %v, first %v", run, ids, first)
			}
		}
	}
}

func TestEstimate(t *testing.T) {
	if got := estimate(1); got != 10*time.Minute {
		t.Errorf("estimate(1) = %v", got)
	}
	if got := estimate(0.5); got != 30*time.Minute {
		t.Errorf("estimate(0.5) = %v", got)
	}
	if got := estimate(0); got != 50*time.Minute {
		t.Errorf("estimate(0) = %v", got)
	}
}
