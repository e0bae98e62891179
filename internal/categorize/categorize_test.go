package categorize

import (
	"testing"

	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func newCategorizer(t *testing.T) *Categorizer {
	t.Helper()
	return New(rules.MustCompile(rules.Default()))
}

func TestCategorize_Rules(t *testing.T) {
	c := newCategorizer(t)
	tests := []struct {
		text   string
		want   models.Category
		source Source
	}{
		{"create database schema", models.CategoryDatabase, SourcePattern},
		{"create API endpoint", models.CategoryBackend, SourcePattern},
		{"add red button", models.CategoryUI, SourcePattern},
		{"write unit tests for checkout", models.CategoryTesting, SourcePattern},
		{"deploy to staging", models.CategoryDeployment, SourcePattern},
		{"update the README", models.CategoryDocumentation, SourcePattern},
		{"add caching middleware", models.CategoryBackend, SourceKeyword},
		{"tweak the theme colours", models.CategoryUI, SourceKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := c.Explain(&models.Task{RefinedText: tt.text}, nil)
			if m.Category != tt.want || m.Source != tt.source {
				t.Errorf("Explain(%q) = %s/%s, want %s/%s", tt.text, m.Category, m.Source, tt.want, tt.source)
			}
		})
	}
}

func TestCategorize_ContextDefault(t *testing.T) {
	c := newCategorizer(t)
	task := &models.Task{RefinedText: "improve onboarding flow"}
	tests := []struct {
		name string
		ctx  *models.ProjectContext
		want models.Category
	}{
		{"nil context", nil, models.CategoryGeneral},
		{"full stack", &models.ProjectContext{Frontend: true, Backend: true}, models.CategoryUI},
		{"backend only", &models.ProjectContext{Backend: true}, models.CategoryBackend},
		{"frontend only", &models.ProjectContext{Frontend: true}, models.CategoryUI},
		{"database only", &models.ProjectContext{Database: true}, models.CategoryDatabase},
		{"empty", &models.ProjectContext{}, models.CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Categorize(task, tt.ctx); got != tt.want {
				t.Errorf("Categorize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategorize_Deterministic(t *testing.T) {
	c := newCategorizer(t)
	task := &models.Task{RefinedText: "add login form backed by auth API endpoint"}
	first := c.Categorize(task, nil)
	for i := 0; i < 50; i++ {
		if got := c.Categorize(task, nil); got != first {
			t.Fatalf("run %d: got %s, want %s", i, got, first)
		}
	}
}

func TestApply(t *testing.T) {
	c := newCategorizer(t)
	tasks := []*models.Task{
		{ID: "task-1", RefinedText: "create database schema"},
		{ID: "task-2", RefinedText: "something vague"},
	}
	got := c.Apply(tasks, &models.ProjectContext{Backend: true})
	if tasks[0].Category != models.CategoryDatabase || tasks[1].Category != models.CategoryBackend {
		t.Errorf("categories = %s, %s", tasks[0].Category, tasks[1].Category)
	}
	if got["task-2"].Source != SourceDefault || got["task-2"].Rule != "backend_only" {
		t.Errorf("task-2 match = %+v", got["task-2"])
	}
}
