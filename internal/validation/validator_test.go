package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func pending(id, text string) *models.Task {
	return &models.Task{ID: id, RawText: text, RefinedText: text, State: models.TaskPending}
}

func knownProject() *models.ProjectContext {
	return &models.ProjectContext{
		Known:    true,
		Elements: []string{"README.md", "internal/api/handler.go", "web/src/Button.tsx", "migrations/001_init.sql"},
	}
}

func TestValidate_Transitions(t *testing.T) {
	v := NewValidator(knownProject(), project.FrameworkRules{})
	var seen []string
	v.OnTransition(func(task *models.Task, from, to models.TaskState, detail string) {
		seen = append(seen, task.ID+":"+string(from)+">"+string(to))
	})

	res := v.Validate([]*models.Task{
		pending("task-1", "update internal/api/handler.go"),
		pending("task-2", "fix styles in web/src/Buton.tsx"),
	})

	require.Len(t, res.Validated, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, models.TaskValidated, res.Validated[0].State)
	assert.Equal(t, models.TaskRejected, res.Rejected[0].State)
	assert.Equal(t, models.ReasonValidationRejected, res.Rejected[0].Reason)
	assert.Equal(t, []string{
		"task-1:pending>refining",
		"task-1:refining>validated",
		"task-2:pending>refining",
		"task-2:refining>rejected",
	}, seen)

	require.Len(t, res.Rejections, 1)
	assert.Equal(t, CheckUnknownRef, res.Rejections[0].Check)
	assert.Equal(t, "web/src/Button.tsx", res.Rejections[0].Suggestion)
	assert.Contains(t, res.Rejections[0].Message, "Did you mean")

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.WarningValidationRejected, res.Warnings[0].Kind)
	assert.Equal(t, []string{"task-2"}, res.Warnings[0].TaskIDs)
}

func TestValidate_Checks(t *testing.T) {
	hints := project.FrameworkRules{Framework: "react", Forbidden: []string{"jquery"}}
	tests := []struct {
		name  string
		ctx   *models.ProjectContext
		text  string
		check Check
		ok    bool
	}{
		{"plain task", knownProject(), "add red button", "", true},
		{"empty", knownProject(), "  ", CheckEmpty, false},
		{"punctuation only", knownProject(), "--", CheckEmpty, false},
		{"forbidden", knownProject(), "use jQuery for the modal", CheckForbidden, false},
		{"known dir", knownProject(), "add a migration under migrations/", "", true},
		{"unknown dir", knownProject(), "move helpers to ./pkg/util", CheckUnknownRef, false},
		{"unknown context", &models.ProjectContext{}, "edit nowhere.go", "", true},
		{"nil context", nil, "edit nowhere.go", "", true},
		{"urls ignored", knownProject(), "link https://example.com/docs/index.html in footer", "", true},
		{"library names ignored", knownProject(), "upgrade Node.js", "", true},
		{"ci/cd is not a path", knownProject(), "set up ci/cd pipeline", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.ctx, hints)
			res := v.Validate([]*models.Task{pending("task-1", tt.text)})
			if tt.ok {
				assert.Len(t, res.Validated, 1)
				assert.Empty(t, res.Rejections)
				return
			}
			require.Len(t, res.Rejections, 1)
			assert.Equal(t, tt.check, res.Rejections[0].Check)
		})
	}
}

func TestValidate_SkipsNonPending(t *testing.T) {
	done := &models.Task{ID: "task-1", RefinedText: "x", State: models.TaskValidated}
	rejected := &models.Task{ID: "task-2", RefinedText: "", State: models.TaskRejected}
	res := NewValidator(nil, project.FrameworkRules{}).Validate([]*models.Task{done, rejected})
	assert.Equal(t, []*models.Task{done}, res.Validated)
	assert.Equal(t, []*models.Task{rejected}, res.Rejected)
	assert.Empty(t, res.Warnings)
}

func TestReferences(t *testing.T) {
	got := References(`update "src/app.ts" and README.md, then ./web; see http://x.io/a.js`)
	assert.Equal(t, []string{"src/app.ts", "README.md", "web"}, got)
}

func TestSimilarityScore(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"handler.go", "handler.go", 100},
		{"Handler.go", "handler.go", 100},
		{"handler", "handler.go", 80},
		{"buton.tsx", "button.tsx", 90},
		{"naïve.go", "naive.go", 88},
		{"", "x", 0},
	}
	for _, tt := range tests {
		if got := similarityScore(tt.a, tt.b); got != tt.want {
			t.Errorf("similarityScore(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
