package extract

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func texts(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.RefinedText
	}
	return out
}

func TestExtract_Notations(t *testing.T) {
	input := strings.Join([]string{
		"Here is what I need:",
		"TODO: create login page",
		"1. add password reset",
		"2) write unit tests",
		"(3) update the README",
		"a) fix typo in footer",
		"- deploy to staging",
		"* add dark mode",
		"+ seed the database",
		"• rename config keys",
		"- [ ] wire up metrics",
		"- [x] remove dead code",
		"thanks!",
	}, "\n")

	tasks := Extract(input, project.FrameworkRules{})
	assert.Equal(t, []string{
		"create login page",
		"add password reset",
		"write unit tests",
		"update the README",
		"fix typo in footer",
		"deploy to staging",
		"add dark mode",
		"seed the database",
		"rename config keys",
		"wire up metrics",
		"remove dead code",
	}, texts(tasks))

	for i, task := range tasks {
		assert.Equal(t, models.TaskID(i+1), task.ID)
		assert.Equal(t, i, task.Index)
		assert.Equal(t, models.TaskPending, task.State)
		assert.NotEmpty(t, task.RawText)
	}
}

func TestExtract_SequenceSplitting(t *testing.T) {
	tasks := Extract("TODO: create database schema, then create API endpoint, then add red button", project.FrameworkRules{})
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"create database schema", "create API endpoint", "add red button"}, texts(tasks))
	assert.Equal(t, "", tasks[0].SequenceAfter)
	assert.Equal(t, "task-1", tasks[1].SequenceAfter)
	assert.Equal(t, "task-2", tasks[2].SequenceAfter)
}

func TestExtract_ContinuationLines(t *testing.T) {
	input := "TODO: create database schema\nthen create API endpoint\nfinally, add red button"
	tasks := Extract(input, project.FrameworkRules{})
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-1", tasks[1].SequenceAfter)
	assert.Equal(t, "task-2", tasks[2].SequenceAfter)
	assert.Equal(t, "add red button", tasks[2].RefinedText)
}

func TestExtract_ContinuationNeedsPriorTask(t *testing.T) {
	assert.Empty(t, Extract("then do something", project.FrameworkRules{}))
}

func TestExtract_EmptyAndMalformed(t *testing.T) {
	for _, input := range []string{"", "   \n\n", "just prose, no list", "- ", "1. ...", "TODO:"} {
		assert.Empty(t, Extract(input, project.FrameworkRules{}), "input %q", input)
	}
}

func TestExtract_FrameworkHints(t *testing.T) {
	hints := project.FrameworkRules{
		Framework: "django",
		Markers:   []string{"STORY:"},
		Aliases:   map[string]string{"endpoint": "view"},
	}
	tasks := Extract("STORY: add signup endpoint\n- list users endpoint", hints)
	require.Len(t, tasks, 2)
	assert.Equal(t, "add signup view", tasks[0].RefinedText)
	assert.Equal(t, "add signup endpoint", tasks[0].RawText)
	assert.Equal(t, "list users view", tasks[1].RefinedText)
	assert.Equal(t, "django", tasks[0].Framework)
}

func TestExtract_RoundTrip(t *testing.T) {
	inputs := []string{
		"TODO: create database schema, then create API endpoint, then add red button",
		"1. a\n2. b and then c\n- d; then e\nnoise\nthen f",
		"- [ ] one\n- [x] two\n* three\n• four",
		"FIXME - x\nTASK: y , then z",
		"",
	}
	for _, input := range inputs {
		first := Extract(input, project.FrameworkRules{})
		second := Extract(Render(first), project.FrameworkRules{})
		assert.Len(t, second, len(first), "input %q", input)
		third := Extract(Render(second), project.FrameworkRules{})
		assert.Equal(t, texts(second), texts(third))
	}
}

func TestExtract_RoundTripCheckboxFragments(t *testing.T) {
	for _, input := range []string{
		"- [ ] [x] ",
		"• - [ ] , then [x] ;",
		"- [  ] spaced box",
		"- ship it, then [x]",
	} {
		first := Extract(input, project.FrameworkRules{})
		second := Extract(Render(first), project.FrameworkRules{})
		assert.Equal(t, texts(first), texts(second), "input %q rendered %q", input, Render(first))
	}
}

func TestExtract_RoundTripRandom(t *testing.T) {
	atoms := []string{
		"- ", "* ", "• ", "1. ", "a) ", "TODO: ", "then ", "[ ]", "[x]", "[X] ", "[  ]",
		",", ";", ".", " ", "  ", "\t", "\n", ", then ", " and then ", "add button",
		"fix api", "write docs", "-", "–",
	}
	rng := rand.New(rand.NewPCG(7, 42))
	for i := 0; i < 5000; i++ {
		var b strings.Builder
		for n := rng.IntN(12); n >= 0; n-- {
			b.WriteString(atoms[rng.IntN(len(atoms))])
		}
		input := b.String()
		first := Extract(input, project.FrameworkRules{})
		second := Extract(Render(first), project.FrameworkRules{})
		if len(second) != len(first) {
			t.Fatalf("input %q: %d tasks, %d after rendering %q", input, len(first), len(second), Render(first))
		}
	}
}
