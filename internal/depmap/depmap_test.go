package depmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskpilot/internal/categorize"
	"github.com/ShayCichocki/taskpilot/internal/extract"
	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func newMapper() *Mapper {
	return New(rules.MustCompile(rules.Default()), nil)
}

func task(n int, cat models.Category, text string) *models.Task {
	return &models.Task{ID: models.TaskID(n), Index: n - 1, RawText: text, RefinedText: text, Category: cat}
}

type edge struct {
	from, to string
	kind     graph.EdgeKind
}

func edgesOf(g *graph.TaskGraph) []edge {
	var out []edge
	for _, e := range g.Edges() {
		out = append(out, edge{e.From, e.To, e.Kind})
	}
	return out
}

func TestMapDependencies_Scenario(t *testing.T) {
	r := rules.MustCompile(rules.Default())
	tasks := extract.Extract("TODO: create database schema, then create API endpoint, then add red button", project.FrameworkRules{})
	require.Len(t, tasks, 3)
	categorize.New(r).Apply(tasks, nil)

	g, warnings := New(r, nil).MapDependencies(tasks, nil)
	assert.Empty(t, warnings)
	assert.False(t, g.HasCycles())
	assert.Equal(t, []models.Category{models.CategoryDatabase, models.CategoryBackend, models.CategoryUI},
		[]models.Category{tasks[0].Category, tasks[1].Category, tasks[2].Category})
	assert.Empty(t, tasks[0].Dependencies)
	assert.Equal(t, []string{"task-1"}, tasks[1].Dependencies)
	assert.Equal(t, []string{"task-2"}, tasks[2].Dependencies)
}

func TestMapDependencies_Passes(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.CategoryTesting, "write integration tests for checkout"),
		task(2, models.CategoryUI, "add checkout page after the payment endpoint"),
		task(3, models.CategoryBackend, "create payment endpoint"),
		task(4, models.CategoryDocumentation, "update README"),
		task(5, models.CategoryDeployment, "deploy to production"),
	}
	g, warnings := newMapper().MapDependencies(tasks, nil)
	assert.Empty(t, warnings)
	assert.Equal(t, []edge{
		{"task-1", "task-5", graph.EdgeCategory},
		{"task-2", "task-1", graph.EdgeCategory},
		{"task-2", "task-5", graph.EdgeCategory},
		{"task-3", "task-2", graph.EdgeExplicit},
		{"task-3", "task-5", graph.EdgeCategory},
	}, edgesOf(g))
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, tasks[4].Dependencies)
	assert.Empty(t, tasks[3].Dependencies)
}

func TestMapDependencies_BeforeCue(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.CategoryGeneral, "announce release notes"),
		task(2, models.CategoryGeneral, "freeze the branch before release notes"),
	}
	g, _ := newMapper().MapDependencies(tasks, nil)
	assert.True(t, g.HasEdge("task-2", "task-1"))
	e, _ := g.Edge("task-2", "task-1")
	assert.Equal(t, graph.EdgeExplicit, e.Kind)
}

func TestMapDependencies_SharedEntities(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.CategoryUI, "add login button"),
		task(2, models.CategoryUI, "style login page"),
		task(3, models.CategoryBackend, "create login endpoint"),
	}
	g, _ := newMapper().MapDependencies(tasks, nil)
	assert.Equal(t, []edge{
		{"task-1", "task-2", graph.EdgeEntity},
		{"task-3", "task-1", graph.EdgeCategory},
		{"task-3", "task-2", graph.EdgeCategory},
	}, edgesOf(g))
}

func TestMapDependencies_IndependentTasks(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.CategoryUI, "add red button"),
		task(2, models.CategoryUI, "add blue header"),
	}
	g, warnings := newMapper().MapDependencies(tasks, nil)
	assert.Empty(t, warnings)
	assert.Empty(t, g.Edges())
}

func TestMapDependencies_CycleBroken(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.CategoryGeneral, "build login API after the login page"),
		task(2, models.CategoryGeneral, "build login page after the login API"),
	}
	g, warnings := newMapper().MapDependencies(tasks, nil)
	assert.False(t, g.HasCycles())
	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarningCycleBroken, warnings[0].Kind)
	assert.Equal(t, []string{"task-1", "task-2"}, warnings[0].TaskIDs)
	assert.Contains(t, warnings[0].Message, "task-2 -> task-1")
	assert.True(t, g.HasEdge("task-1", "task-2"))
	assert.False(t, g.HasEdge("task-2", "task-1"))
}

func TestMapDependencies_AlwaysAcyclic(t *testing.T) {
	texts := []string{
		"create users table after the login endpoint",
		"create login endpoint requires users table",
		"add login form depends on login endpoint",
		"write tests for login form before users table",
		"deploy login service",
		"document login flow",
	}
	cats := []models.Category{
		models.CategoryDatabase, models.CategoryBackend, models.CategoryUI,
		models.CategoryTesting, models.CategoryDeployment, models.CategoryDocumentation,
	}
	for run := 0; run < 10; run++ {
		var tasks []*models.Task
		for i, text := range texts {
			tasks = append(tasks, task(i+1, cats[i], text))
		}
		g, _ := newMapper().MapDependencies(tasks, nil)
		require.False(t, g.HasCycles())
		_, err := g.TopologicalSort()
		require.NoError(t, err)
	}
}

func TestCueTargets(t *testing.T) {
	got := cueTargets("Add login form once the API is ready, then style it; requires design tokens.", []string{"once", "requires", "require"})
	assert.Equal(t, []cue{
		{phrase: "once", target: "the api is ready"},
		{phrase: "requires", target: "design tokens"},
	}, got)
	assert.Empty(t, cueTargets("aftermath of the afternoon", []string{"after"}))
}
