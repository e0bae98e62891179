// Package categorize assigns categories to tasks from a rule table.
package categorize

import (
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Source says which rule layer produced a category.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceKeyword Source = "keyword"
	SourceDefault Source = "default"
)

// Match explains a categorization decision.
type Match struct {
	Category models.Category
	Source   Source
	// Rule is the matching pattern, keyword, or context default name.
	Rule string
}

// Categorizer evaluates compiled rules against task text.
type Categorizer struct {
	rules *rules.Compiled
}

// New creates a Categorizer over the given rules.
func New(r *rules.Compiled) *Categorizer {
	return &Categorizer{rules: r}
}

// Categorize returns the category for task. Patterns are tried in table
// order, then keywords, then the project-context default.
func (c *Categorizer) Categorize(task *models.Task, ctx *models.ProjectContext) models.Category {
	return c.Explain(task, ctx).Category
}

// Explain is Categorize with the deciding rule attached.
func (c *Categorizer) Explain(task *models.Task, ctx *models.ProjectContext) Match {
	text := task.Text()
	if cat, rule, ok := c.rules.MatchPattern(text); ok {
		return Match{Category: cat, Source: SourcePattern, Rule: rule}
	}
	if cat, kw, ok := c.rules.MatchKeyword(text); ok {
		return Match{Category: cat, Source: SourceKeyword, Rule: kw}
	}
	cat, name := c.contextDefault(ctx)
	return Match{Category: cat, Source: SourceDefault, Rule: name}
}

// Apply categorizes every task in place and returns the decisions by task id.
func (c *Categorizer) Apply(tasks []*models.Task, ctx *models.ProjectContext) map[string]Match {
	out := make(map[string]Match, len(tasks))
	for _, t := range tasks {
		m := c.Explain(t, ctx)
		t.Category = m.Category
		out[t.ID] = m
	}
	return out
}

func (c *Categorizer) contextDefault(ctx *models.ProjectContext) (models.Category, string) {
	d := c.rules.ContextDefaults
	var (
		cat  models.Category
		name string
	)
	switch {
	case ctx == nil:
		cat, name = d.Unknown, "unknown"
	case ctx.Frontend && ctx.Backend:
		cat, name = d.FullStack, "full_stack"
	case ctx.Backend:
		cat, name = d.BackendOnly, "backend_only"
	case ctx.Frontend:
		cat, name = d.FrontendOnly, "frontend_only"
	case ctx.Database:
		cat, name = d.DatabaseOnly, "database_only"
	default:
		cat, name = d.Unknown, "unknown"
	}
	if !cat.Valid() {
		cat = models.CategoryGeneral
	}
	return cat, name
}
