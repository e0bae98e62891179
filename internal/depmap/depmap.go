// Package depmap infers "must complete before" relations between tasks and
// builds the acyclic task graph the planner works from.
package depmap

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Mapper builds dependency graphs from a compiled rule table.
type Mapper struct {
	rules  *rules.Compiled
	logger *slog.Logger
}

// New creates a Mapper. A nil logger discards output.
func New(r *rules.Compiled, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mapper{rules: r, logger: logger}
}

// node caches the per-task text analysis shared by all passes.
type node struct {
	task     *models.Task
	text     string
	entities map[string]bool
}

// MapDependencies builds the task graph in three passes (explicit cues,
// category ordering, shared entities), breaks any cycles, and writes the
// resulting Dependencies back onto the tasks. Every broken cycle is
// returned as a CycleBroken warning.
func (m *Mapper) MapDependencies(tasks []*models.Task, ctx *models.ProjectContext) (*graph.TaskGraph, []models.Warning) {
	g := graph.New()
	g.SetLogger(m.logger)

	nodes := make([]*node, len(tasks))
	byID := make(map[string]*node, len(tasks))
	for i, t := range tasks {
		g.AddTask(t)
		n := &node{task: t, text: t.Text(), entities: m.entities(t, ctx)}
		nodes[i] = n
		byID[t.ID] = n
	}

	m.explicitPass(g, nodes, byID)
	m.categoryPass(g, nodes)
	m.entityPass(g, nodes)

	var warnings []models.Warning
	broken, err := g.BreakCycles()
	if err != nil {
		// Only a frozen graph fails here, and this graph is private.
		m.logger.Error("break cycles", "error", err)
	}
	for _, b := range broken {
		warnings = append(warnings, models.Warning{
			Kind:    models.WarningCycleBroken,
			TaskIDs: slices.Clone(b.Cycle),
			Message: fmt.Sprintf("dependency cycle %s broken by removing %s -> %s",
				strings.Join(append(slices.Clone(b.Cycle), b.Cycle[0]), " -> "), b.Removed.From, b.Removed.To),
		})
	}

	g.SyncDependencies()
	m.logger.Info("dependencies mapped", "tasks", len(tasks), "edges", len(g.Edges()), "cycles_broken", len(broken))
	return g, warnings
}

// entities returns the significant nouns of a task plus any project
// elements it names.
func (m *Mapper) entities(t *models.Task, ctx *models.ProjectContext) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range m.rules.Significant(t.Text()) {
		set[tok] = true
	}
	if ctx != nil && ctx.Known {
		for _, field := range strings.Fields(t.RawText) {
			field = strings.Trim(field, "\"'`()[]{},;:.")
			if strings.ContainsAny(field, "/.") && ctx.HasElement(field) {
				set["path:"+strings.TrimPrefix(field, "./")] = true
			}
		}
	}
	return set
}

// explicitPass adds edges for linguistic cues and extractor sequence links.
func (m *Mapper) explicitPass(g *graph.TaskGraph, nodes []*node, byID map[string]*node) {
	for _, n := range nodes {
		if prev, ok := byID[n.task.SequenceAfter]; ok {
			m.addEdge(g, prev.task.ID, n.task.ID, graph.EdgeSequence, "listed after "+prev.task.ID)
		}

		for _, cue := range cueTargets(n.text, m.rules.Cues.After) {
			if target := m.resolve(cue.target, n, nodes); target != nil {
				m.addEdge(g, target.task.ID, n.task.ID, graph.EdgeExplicit, fmt.Sprintf("%q %s", cue.phrase, cue.target))
			}
		}
		for _, cue := range cueTargets(n.text, m.rules.Cues.Before) {
			if target := m.resolve(cue.target, n, nodes); target != nil {
				m.addEdge(g, n.task.ID, target.task.ID, graph.EdgeExplicit, fmt.Sprintf("%q %s", cue.phrase, cue.target))
			}
		}
	}
}

// resolve fuzzily matches cue text against the other tasks: the score is
// the share of the cue's significant tokens found among a task's entities.
// The best score at or above the threshold wins; ties go to the lowest id.
func (m *Mapper) resolve(target string, self *node, nodes []*node) *node {
	tokens := m.rules.Significant(target)
	if len(tokens) == 0 {
		return nil
	}
	var best *node
	bestScore := 0.0
	for _, other := range nodes {
		if other == self {
			continue
		}
		hits := 0
		for _, tok := range tokens {
			if other.entities[tok] {
				hits++
			}
		}
		score := float64(hits) / float64(len(tokens))
		if score < m.rules.Cues.FuzzyThreshold || score == 0 {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && models.CompareIDs(other.task.ID, best.task.ID) < 0) {
			best, bestScore = other, score
		}
	}
	return best
}

// categoryPass applies the ordering rules of the rule table to every pair of
// tasks that are not already related.
func (m *Mapper) categoryPass(g *graph.TaskGraph, nodes []*node) {
	for _, rule := range m.rules.Ordering {
		for _, a := range nodes {
			if !matchesBefore(rule, a.task.Category) {
				continue
			}
			for _, b := range nodes {
				if a == b || b.task.Category != rule.After || g.Connected(a.task.ID, b.task.ID) {
					continue
				}
				reason := fmt.Sprintf("%s before %s", a.task.Category, b.task.Category)
				if rule.RequireOverlap {
					shared := sharedEntities(a, b)
					if len(shared) == 0 {
						continue
					}
					reason += " sharing " + strings.Join(shared, ", ")
				}
				m.addEdge(g, a.task.ID, b.task.ID, graph.EdgeCategory, reason)
			}
		}
	}
}

func matchesBefore(rule rules.OrderingRule, c models.Category) bool {
	if c == rule.After || slices.Contains(rule.Exclude, c) {
		return false
	}
	return rule.Before == rules.AnyCategory || rule.Before == c
}

// entityPass adds weak edges between unrelated tasks that share an entity.
// Lower category rank goes first; equal ranks keep extraction order.
func (m *Mapper) entityPass(g *graph.TaskGraph, nodes []*node) {
	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			if g.Connected(a.task.ID, b.task.ID) {
				continue
			}
			shared := sharedEntities(a, b)
			if len(shared) == 0 {
				continue
			}
			first, second := a, b
			ra, rb := m.rules.Rank(a.task.Category), m.rules.Rank(b.task.Category)
			if rb < ra || (ra == rb && models.CompareIDs(b.task.ID, a.task.ID) < 0) {
				first, second = b, a
			}
			m.addEdge(g, first.task.ID, second.task.ID, graph.EdgeEntity, "shared "+strings.Join(shared, ", "))
		}
	}
}

func (m *Mapper) addEdge(g *graph.TaskGraph, from, to string, kind graph.EdgeKind, reason string) {
	if _, err := g.AddEdge(from, to, kind, reason); err != nil {
		m.logger.Warn("edge rejected", "from", from, "to", to, "error", err)
	}
}

func sharedEntities(a, b *node) []string {
	var shared []string
	for e := range a.entities {
		if b.entities[e] {
			shared = append(shared, e)
		}
	}
	slices.Sort(shared)
	return shared
}
