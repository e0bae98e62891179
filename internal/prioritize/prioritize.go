// Package prioritize scores tasks from graph position and keyword signals.
package prioritize

import (
	"math"
	"sort"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Factor weights. They sum to 1 so the score stays in [0,1].
const (
	WeightDependency = 0.4
	WeightValue      = 0.3
	WeightComplexity = 0.2
	WeightRisk       = 0.1
)

const (
	baselineFactor = 0.5
	keywordStep    = 0.1

	minDuration  = 10 * time.Minute
	durationSpan = 40 * time.Minute
)

// Factors is the breakdown of one task's score.
type Factors struct {
	Dependency float64 `json:"dependency"`
	Value      float64 `json:"value"`
	Complexity float64 `json:"complexity"`
	Risk       float64 `json:"risk"`
	Score      float64 `json:"score"`
}

// Prioritizer computes composite priority scores.
type Prioritizer struct {
	rules *rules.Compiled
}

// New creates a Prioritizer over the given rules.
func New(r *rules.Compiled) *Prioritizer {
	return &Prioritizer{rules: r}
}

// Prioritize annotates every task in g with its PriorityScore and
// EstimatedDuration and returns the tasks sorted by descending score. Ties
// keep graph insertion order.
func (p *Prioritizer) Prioritize(g *graph.TaskGraph) []*models.Task {
	tasks := g.Tasks()
	maxOut, maxIn := degreeBounds(g, tasks)
	for _, t := range tasks {
		f := p.factors(g, t, maxOut, maxIn)
		t.PriorityScore = f.Score
		t.EstimatedDuration = estimate(f.Complexity)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].PriorityScore > tasks[j].PriorityScore
	})
	return tasks
}

// Explain returns the factor breakdown for every task in g, by id.
func (p *Prioritizer) Explain(g *graph.TaskGraph) map[string]Factors {
	tasks := g.Tasks()
	maxOut, maxIn := degreeBounds(g, tasks)
	out := make(map[string]Factors, len(tasks))
	for _, t := range tasks {
		out[t.ID] = p.factors(g, t, maxOut, maxIn)
	}
	return out
}

func (p *Prioritizer) factors(g *graph.TaskGraph, t *models.Task, maxOut, maxIn int) Factors {
	text := t.Text()
	pr := p.rules.Priority

	f := Factors{
		Dependency: dependencyFactor(g.OutDegree(t.ID), g.InDegree(t.ID), maxOut, maxIn),
		Complexity: adjust(rules.CountPhrases(text, pr.Simple), rules.CountPhrases(text, pr.Complex)),
		Risk:       adjust(rules.CountPhrases(text, pr.LowRisk), rules.CountPhrases(text, pr.HighRisk)),
	}
	if len(pr.HighValue) > 0 {
		f.Value = float64(rules.CountPhrases(text, pr.HighValue)) / float64(len(pr.HighValue))
	}
	f.Score = WeightDependency*f.Dependency +
		WeightValue*f.Value +
		WeightComplexity*f.Complexity +
		WeightRisk*f.Risk
	return f
}

// dependencyFactor favours tasks that unblock more work and wait on less.
// A zero bound contributes 0 for the out term and 1 for the in term.
func dependencyFactor(out, in, maxOut, maxIn int) float64 {
	outTerm := 0.0
	if maxOut > 0 {
		outTerm = float64(out) / float64(maxOut)
	}
	inTerm := 1.0
	if maxIn > 0 {
		inTerm = float64(maxIn-in) / float64(maxIn)
	}
	return 0.7*outTerm + 0.3*inTerm
}

// adjust starts at the baseline, adds a step per favourable keyword and
// subtracts one per unfavourable keyword.
func adjust(up, down int) float64 {
	v := baselineFactor + keywordStep*float64(up) - keywordStep*float64(down)
	return math.Max(0, math.Min(1, v))
}

// estimate maps the complexity factor onto a duration: simpler is shorter.
func estimate(complexity float64) time.Duration {
	d := minDuration + time.Duration((1-complexity)*float64(durationSpan))
	return d.Round(time.Minute)
}

func degreeBounds(g *graph.TaskGraph, tasks []*models.Task) (maxOut, maxIn int) {
	for _, t := range tasks {
		maxOut = max(maxOut, g.OutDegree(t.ID))
		maxIn = max(maxIn, g.InDegree(t.ID))
	}
	return maxOut, maxIn
}
