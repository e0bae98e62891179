// Package rules holds the data-driven lookup tables that steer categorization,
// dependency inference, prioritization, and confirmation handling.
//
// A RuleSet is plain data: it is loaded once at session start (built-in
// defaults, optionally overlaid by a YAML file) and compiled into matchers.
// Nothing in the pipeline hard-codes a keyword.
package rules

import "github.com/ShayCichocki/taskpilot/pkg/models"

// AnyCategory matches every category in an OrderingRule.
const AnyCategory models.Category = "*"

// CategoryRule maps patterns and keywords to a category.
type CategoryRule struct {
	// Category is the category assigned on a match.
	Category models.Category `yaml:"category"`
	// Patterns are case-insensitive regular expressions matched against the
	// refined text. The first matching rule in table order wins.
	Patterns []string `yaml:"patterns,omitempty"`
	// Keywords are whole-word phrases consulted when no pattern matched.
	Keywords []string `yaml:"keywords,omitempty"`
}

// ContextDefaults selects the fallback category from the project surfaces.
type ContextDefaults struct {
	FullStack    models.Category `yaml:"full_stack"`
	BackendOnly  models.Category `yaml:"backend_only"`
	FrontendOnly models.Category `yaml:"frontend_only"`
	DatabaseOnly models.Category `yaml:"database_only"`
	Unknown      models.Category `yaml:"unknown"`
}

// OrderingRule is a category-order heuristic: tasks of Before precede tasks of
// After, optionally only when the two share a significant noun.
type OrderingRule struct {
	Before         models.Category   `yaml:"before"`
	After          models.Category   `yaml:"after"`
	RequireOverlap bool              `yaml:"require_overlap"`
	Exclude        []models.Category `yaml:"exclude,omitempty"`
}

// CueRules lists the linguistic cues that state an explicit dependency.
type CueRules struct {
	// After cues name a prerequisite: "after X", "requires X".
	After []string `yaml:"after"`
	// Before cues name a dependent: "before X".
	Before []string `yaml:"before"`
	// FuzzyThreshold is the minimum share of cue tokens found in the target.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// PriorityRules are the keyword sets behind the value, complexity and risk factors.
type PriorityRules struct {
	HighValue []string `yaml:"high_value"`
	Simple    []string `yaml:"simple"`
	Complex   []string `yaml:"complex"`
	LowRisk   []string `yaml:"low_risk"`
	HighRisk  []string `yaml:"high_risk"`
}

// ConfirmationRules drive the confirmation classifier.
type ConfirmationRules struct {
	// Affirmative phrases complete a task when they answer a probe.
	Affirmative []string `yaml:"affirmative"`
	// Negations flip a nearby completion word into "continue".
	Negations []string `yaml:"negations"`
	// CompletionWords are the words a negation can attach to.
	CompletionWords []string `yaml:"completion_words"`
	// NegationWindow is how many tokens before a completion word are inspected.
	NegationWindow int `yaml:"negation_window"`
	// ProbeText is the "are you done?" message sent to the execution surface.
	ProbeText string `yaml:"probe_text"`
}

// FallbackRules list the input-request markers the engine cannot resolve.
type FallbackRules struct {
	Markers []string `yaml:"markers"`
}

// RuleSet is the complete rule table for a session.
type RuleSet struct {
	Categories      []CategoryRule    `yaml:"categories"`
	ContextDefaults ContextDefaults   `yaml:"context_defaults"`
	CategoryRank    []models.Category `yaml:"category_rank"`
	Ordering        []OrderingRule    `yaml:"ordering"`
	Cues            CueRules          `yaml:"dependency_cues"`
	Priority        PriorityRules     `yaml:"priority"`
	Confirmation    ConfirmationRules `yaml:"confirmation"`
	Fallback        FallbackRules     `yaml:"fallback"`
	StopWords       []string          `yaml:"stop_words"`
	ActionVerbs     []string          `yaml:"action_verbs"`
}

// Rank returns the position of c in CategoryRank; unranked categories sort last.
func (r *RuleSet) Rank(c models.Category) int {
	for i, rc := range r.CategoryRank {
		if rc == c {
			return i
		}
	}
	return len(r.CategoryRank)
}

// Clone returns a deep copy of the rule set.
func (r *RuleSet) Clone() *RuleSet {
	c := *r
	c.Categories = make([]CategoryRule, len(r.Categories))
	for i, cr := range r.Categories {
		c.Categories[i] = CategoryRule{
			Category: cr.Category,
			Patterns: append([]string(nil), cr.Patterns...),
			Keywords: append([]string(nil), cr.Keywords...),
		}
	}
	c.CategoryRank = append([]models.Category(nil), r.CategoryRank...)
	c.Ordering = make([]OrderingRule, len(r.Ordering))
	for i, o := range r.Ordering {
		o.Exclude = append([]models.Category(nil), o.Exclude...)
		c.Ordering[i] = o
	}
	c.Cues.After = append([]string(nil), r.Cues.After...)
	c.Cues.Before = append([]string(nil), r.Cues.Before...)
	c.Priority = PriorityRules{
		HighValue: append([]string(nil), r.Priority.HighValue...),
		Simple:    append([]string(nil), r.Priority.Simple...),
		Complex:   append([]string(nil), r.Priority.Complex...),
		LowRisk:   append([]string(nil), r.Priority.LowRisk...),
		HighRisk:  append([]string(nil), r.Priority.HighRisk...),
	}
	c.Confirmation.Affirmative = append([]string(nil), r.Confirmation.Affirmative...)
	c.Confirmation.Negations = append([]string(nil), r.Confirmation.Negations...)
	c.Confirmation.CompletionWords = append([]string(nil), r.Confirmation.CompletionWords...)
	c.Fallback.Markers = append([]string(nil), r.Fallback.Markers...)
	c.StopWords = append([]string(nil), r.StopWords...)
	c.ActionVerbs = append([]string(nil), r.ActionVerbs...)
	return &c
}
