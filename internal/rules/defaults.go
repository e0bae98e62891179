package rules

import "github.com/ShayCichocki/taskpilot/pkg/models"

// DefaultProbeText is the completion probe sent to the execution surface.
const DefaultProbeText = "are you done?"

// Default returns the built-in rule table. Callers receive a fresh copy.
func Default() *RuleSet {
	return defaultRuleSet.Clone()
}

var defaultRuleSet = &RuleSet{
	// Table order matters: the first matching pattern wins, so the narrower
	// categories (tests, deploys, docs) are consulted before the broad ones.
	Categories: []CategoryRule{
		{
			Category: models.CategoryTesting,
			Patterns: []string{
				`\b(unit|integration|e2e|end-to-end|regression|smoke)\s+tests?\b`,
				`\b(write|add|create|fix)\s+(a\s+)?tests?\b`,
				`\btests?\s+(for|the|coverage)\b`,
			},
			Keywords: []string{"test", "testing", "spec", "assert", "mock", "coverage", "qa"},
		},
		{
			Category: models.CategoryDeployment,
			Patterns: []string{
				`\bdeploy(ment|ing|s)?\b`,
				`\b(ci|cd|ci/cd)\s+pipeline\b`,
				`\brelease\s+(to|build|v?\d)`,
			},
			Keywords: []string{"docker", "kubernetes", "helm", "terraform", "pipeline", "staging", "production", "rollout"},
		},
		{
			Category: models.CategoryDocumentation,
			Patterns: []string{
				`\b(readme|changelog)\b`,
				`\bdocument(ation)?\b`,
				`\b(api\s+)?docs\b`,
			},
			Keywords: []string{"guide", "tutorial", "jsdoc", "godoc", "wiki", "comments"},
		},
		{
			Category: models.CategoryDatabase,
			Patterns: []string{
				`\b(database|db)\s+(schema|table|migration|index|model)s?\b`,
				`\bmigrations?\b`,
				`\bschemas?\b`,
				`\bsql\b`,
			},
			Keywords: []string{"database", "table", "column", "query", "index", "postgres", "mysql", "sqlite", "mongodb", "seed", "orm"},
		},
		{
			Category: models.CategoryBackend,
			Patterns: []string{
				`\b(api|rest|graphql|http)\s+(endpoint|route|handler|server)s?\b`,
				`\bendpoints?\b`,
				`\b(web)?server\b`,
			},
			Keywords: []string{"api", "service", "controller", "auth", "authentication", "middleware", "backend", "webhook", "queue", "cache", "handler"},
		},
		{
			Category: models.CategoryUI,
			Patterns: []string{
				`\b(button|modal|page|form|navbar|header|footer|layout|component|screen|dialog|sidebar|dropdown|tooltip)s?\b`,
				`\b(css|html|stylesheet)\b`,
			},
			Keywords: []string{"color", "style", "theme", "responsive", "click", "icon", "font", "animation", "frontend", "react", "vue", "svelte", "tailwind", "ui", "ux"},
		},
	},

	ContextDefaults: ContextDefaults{
		FullStack:    models.CategoryUI,
		BackendOnly:  models.CategoryBackend,
		FrontendOnly: models.CategoryUI,
		DatabaseOnly: models.CategoryDatabase,
		Unknown:      models.CategoryGeneral,
	},

	CategoryRank: []models.Category{
		models.CategoryDatabase,
		models.CategoryBackend,
		models.CategoryUI,
		models.CategoryTesting,
		models.CategoryDocumentation,
		models.CategoryDeployment,
		models.CategoryGeneral,
	},

	Ordering: []OrderingRule{
		{Before: models.CategoryDatabase, After: models.CategoryBackend, RequireOverlap: true},
		{Before: models.CategoryBackend, After: models.CategoryUI, RequireOverlap: true},
		{Before: AnyCategory, After: models.CategoryTesting, RequireOverlap: true},
		{Before: AnyCategory, After: models.CategoryDocumentation, RequireOverlap: true},
		{Before: AnyCategory, After: models.CategoryDeployment, Exclude: []models.Category{models.CategoryDocumentation}},
	},

	Cues: CueRules{
		After:          []string{"after", "requires", "require", "depends on", "dependent on", "once", "following", "needs"},
		Before:         []string{"before", "prior to"},
		FuzzyThreshold: 0.5,
	},

	Priority: PriorityRules{
		HighValue: []string{"critical", "urgent", "security", "bug", "blocker", "core", "payment", "login", "crash", "customer", "revenue", "performance"},
		Simple:    []string{"typo", "rename", "color", "text", "label", "copy", "small", "simple", "minor", "icon", "tweak"},
		Complex:   []string{"refactor", "migrate", "migration", "architecture", "redesign", "integrate", "integration", "distributed", "concurrency", "rewrite", "schema"},
		LowRisk:   []string{"docs", "readme", "comment", "style", "color", "label", "typo", "test"},
		HighRisk:  []string{"production", "database", "migration", "delete", "drop", "auth", "payment", "security", "deploy", "schema"},
	},

	Confirmation: ConfirmationRules{
		Affirmative:     []string{"yes", "yep", "done", "finished", "completed", "complete", "all set", "task complete", "implemented", "that's it"},
		Negations:       []string{"not", "no", "never", "nothing", "isn't", "wasn't", "hasn't", "haven't", "didn't", "aren't", "can't", "cannot", "yet to", "almost", "nearly"},
		CompletionWords: []string{"done", "finished", "complete", "completed", "ready", "implemented"},
		NegationWindow:  2,
		ProbeText:       DefaultProbeText,
	},

	Fallback: FallbackRules{
		Markers: []string{"choice", "choose", "select", "which option", "which one", "pick one", "option a", "(y/n)", "[y/n]", "would you like", "do you want me to", "please confirm", "should i"},
	},

	StopWords: []string{
		"the", "a", "an", "and", "or", "to", "of", "for", "in", "on", "with", "by", "at", "from",
		"into", "that", "this", "is", "be", "it", "as", "then", "new", "all", "some", "our", "my",
		"its", "using", "use", "via", "so", "up", "when", "once", "after", "before", "requires",
		"depends", "following", "needs", "should", "must", "can", "will", "also", "more", "any",
	},

	ActionVerbs: []string{
		"create", "add", "update", "fix", "implement", "build", "make", "write", "remove", "delete",
		"set", "setup", "configure", "refactor", "change", "improve", "ensure", "move", "rename",
		"edit", "modify", "support", "handle", "allow", "enable", "disable", "integrate", "connect",
		"show", "display", "generate", "run", "check", "verify", "test", "tests", "document", "deploy",
	},
}
