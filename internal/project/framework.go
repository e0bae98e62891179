package project

import (
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// FrameworkRules are the structured hints delivered with a task list. All
// fields are optional; the zero value means "default rules".
type FrameworkRules struct {
	// Framework names the framework the tasks target ("react", "django").
	Framework string `yaml:"framework"`
	// Language names the implementation language.
	Language string `yaml:"language"`
	// Aliases rewrite terms during refinement ("endpoint" -> "REST endpoint").
	Aliases map[string]string `yaml:"aliases"`
	// Forbidden terms cause a task to be rejected during validation.
	Forbidden []string `yaml:"forbidden"`
	// Markers are extra explicit list markers ("STORY:").
	Markers []string `yaml:"markers"`
	// Conventions are free-form notes forwarded with each instruction.
	Conventions []string `yaml:"conventions"`
}

// IsZero reports whether no rule is set.
func (r FrameworkRules) IsZero() bool {
	return r.Framework == "" && r.Language == "" && len(r.Aliases) == 0 &&
		len(r.Forbidden) == 0 && len(r.Markers) == 0 && len(r.Conventions) == 0
}

// AliasKeys returns the alias keys, longest first so that multi-word aliases
// are applied before their sub-words.
func (r FrameworkRules) AliasKeys() []string {
	keys := make([]string, 0, len(r.Aliases))
	for k := range r.Aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ParseFrameworkRules interprets the framework context string. YAML mappings
// are decoded directly. Anything else is read leniently as "key: value" lines,
// and a bare first line is taken as the framework name. Parsing never fails:
// unreadable context degrades to default rules.
func ParseFrameworkRules(context string) FrameworkRules {
	context = strings.TrimSpace(context)
	if context == "" {
		return FrameworkRules{}
	}

	var rules FrameworkRules
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(context), &probe); err == nil && len(probe) > 0 {
		if err := yaml.Unmarshal([]byte(context), &rules); err == nil {
			rules.Framework = strings.TrimSpace(rules.Framework)
			return rules
		}
		rules = FrameworkRules{}
	}

	for i, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			if i == 0 && rules.Framework == "" && len(line) <= 40 {
				rules.Framework = line
			} else {
				rules.Conventions = append(rules.Conventions, line)
			}
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "framework":
			rules.Framework = value
		case "language", "lang":
			rules.Language = value
		case "forbidden", "avoid":
			rules.Forbidden = append(rules.Forbidden, splitList(value)...)
		case "markers":
			rules.Markers = append(rules.Markers, splitList(value)...)
		default:
			rules.Conventions = append(rules.Conventions, line)
		}
	}
	return rules
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
