package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Compiled is a RuleSet with its regular expressions and word sets prepared
// for matching. It is immutable and safe for concurrent use.
type Compiled struct {
	*RuleSet

	categoryPatterns [][]*regexp.Regexp
	stop             map[string]bool
	verbs            map[string]bool
}

// Compile validates the rule set and prepares its matchers.
func (r *RuleSet) Compile() (*Compiled, error) {
	c := &Compiled{
		RuleSet:          r,
		categoryPatterns: make([][]*regexp.Regexp, len(r.Categories)),
		stop:             toSet(r.StopWords),
		verbs:            toSet(r.ActionVerbs),
	}
	for i, cr := range r.Categories {
		if !cr.Category.Valid() {
			return nil, fmt.Errorf("category rule %d: unknown category %q", i, cr.Category)
		}
		for _, p := range cr.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("category %s: compile pattern %q: %w", cr.Category, p, err)
			}
			c.categoryPatterns[i] = append(c.categoryPatterns[i], re)
		}
	}
	for i, o := range r.Ordering {
		if o.Before != AnyCategory && !o.Before.Valid() {
			return nil, fmt.Errorf("ordering rule %d: unknown category %q", i, o.Before)
		}
		if !o.After.Valid() {
			return nil, fmt.Errorf("ordering rule %d: unknown category %q", i, o.After)
		}
	}
	if r.Cues.FuzzyThreshold <= 0 || r.Cues.FuzzyThreshold > 1 {
		return nil, fmt.Errorf("dependency_cues.fuzzy_threshold must be in (0,1], got %v", r.Cues.FuzzyThreshold)
	}
	if r.Confirmation.NegationWindow <= 0 {
		return nil, fmt.Errorf("confirmation.negation_window must be positive, got %d", r.Confirmation.NegationWindow)
	}
	if strings.TrimSpace(r.Confirmation.ProbeText) == "" {
		return nil, fmt.Errorf("confirmation.probe_text must not be empty")
	}
	return c, nil
}

// MustCompile is like Compile but panics on error. It is intended for the
// built-in defaults and tests.
func MustCompile(r *RuleSet) *Compiled {
	c, err := r.Compile()
	if err != nil {
		panic(err)
	}
	return c
}

// MatchPattern returns the first category whose pattern matches text, in table order.
func (c *Compiled) MatchPattern(text string) (models.Category, string, bool) {
	for i, res := range c.categoryPatterns {
		for _, re := range res {
			if re.MatchString(text) {
				return c.Categories[i].Category, re.String(), true
			}
		}
	}
	return "", "", false
}

// MatchKeyword returns the first category with a keyword present in text, in table order.
func (c *Compiled) MatchKeyword(text string) (models.Category, string, bool) {
	for _, cr := range c.Categories {
		if kw := FirstPhrase(text, cr.Keywords); kw != "" {
			return cr.Category, kw, true
		}
	}
	return "", "", false
}

// Significant returns the distinct tokens of text that are neither stop
// words nor action verbs, in first-occurrence order. Simple plurals are
// folded onto their singular form.
func (c *Compiled) Significant(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(text) {
		if len(tok) < 3 || c.stop[tok] || c.isVerb(tok) || isNumber(tok) {
			continue
		}
		tok = singular(tok)
		if c.verbs[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// isVerb reports whether tok is an action verb or a regular inflection of one
// ("created", "adding", "fixes").
func (c *Compiled) isVerb(tok string) bool {
	if c.verbs[tok] {
		return true
	}
	for _, suffix := range []string{"ing", "ed", "es", "d", "s"} {
		stem, ok := strings.CutSuffix(tok, suffix)
		if !ok || len(stem) < 2 {
			continue
		}
		if c.verbs[stem] || c.verbs[stem+"e"] {
			return true
		}
		// Doubled final consonant: "setting", "mapped".
		if n := len(stem); n > 2 && stem[n-1] == stem[n-2] && c.verbs[stem[:n-1]] {
			return true
		}
	}
	return false
}

// IsStopWord reports whether tok is a configured stop word.
func (c *Compiled) IsStopWord(tok string) bool {
	return c.stop[strings.ToLower(tok)]
}

func singular(tok string) string {
	switch {
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 4 && strings.HasSuffix(tok, "ses"):
		return tok[:len(tok)-2]
	case len(tok) > 3 && strings.HasSuffix(tok, "s") &&
		!strings.HasSuffix(tok, "ss") && !strings.HasSuffix(tok, "us") && !strings.HasSuffix(tok, "is"):
		return tok[:len(tok)-1]
	default:
		return tok
	}
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return m
}
