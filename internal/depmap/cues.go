package depmap

import (
	"strings"
	"unicode"
)

// cue is one dependency phrase found in a task and the clause it governs.
type cue struct {
	phrase string
	target string
}

// clauseEnd lists the separators that end a cue clause.
var clauseEnd = []string{",", ";", ".", "!", "?", " then ", " and then "}

// cueTargets finds every occurrence of the cue phrases in text (as whole
// words, case-insensitively) and returns the clause following each.
func cueTargets(text string, phrases []string) []cue {
	lower := strings.ToLower(text)
	var out []cue
	for _, phrase := range phrases {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" {
			continue
		}
		for start := 0; start < len(lower); {
			i := strings.Index(lower[start:], p)
			if i < 0 {
				break
			}
			i += start
			end := i + len(p)
			start = end
			if !wordBoundary(lower, i-1) || !wordBoundary(lower, end) {
				continue
			}
			clause := lower[end:]
			for _, sep := range clauseEnd {
				if j := strings.Index(clause, sep); j >= 0 {
					clause = clause[:j]
				}
			}
			if clause = strings.TrimSpace(clause); clause != "" {
				out = append(out, cue{phrase: p, target: clause})
			}
		}
	}
	return out
}

func wordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r >= 0x80)
}
