package rules

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it into word tokens. Apostrophes inside a
// word are kept so that "isn't" stays one token.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, strings.Trim(b.String(), "'"))
			b.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '\'' || r == '’') && b.Len() > 0:
			b.WriteRune('\'')
		default:
			flush()
		}
	}
	flush()
	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ContainsPhrase reports whether phrase occurs in text as a whole word or
// phrase, case-insensitively. A trailing plural "s" or "es" on the match is
// accepted.
func ContainsPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	text = strings.ToLower(text)
	for start := 0; start <= len(text)-len(phrase); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if boundaryBefore(text, i, phrase) && boundaryAfter(text, end, phrase) {
			return true
		}
		start = i + 1
	}
	return false
}

// CountPhrases returns how many of phrases occur in text.
func CountPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			n++
		}
	}
	return n
}

// FirstPhrase returns the first of phrases that occurs in text, or "".
func FirstPhrase(text string, phrases []string) string {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return p
		}
	}
	return ""
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80
}

func boundaryBefore(text string, i int, phrase string) bool {
	if i == 0 || !isWordByte(phrase[0]) {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, end int, phrase string) bool {
	if end >= len(text) || !isWordByte(phrase[len(phrase)-1]) {
		return true
	}
	rest := text[end:]
	for _, suffix := range []string{"", "s", "es"} {
		if !strings.HasPrefix(rest, suffix) {
			continue
		}
		if len(rest) == len(suffix) || !isWordByte(rest[len(suffix)]) {
			return true
		}
	}
	return false
}
