// Package extract turns free-text task lists into atomic task records.
package extract

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	markerLine   = regexp.MustCompile(`(?i)^(?:todo|task|fixme|action)\s*[:\-]\s*(.+)$`)
	numberedLine = regexp.MustCompile(`^(?:\(?\d{1,3}[.)]|\(\d{1,3}\)|[a-z]\))\s+(.+)$`)
	bulletLine   = regexp.MustCompile(`^(?:[-*+•])\s+(.+)$`)
	checkbox     = regexp.MustCompile(`^\[[ xX]\]\s*`)
	continuation = regexp.MustCompile(`(?i)^(?:then|next|after that|finally)\b[,:]?\s*(.+)$`)
	sequenceSep  = regexp.MustCompile(`(?i)\s*[,;]\s*then\s+|\s+and\s+then\s+`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// lineKind records how a line was recognized.
type lineKind int

const (
	lineNone lineKind = iota
	lineMarker
	lineNumbered
	lineBullet
	lineContinuation
)

// Extract parses text into tasks. Each recognized line yields one task, or
// several when the line chains steps with "then"; later steps record the
// previous step in SequenceAfter. Unrecognized lines are ignored. An empty
// result is valid.
func Extract(text string, hints project.FrameworkRules) []*models.Task {
	var tasks []*models.Task
	aliases := compileAliases(hints)

	for _, line := range strings.Split(text, "\n") {
		body, kind := matchLine(strings.TrimSpace(line), hints.Markers, len(tasks) > 0)
		if kind == lineNone {
			continue
		}

		prev := ""
		if kind == lineContinuation {
			prev = tasks[len(tasks)-1].ID
		}
		for _, fragment := range sequenceSep.Split(body, -1) {
			raw := stripCheckboxes(spaceRun.ReplaceAllString(strings.TrimSpace(fragment), " "))
			refined := normalize(raw)
			if refined == "" {
				continue
			}
			task := &models.Task{
				ID:            models.TaskID(len(tasks) + 1),
				Index:         len(tasks),
				RawText:       raw,
				RefinedText:   aliases.apply(refined),
				Framework:     hints.Framework,
				SequenceAfter: prev,
				State:         models.TaskPending,
			}
			tasks = append(tasks, task)
			prev = task.ID
		}
	}
	return tasks
}

func matchLine(line string, extraMarkers []string, haveTasks bool) (string, lineKind) {
	if line == "" {
		return "", lineNone
	}
	for _, m := range extraMarkers {
		m = strings.TrimSpace(m)
		if m != "" && len(line) > len(m) && strings.EqualFold(line[:len(m)], m) {
			return strings.TrimSpace(line[len(m):]), lineMarker
		}
	}
	if m := markerLine.FindStringSubmatch(line); m != nil {
		return m[1], lineMarker
	}
	if m := numberedLine.FindStringSubmatch(line); m != nil {
		return m[1], lineNumbered
	}
	if m := bulletLine.FindStringSubmatch(line); m != nil {
		return m[1], lineBullet
	}
	if haveTasks {
		if m := continuation.FindStringSubmatch(line); m != nil {
			return m[1], lineContinuation
		}
	}
	return "", lineNone
}

// stripCheckboxes removes leading "[ ]" / "[x]" boxes from a fragment.
func stripCheckboxes(s string) string {
	for {
		next := checkbox.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}

// normalize collapses whitespace and trims list punctuation.
func normalize(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.Trim(s, " .,;:!-–")
}

// Render reconstructs task-list text from tasks, one bullet per task, such
// that extracting the result yields the same number of tasks.
func Render(tasks []*models.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		b.WriteString("- ")
		b.WriteString(t.RawText)
		b.WriteByte('\n')
	}
	return b.String()
}

type aliasRule struct {
	re   *regexp.Regexp
	with string
}

type aliasSet []aliasRule

func compileAliases(hints project.FrameworkRules) aliasSet {
	var set aliasSet
	for _, k := range hints.AliasKeys() {
		if strings.TrimSpace(k) == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`)
		if err != nil {
			continue
		}
		set = append(set, aliasRule{re: re, with: hints.Aliases[k]})
	}
	return set
}

// apply rewrites text through the aliases. An alias that would erase the
// whole text is ignored.
func (s aliasSet) apply(text string) string {
	out := text
	for _, a := range s {
		out = a.re.ReplaceAllLiteralString(out, a.with)
	}
	if out = normalize(out); out == "" {
		return text
	}
	return out
}
