// Package validation performs the pre-execution feasibility checks that move
// each task from Pending through Refining to Validated or Rejected.
package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Check names a feasibility rule.
type Check string

const (
	CheckEmpty      Check = "empty"
	CheckForbidden  Check = "forbidden"
	CheckUnknownRef Check = "unknown_reference"
)

// Rejection explains why a task was rejected.
type Rejection struct {
	TaskID     string
	Check      Check
	Message    string
	Suggestion string
}

// Result partitions tasks by validation outcome. Both slices keep input order.
type Result struct {
	Validated  []*models.Task
	Rejected   []*models.Task
	Rejections []Rejection
	Warnings   []models.Warning
}

// TransitionFunc observes a task state change made by the validator.
type TransitionFunc func(task *models.Task, from, to models.TaskState, detail string)

// Validator checks tasks against the project context and framework rules.
type Validator struct {
	ctx          *models.ProjectContext
	hints        project.FrameworkRules
	onTransition TransitionFunc
}

// NewValidator creates a validator. ctx may be nil, in which case path
// references are never rejected.
func NewValidator(ctx *models.ProjectContext, hints project.FrameworkRules) *Validator {
	return &Validator{ctx: ctx, hints: hints}
}

// OnTransition registers fn to observe every state change.
func (v *Validator) OnTransition(fn TransitionFunc) {
	v.onTransition = fn
}

// fileRef matches a file name with a known source extension, optionally
// under a directory path.
var fileRef = regexp.MustCompile(`(?:[\w.-]+/)*[\w-]+\.(?:go|ts|tsx|js|jsx|mjs|py|rb|rs|java|kt|sql|css|scss|html|md|yaml|yml|json|toml|vue|svelte|sh)\b`)

// dirRef matches explicit directory references such as "./web" or "migrations/".
var dirRef = regexp.MustCompile(`^(?:\./[\w./-]+|[\w.-]+(?:/[\w.-]+)*/)$`)

// libraryNames look like files but name libraries.
var libraryNames = map[string]bool{
	"node.js": true, "vue.js": true, "next.js": true, "nuxt.js": true, "react.js": true,
	"express.js": true, "nest.js": true, "three.js": true, "d3.js": true, "chart.js": true,
}

// Validate runs every task through the feasibility checks. Tasks already
// past Pending are passed through unchanged.
func (v *Validator) Validate(tasks []*models.Task) Result {
	var result Result
	for _, task := range tasks {
		if task.State != models.TaskPending {
			if task.State == models.TaskRejected {
				result.Rejected = append(result.Rejected, task)
			} else {
				result.Validated = append(result.Validated, task)
			}
			continue
		}

		v.transition(task, models.TaskRefining, "")
		rej, ok := v.check(task)
		if ok {
			v.transition(task, models.TaskValidated, "")
			result.Validated = append(result.Validated, task)
			continue
		}

		task.Reason = models.ReasonValidationRejected
		task.ReasonDetail = rej.Message
		v.transition(task, models.TaskRejected, rej.Message)
		result.Rejected = append(result.Rejected, task)
		result.Rejections = append(result.Rejections, rej)
		result.Warnings = append(result.Warnings, models.Warning{
			Kind:    models.WarningValidationRejected,
			TaskIDs: []string{task.ID},
			Message: rej.Message,
		})
	}
	return result
}

func (v *Validator) transition(task *models.Task, to models.TaskState, detail string) {
	from := task.State
	task.State = to
	if v.onTransition != nil {
		v.onTransition(task, from, to, detail)
	}
}

// check returns the first failing rule, or ok.
func (v *Validator) check(task *models.Task) (Rejection, bool) {
	text := strings.TrimSpace(task.RefinedText)
	if text == "" || len(rules.Tokenize(text)) == 0 {
		return Rejection{
			TaskID:  task.ID,
			Check:   CheckEmpty,
			Message: fmt.Sprintf("Task %s: nothing left to do after refinement", task.ID),
		}, false
	}

	for _, term := range v.hints.Forbidden {
		if rules.ContainsPhrase(text, term) {
			return Rejection{
				TaskID:  task.ID,
				Check:   CheckForbidden,
				Message: fmt.Sprintf("Task %s: uses %q, which the %s rules forbid", task.ID, term, v.frameworkName()),
			}, false
		}
	}

	if v.ctx != nil && v.ctx.Known {
		for _, ref := range References(task.RawText) {
			if v.ctx.HasElement(ref) {
				continue
			}
			rej := Rejection{
				TaskID:  task.ID,
				Check:   CheckUnknownRef,
				Message: fmt.Sprintf("Task %s: references %q, which does not exist in the project", task.ID, ref),
			}
			if s := FindSimilar(ref, v.ctx.Elements); s != "" {
				rej.Suggestion = s
				rej.Message += fmt.Sprintf(". Did you mean %q?", s)
			}
			return rej, false
		}
	}
	return Rejection{}, true
}

func (v *Validator) frameworkName() string {
	if v.hints.Framework != "" {
		return v.hints.Framework
	}
	return "framework"
}

// References returns the file-like references in text, skipping URLs.
func References(text string) []string {
	var refs []string
	for _, field := range strings.Fields(text) {
		if strings.Contains(field, "://") {
			continue
		}
		field = strings.Trim(field, "\"'`()[]{},;:")
		if dirRef.MatchString(field) {
			refs = append(refs, strings.TrimPrefix(field, "./"))
			continue
		}
		for _, m := range fileRef.FindAllString(field, -1) {
			if !libraryNames[strings.ToLower(m)] {
				refs = append(refs, m)
			}
		}
	}
	return refs
}

// FindSimilar returns the element whose base name is most similar to ref's,
// or "" when nothing scores above half.
func FindSimilar(ref string, elements []string) string {
	name := path.Base(ref)
	best, bestScore := "", 0
	for _, el := range elements {
		score := similarityScore(name, path.Base(el))
		if score > bestScore && score > 50 {
			best, bestScore = el, score
		}
	}
	return best
}

// similarityScore rates two names from 0 to 100: exact matches score 100,
// containment 80, otherwise the better of the shared-prefix ratio and the
// edit-distance ratio.
func similarityScore(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}
	if strings.Contains(s2, s1) || strings.Contains(s1, s2) {
		return 80
	}

	r1, r2 := []rune(s1), []rune(s2)
	common := 0
	minLen := min(len(r1), len(r2))
	for i := 0; i < minLen && r1[i] == r2[i]; i++ {
		common++
	}
	prefix := common * 100 / minLen

	maxLen := max(len(r1), len(r2))
	edit := 100 - levenshtein.ComputeDistance(s1, s2)*100/maxLen
	return max(prefix, edit)
}
