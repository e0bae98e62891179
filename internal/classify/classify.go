// Package classify turns free-text signals from the execution surface into
// orchestration decisions.
//
// Two heuristics are combined by Interpreter: the FallbackDetector, which
// recognizes requests for human input and always wins, and the
// ConfirmationClassifier, which decides between completing a task and
// keeping its confirmation loop alive. Ambiguity always resolves to
// VerdictContinue; only the attempt and deadline bounds end a loop without
// an explicit completion.
package classify

import (
	"strings"

	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Verdict is the decision for one signal.
type Verdict string

const (
	VerdictContinue   Verdict = "continue"
	VerdictCompleted  Verdict = "completed"
	VerdictFailed     Verdict = "failed"
	VerdictNeedsInput Verdict = "needs-input"
)

// Observation is everything a classifier may consider about one signal.
type Observation struct {
	// Text is the raw signal text.
	Text string
	// AfterProbe is true when the engine's last message was the completion probe.
	AfterProbe bool
	// Attempt is the number of messages sent so far in this confirmation session.
	Attempt     int
	MaxAttempts int
	// Expired is true when the confirmation deadline has passed.
	Expired bool
}

// Decision is a classifier's answer.
type Decision struct {
	Verdict Verdict
	// Reason is set for VerdictFailed and VerdictNeedsInput.
	Reason models.FailureReason
	// Matched is the phrase that decided the verdict, if any.
	Matched string
}

// Classifier maps an observation to a decision.
type Classifier interface {
	Classify(obs Observation) Decision
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(Observation) Decision

func (f ClassifierFunc) Classify(obs Observation) Decision { return f(obs) }

// ConfirmationClassifier implements the completion policy:
//
//  1. a negation within the configured window before a completion word
//     ("not finished", "isn't done yet") means continue;
//  2. otherwise an affirmative phrase in reply to a probe means completed;
//  3. otherwise continue.
//
// A continue verdict becomes failed when the deadline has passed or the
// attempt count is already beyond the bound.
type ConfirmationClassifier struct {
	rules rules.ConfirmationRules
}

// NewConfirmationClassifier creates a classifier from compiled rules.
func NewConfirmationClassifier(r *rules.Compiled) *ConfirmationClassifier {
	return &ConfirmationClassifier{rules: r.Confirmation}
}

func (c *ConfirmationClassifier) Classify(obs Observation) Decision {
	text := strings.ToLower(obs.Text)

	if neg := c.negatedCompletion(text); neg != "" {
		return c.bounded(obs, Decision{Verdict: VerdictContinue, Matched: neg})
	}
	if obs.AfterProbe {
		if aff := rules.FirstPhrase(text, c.rules.Affirmative); aff != "" {
			return Decision{Verdict: VerdictCompleted, Matched: aff}
		}
	}
	return c.bounded(obs, Decision{Verdict: VerdictContinue})
}

// bounded turns a continue into a failure once the loop is out of bounds.
func (c *ConfirmationClassifier) bounded(obs Observation, d Decision) Decision {
	switch {
	case obs.Expired:
		return Decision{Verdict: VerdictFailed, Reason: models.ReasonConfirmationTimeout, Matched: d.Matched}
	case obs.MaxAttempts > 0 && obs.Attempt > obs.MaxAttempts:
		return Decision{Verdict: VerdictFailed, Reason: models.ReasonMaxAttemptsExceeded, Matched: d.Matched}
	}
	return d
}

// negatedCompletion returns "<negation> <word>" when a completion word is
// preceded, within the window, by a negation.
func (c *ConfirmationClassifier) negatedCompletion(text string) string {
	tokens := rules.Tokenize(text)
	for i, tok := range tokens {
		if !c.isCompletionWord(tok) {
			continue
		}
		lo := max(0, i-c.rules.NegationWindow)
		window := strings.Join(tokens[lo:i], " ")
		for _, t := range tokens[lo:i] {
			if strings.HasSuffix(t, "n't") {
				return t + " " + tok
			}
		}
		if neg := rules.FirstPhrase(window, c.rules.Negations); neg != "" {
			return neg + " " + tok
		}
	}
	return ""
}

func (c *ConfirmationClassifier) isCompletionWord(tok string) bool {
	for _, w := range c.rules.CompletionWords {
		if strings.EqualFold(tok, w) {
			return true
		}
	}
	return false
}

// FallbackDetector recognizes signals that ask for a human decision.
type FallbackDetector struct {
	markers []string
}

// NewFallbackDetector creates a detector from compiled rules.
func NewFallbackDetector(r *rules.Compiled) *FallbackDetector {
	return &FallbackDetector{markers: r.Fallback.Markers}
}

// Detect returns the first input-request marker found in text.
func (d *FallbackDetector) Detect(text string) (string, bool) {
	m := rules.FirstPhrase(text, d.markers)
	return m, m != ""
}

// Interpreter runs the fallback detector ahead of a confirmation classifier.
type Interpreter struct {
	fallback *FallbackDetector
	confirm  Classifier
}

// New creates the default Interpreter for a rule set.
func New(r *rules.Compiled) *Interpreter {
	return NewInterpreter(NewFallbackDetector(r), NewConfirmationClassifier(r))
}

// NewInterpreter combines a fallback detector with any classifier.
func NewInterpreter(fallback *FallbackDetector, confirm Classifier) *Interpreter {
	return &Interpreter{fallback: fallback, confirm: confirm}
}

// Classify reports needs-input whenever the fallback detector fires,
// regardless of what the confirmation classifier would say.
func (i *Interpreter) Classify(obs Observation) Decision {
	if marker, ok := i.fallback.Detect(obs.Text); ok {
		return Decision{Verdict: VerdictNeedsInput, Reason: models.ReasonFallbackNeedsInput, Matched: marker}
	}
	return i.confirm.Classify(obs)
}
