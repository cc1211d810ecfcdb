// Package verification performs a post-completion sanity check on an
// agent loop's answer: cheap rule-based format checks, plus an optional
// one-shot LLM semantic check. It is observational — the loop has
// already returned its answer by the time a verifier runs, so a
// negative result is reported, never retried.
package verification

import (
	"context"
	"strings"
)

// Outcome is the overall verdict: success, partial, or failure.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Severity classifies a rule's failure impact.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one rule violation found during verification.
type Issue struct {
	Rule     string
	Severity Severity
	Message  string
}

// Result is the outcome of verifying one completed task.
type Result struct {
	Outcome     Outcome
	Confidence  float64
	Reasoning   string
	Issues      []string
	Suggestions []string
}

// Task describes the completed run being verified.
type Task struct {
	Description     string
	Answer          string
	ToolCalls       int
	ToolErrors      int
	WriteToolsUsed  bool
	StateDeltaFound bool
}

// Config configures the format-rule thresholds.
type Config struct {
	// ToolErrorThreshold is the max tolerated tool-error ratio before a
	// warning fires. Default 0.5.
	ToolErrorThreshold float64
	// SemanticVerifier, if set, issues one additional LLM call per
	// verification to judge whether the answer actually satisfies the
	// task description. Optional; format rules run regardless.
	SemanticVerifier SemanticVerifier
}

// SemanticVerifier performs an LLM-backed semantic check of one answer
// against its task description.
type SemanticVerifier interface {
	Verify(ctx context.Context, task Task) (outcome Outcome, confidence float64, reasoning string, err error)
}

// Verifier runs format rules and, if configured, a semantic check.
type Verifier struct {
	cfg Config
}

// New creates a Verifier. A zero Config uses the default threshold.
func New(cfg Config) *Verifier {
	if cfg.ToolErrorThreshold <= 0 {
		cfg.ToolErrorThreshold = 0.5
	}
	return &Verifier{cfg: cfg}
}

// Verify evaluates task against the built-in format rules, then the
// semantic verifier if one is configured.
func (v *Verifier) Verify(ctx context.Context, task Task) Result {
	var issues []Issue

	if strings.TrimSpace(task.Answer) == "" {
		issues = append(issues, Issue{Rule: "non_empty_answer", Severity: SeverityError, Message: "answer is empty"})
	}
	if strings.HasPrefix(strings.TrimSpace(task.Answer), "Error:") {
		issues = append(issues, Issue{Rule: "no_error_prefix", Severity: SeverityError, Message: "answer begins with \"Error:\""})
	}
	if task.ToolCalls > 0 {
		ratio := float64(task.ToolErrors) / float64(task.ToolCalls)
		if ratio >= v.cfg.ToolErrorThreshold {
			issues = append(issues, Issue{
				Rule:     "tool_error_ratio",
				Severity: SeverityWarning,
				Message:  "tool error ratio exceeds threshold",
			})
		}
	}
	if !referencesLongWord(task.Description, task.Answer) {
		issues = append(issues, Issue{Rule: "references_task", Severity: SeverityWarning, Message: "answer does not reference the task description"})
	}
	if task.WriteToolsUsed && !task.StateDeltaFound {
		issues = append(issues, Issue{Rule: "state_delta", Severity: SeverityWarning, Message: "write-class tool ran but produced no observable state change"})
	}

	outcome, confidence := aggregate(issues)
	reasoning := reasoningFor(outcome, issues)

	if v.cfg.SemanticVerifier != nil {
		semOutcome, semConfidence, semReasoning, err := v.cfg.SemanticVerifier.Verify(ctx, task)
		if err == nil {
			outcome = worseOf(outcome, semOutcome)
			confidence = (confidence + semConfidence) / 2
			if semReasoning != "" {
				reasoning = reasoning + "; " + semReasoning
			}
		}
	}

	return Result{
		Outcome:     outcome,
		Confidence:  confidence,
		Reasoning:   reasoning,
		Issues:      issueMessages(issues),
		Suggestions: suggestionsFor(issues),
	}
}

func aggregate(issues []Issue) (Outcome, float64) {
	hasError, hasWarning := false, false
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			hasError = true
		case SeverityWarning:
			hasWarning = true
		}
	}
	switch {
	case hasError:
		return OutcomeFailure, 0.2
	case hasWarning:
		return OutcomePartial, 0.6
	default:
		return OutcomeSuccess, 0.9
	}
}

func worseOf(a, b Outcome) Outcome {
	rank := map[Outcome]int{OutcomeSuccess: 0, OutcomePartial: 1, OutcomeFailure: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func reasoningFor(outcome Outcome, issues []Issue) string {
	if len(issues) == 0 {
		return "all format checks passed"
	}
	return string(outcome) + ": " + issues[0].Message
}

func issueMessages(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, string(i.Severity)+": "+i.Message)
	}
	return out
}

func suggestionsFor(issues []Issue) []string {
	var out []string
	for _, i := range issues {
		switch i.Rule {
		case "tool_error_ratio":
			out = append(out, "retry the failing tool calls or narrow the task scope")
		case "references_task":
			out = append(out, "restate the original request in the answer")
		case "state_delta":
			out = append(out, "confirm the write actually took effect")
		}
	}
	return out
}

// referencesLongWord reports whether answer contains at least one "long"
// (>=5 character) word taken from description, case-insensitively.
func referencesLongWord(description, answer string) bool {
	if strings.TrimSpace(description) == "" {
		return true
	}
	lowerAnswer := strings.ToLower(answer)
	for _, word := range strings.Fields(strings.ToLower(description)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) >= 5 && strings.Contains(lowerAnswer, word) {
			return true
		}
	}
	return false
}
