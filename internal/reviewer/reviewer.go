// Package reviewer implements the Quality-Gate Reviewer (spec.md §4.5/C6):
// a specialised Model Gateway call that scores a completed step's output and
// recommends continue/retry/add_step/skip_next, plus the decision-coercion
// policy the scheduler applies on top of the model's raw recommendation.
//
// Grounded on the teacher's internal/agents/llm_planner.go for the
// model-call-then-recover-from-a-messy-response shape: normalizeJSONText and
// the bracket-balanced extractor reappear here adapted to a JSON object
// instead of an array.
package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
)

// judgeContextBudget caps how much of a step's output is embedded in the
// judge prompt, per spec.md §4.5 ("truncated to the role's judge-context
// budget").
const judgeContextBudget = 4000

// Reviewer drives the judge model call and the decision-coercion policy.
type Reviewer struct {
	Client            gateway.Client
	QualityThreshold  float64
	MaxRetryOnFailure int
	Timeout           time.Duration
}

// New returns a Reviewer, applying spec.md §4.5's documented defaults for any
// zero-valued field.
func New(client gateway.Client, qualityThreshold float64, maxRetryOnFailure int, timeout time.Duration) *Reviewer {
	if qualityThreshold <= 0 {
		qualityThreshold = 0.7
	}
	if maxRetryOnFailure <= 0 {
		maxRetryOnFailure = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reviewer{Client: client, QualityThreshold: qualityThreshold, MaxRetryOnFailure: maxRetryOnFailure, Timeout: timeout}
}

// Review calls the judge model for one completed step. On timeout it returns
// a synthetic continue report rather than an error, per spec.md §4.5's "the
// scheduler treats the step as continue to avoid blocking progress" rule —
// callers don't need their own timeout-handling branch.
func (r *Reviewer) Review(ctx context.Context, step *models.Step, output string, planSummary string) *models.QualityReport {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	prompt := buildJudgePrompt(step, output, planSummary)
	res, err := r.Client.Complete(cctx, gateway.CompleteRequest{
		Messages: []gateway.Message{{Role: gateway.RoleUser, Content: prompt}},
	})
	if err != nil {
		kind, _ := koerrors.KindOf(err)
		if kind == koerrors.KindTimeout || kind == koerrors.KindCancelled || cctx.Err() != nil {
			return continueReport("reviewer timed out, defaulting to continue")
		}
		return continueReport("reviewer call failed (" + err.Error() + "), defaulting to continue")
	}

	report, ok := parseReport(res.Content)
	if !ok {
		return continueReport("reviewer returned unparseable output, defaulting to continue")
	}
	return report
}

func buildJudgePrompt(step *models.Step, output string, planSummary string) string {
	truncated := output
	if len(truncated) > judgeContextBudget {
		truncated = truncated[:judgeContextBudget] + "...(truncated)"
	}
	return fmt.Sprintf(`You are the quality gate for a multi-agent execution pipeline.
Score the following completed step's output and decide what should happen next.

Respond with ONLY a JSON object, no prose, no code fences, matching exactly:
{"score": 0.0-1.0, "decision": "continue"|"retry"|"add_step"|"skip_next", "rationale": "...", "new_steps": [{"name":"...","description":"...","role":"...","expected_output":"...","deps":["..."]}], "target_step_id": "..."}

Omit new_steps unless decision is "add_step". Omit target_step_id unless decision is "skip_next".

Step name: %s
Step description: %s
Expected output: %s

Actual output:
%s

Task plan summary: %s`, step.Name, step.Description, step.Expected, truncated, planSummary)
}

func continueReport(rationale string) *models.QualityReport {
	return &models.QualityReport{Score: 1, Decision: models.DecisionContinue, Rationale: rationale}
}

func parseReport(raw string) (*models.QualityReport, bool) {
	text := normalizeJSONText(raw)
	var report models.QualityReport
	if err := json.Unmarshal([]byte(text), &report); err == nil {
		return &report, true
	}
	if obj := extractJSONObject(text); obj != "" {
		if err := json.Unmarshal([]byte(obj), &report); err == nil {
			return &report, true
		}
	}
	return nil, false
}

// Coerce applies spec.md §4.5's decision policy on top of the model's raw
// recommendation: it never trusts the model's decision field in isolation,
// folding in the score threshold, retry budget, and role criticality.
func (r *Reviewer) Coerce(report *models.QualityReport, retryCount int, critical bool) models.ReviewDecision {
	if report.Score >= r.QualityThreshold && report.Decision == models.DecisionContinue {
		return models.DecisionContinue
	}
	if report.Decision == models.DecisionAddStep {
		return models.DecisionAddStep
	}
	if report.Decision == models.DecisionSkipNext {
		return models.DecisionSkipNext
	}
	if report.Score < r.QualityThreshold {
		if retryCount < r.MaxRetryOnFailure {
			return models.DecisionRetry
		}
		if critical {
			return models.DecisionSkipNext
		}
		return models.DecisionContinue
	}
	return models.DecisionContinue
}

// ApplyAddStep validates and inserts every proposed step against flow f,
// per spec.md §4.5 ("honored only if... every dependency id refers to an
// existing completed step, and inserting them must preserve acyclicity").
// Steps that fail validation are skipped; their names are returned so the
// caller can log a warning event.
func ApplyAddStep(f *flow.Flow, specs []models.NewStepSpec) (applied []string, rejected []string) {
	for i, spec := range specs {
		if !depsCompleted(f, spec.Deps) {
			rejected = append(rejected, spec.Name)
			continue
		}
		step := &models.Step{
			ID:          fmt.Sprintf("review-%s-%d", sanitizeID(spec.Name), i),
			Name:        spec.Name,
			Description: spec.Description,
			Role:        spec.Role,
			Expected:    spec.Expected,
			Deps:        spec.Deps,
			Input:       spec.Input,
			Status:      models.StepPending,
		}
		if err := f.AddStep(step); err != nil {
			rejected = append(rejected, spec.Name)
			continue
		}
		applied = append(applied, step.ID)
	}
	return applied, rejected
}

func depsCompleted(f *flow.Flow, deps []string) bool {
	for _, dep := range deps {
		s, ok := f.Get(dep)
		if !ok || s.Status != models.StepCompleted {
			return false
		}
	}
	return true
}

func sanitizeID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	s := b.String()
	if s == "" {
		return "step"
	}
	return s
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func normalizeJSONText(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if idx := strings.IndexByte(t, '\n'); idx != -1 {
			t = t[idx+1:]
		}
		if j := strings.LastIndex(t, "```"); j != -1 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	if !strings.HasPrefix(strings.TrimSpace(t), "{") {
		if obj := extractJSONObject(t); obj != "" {
			return obj
		}
	}
	return t
}
