// Package supervisor implements the Supervisor planner (spec.md §4.1/C_Sup):
// a bounded ReAct loop over the Model Gateway that either answers a task
// directly or produces an ordered, role-assigned, acyclic-by-construction
// TaskPlan for the Wave Scheduler to execute.
//
// Grounded on the teacher's internal/agents/llm_planner.go for the
// model-call-then-recover-a-messy-JSON-response shape (normalizeJSONText,
// the bracket-balanced extractor) and on internal/subagent's tool-call loop
// for driving the Model Gateway's native tool-calling turn-by-turn, since
// the Supervisor's ACTION/OBSERVATION steps are exactly that loop scoped to
// planning tools instead of step-execution tools.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/roles"
	"github.com/example/agent-orchestrator/internal/tools"
)

// StreamKind tags a delta as reasoning text or answer text, letting
// observers render them separately (spec.md §4.1).
type StreamKind string

const (
	KindThinking StreamKind = "thinking"
	KindAnswer   StreamKind = "answer"
)

// StreamSink receives Supervisor planning output as it streams in.
type StreamSink func(kind StreamKind, text string)

const thinkOpen = "[THINKING]"
const thinkClose = "[/THINKING]"

// Supervisor drives the bounded ReAct planning loop.
type Supervisor struct {
	Client        gateway.Client
	Tools         *tools.Registry
	MaxIterations int
}

// New returns a Supervisor, defaulting MaxIterations to spec.md §4.1's
// documented default of 5 when not positive.
func New(client gateway.Client, reg *tools.Registry, maxIterations int) *Supervisor {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &Supervisor{Client: client, Tools: reg, MaxIterations: maxIterations}
}

// planStepSpec is the wire shape the model is asked to emit for each step of
// a non-trivial plan.
type planStepSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Role        string   `json:"role"`
	Expected    string   `json:"expected_output"`
	Deps        []string `json:"deps,omitempty"`
}

type planAnswer struct {
	SimpleDirect bool           `json:"simple_direct"`
	DirectAnswer string         `json:"direct_answer,omitempty"`
	RefinedText  string         `json:"refined_text,omitempty"`
	Objectives   []string       `json:"objectives,omitempty"`
	Steps        []planStepSpec `json:"steps,omitempty"`
}

// Plan runs the bounded ReAct loop for task, emitting reasoning/answer
// deltas to sink as they stream in, and returns the resulting TaskPlan. It
// never returns an error: an unparseable answer is sent back to the model
// with a request for the JSON plan, and if no parsable plan arrives within
// MaxIterations it falls back to a single-step researcher plan per spec.md
// §4.1's documented failure mode.
func (s *Supervisor) Plan(ctx context.Context, task *models.Task, sink StreamSink) *models.TaskPlan {
	messages := []gateway.Message{
		{Role: gateway.RoleSystem, Content: systemPrompt()},
		{Role: gateway.RoleUser, Content: task.Content},
	}

	for iter := 0; iter < s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return fallbackPlan(task)
		}

		splitter := newThinkSplitter(sink)
		res, err := s.Client.Complete(ctx, gateway.CompleteRequest{
			Messages:   messages,
			Tools:      planningToolSpecs(s.Tools),
			StreamSink: splitter.feed,
		})
		splitter.flush()
		if err != nil {
			kind, _ := koerrors.KindOf(err)
			if koerrors.Retriable(kind) && iter < s.MaxIterations-1 {
				continue
			}
			return fallbackPlan(task)
		}

		if len(res.ToolCalls) == 0 {
			if plan, ok := parsePlan(res.Content, task); ok {
				return plan
			}
			messages = append(messages,
				gateway.Message{Role: gateway.RoleAssistant, Content: res.Content},
				gateway.Message{Role: gateway.RoleUser, Content: "That reply was not a valid JSON object in the required format. Respond with ONLY the JSON object described in the instructions."},
			)
			continue
		}

		messages = append(messages, gateway.Message{
			Role:      gateway.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})
		for _, tc := range res.ToolCalls {
			out, _, terr := s.Tools.Execute(ctx, tc.Name, tc.Arguments)
			var content string
			if terr != nil {
				content = terr.Error()
			} else if text, ok := out.(string); ok {
				content = text
			} else if b, merr := json.Marshal(out); merr == nil {
				content = string(b)
			}
			messages = append(messages, gateway.Message{Role: gateway.RoleTool, ToolCallID: tc.ID, Content: content})
		}
	}

	return fallbackPlan(task)
}

func planningToolSpecs(reg *tools.Registry) []gateway.ToolSpec {
	if reg == nil {
		return nil
	}
	var specs []gateway.ToolSpec
	for _, name := range reg.List() {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, gateway.ToolSpec{Name: t.Name(), Description: t.Description()})
	}
	return specs
}

func systemPrompt() string {
	return fmt.Sprintf(`You are the planning supervisor for a multi-agent execution system.

Reason step by step. Wrap internal reasoning in %s ... %s so it can be
streamed separately from your final answer. You may call tools to gather
information before answering (ACTION/OBSERVATION).

When ready to answer, respond with ONLY a JSON object (outside any
%s...%s block), no prose, no code fences, matching exactly one of:

1. Direct answer (greetings, trivial facts, opinions you can answer with
   high confidence): {"simple_direct": true, "direct_answer": "..."}

2. A plan (otherwise): {"simple_direct": false, "refined_text": "...",
   "objectives": ["..."], "steps": [{"name": "...", "description": "...",
   "role": "<one of: %s>", "expected_output": "...", "deps": ["<earlier
   step name>"]}]}

Every step's "deps" must name only steps earlier in the "steps" array.`,
		thinkOpen, thinkClose, thinkOpen, thinkClose, strings.Join(roles.Keys(), ", "))
}

func parsePlan(raw string, task *models.Task) (*models.TaskPlan, bool) {
	text := stripThinking(raw)
	text = normalizeJSONText(text)

	var answer planAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		if obj := extractJSONObject(text); obj != "" {
			if err2 := json.Unmarshal([]byte(obj), &answer); err2 != nil {
				return nil, false
			}
		} else {
			return nil, false
		}
	}

	if answer.SimpleDirect {
		return &models.TaskPlan{SimpleDirect: true, DirectAnswer: answer.DirectAnswer}, true
	}
	if len(answer.Steps) == 0 {
		return nil, false
	}

	nameToID := make(map[string]string, len(answer.Steps))
	steps := make([]*models.Step, 0, len(answer.Steps))
	roleSet := map[string]bool{}
	for i, spec := range answer.Steps {
		id := fmt.Sprintf("step%d", i+1)
		nameToID[spec.Name] = id
		role := roles.Resolve(spec.Role)
		roleSet[role.Key] = true

		deps := make([]string, 0, len(spec.Deps))
		for _, dep := range spec.Deps {
			if depID, ok := nameToID[dep]; ok {
				deps = append(deps, depID)
			}
		}
		steps = append(steps, &models.Step{
			ID:          id,
			Ordinal:     i,
			Name:        spec.Name,
			Description: spec.Description,
			Role:        role.Key,
			Expected:    spec.Expected,
			Deps:        deps,
			Status:      models.StepPending,
		})
	}

	suggested := make([]string, 0, len(roleSet))
	for r := range roleSet {
		suggested = append(suggested, r)
	}

	return &models.TaskPlan{
		RefinedText:    answer.RefinedText,
		Objectives:     answer.Objectives,
		Steps:          steps,
		SuggestedRoles: suggested,
	}, true
}

// fallbackPlan assigns the task verbatim to the default researcher role,
// per spec.md §4.1: "if the model fails to produce a parsable plan after
// max iterations, return a single-step fallback plan".
func fallbackPlan(task *models.Task) *models.TaskPlan {
	role, ok := roles.Get("researcher")
	if !ok {
		role = roles.Resolve("")
	}
	return &models.TaskPlan{
		RefinedText: task.Content,
		Steps: []*models.Step{{
			ID:          "step1",
			Ordinal:     0,
			Name:        "research",
			Description: task.Content,
			Role:        role.Key,
			Status:      models.StepPending,
		}},
		SuggestedRoles: []string{role.Key},
	}
}

// thinkSplitter incrementally separates [THINKING]...[/THINKING] spans from
// the surrounding answer text across a stream of arbitrarily-sized deltas,
// forwarding each classified span to sink as it resolves.
type thinkSplitter struct {
	sink    StreamSink
	pending string
	inside  bool
}

func newThinkSplitter(sink StreamSink) *thinkSplitter {
	return &thinkSplitter{sink: sink}
}

// flush emits whatever partial-marker tail is still being held back, once
// the caller knows no more deltas are coming for this turn.
func (t *thinkSplitter) flush() {
	if t.sink == nil || t.pending == "" {
		return
	}
	kind := KindAnswer
	if t.inside {
		kind = KindThinking
	}
	t.sink(kind, t.pending)
	t.pending = ""
}

func (t *thinkSplitter) feed(delta string) {
	if t.sink == nil {
		return
	}
	t.pending += delta
	for {
		marker := thinkClose
		kind := KindThinking
		if !t.inside {
			marker = thinkOpen
			kind = KindAnswer
		}
		idx := strings.Index(t.pending, marker)
		if idx == -1 {
			// Hold back a tail that might be a partial marker.
			holdBack := len(marker) - 1
			if holdBack < 0 {
				holdBack = 0
			}
			if len(t.pending) > holdBack {
				flush := t.pending[:len(t.pending)-holdBack]
				if flush != "" {
					t.sink(kind, flush)
				}
				t.pending = t.pending[len(t.pending)-holdBack:]
			}
			return
		}
		if idx > 0 {
			t.sink(kind, t.pending[:idx])
		}
		t.pending = t.pending[idx+len(marker):]
		t.inside = !t.inside
	}
}

func stripThinking(s string) string {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, thinkOpen)
		if start == -1 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(thinkOpen):]
		end := strings.Index(rest, thinkClose)
		if end == -1 {
			break
		}
		rest = rest[end+len(thinkClose):]
	}
	return b.String()
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
