// Package subagent implements the Sub-Agent execution unit (spec.md §4.4/
// C3): the runtime that executes a single DAG step by building its prompt,
// driving the Model Gateway's streaming content+tool-call loop, and
// recording the result.
//
// Grounded on the teacher's internal/agents/{executor,llm_planner}.go: the
// plain-struct-implementing-a-small-interface shape of ToolExecutor, and
// llm_planner.go's model-call-then-recover pattern for completeWithRetry.
// The JSON-extraction helpers live in the supervisor package; this package
// returns the model's final text as-is.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/roles"
	"github.com/example/agent-orchestrator/internal/tools"
)

// ToolBudget is the task-wide tool-call counter every in-flight Sub-Agent of
// one task shares (spec.md §5: "Tool-call budget … atomic decrement;
// negative ⇒ reject").
type ToolBudget struct {
	remaining atomic.Int64
}

// NewToolBudget returns a budget seeded with n calls (config.MaxToolCalls).
func NewToolBudget(n int) *ToolBudget {
	b := &ToolBudget{}
	b.remaining.Store(int64(n))
	return b
}

// Acquire claims one call from the budget. Reports false (and leaves the
// counter negative) once exhausted, per the atomic-decrement-reject policy.
func (b *ToolBudget) Acquire() bool {
	return b.remaining.Add(-1) >= 0
}

// Remaining reports the current counter value, which may go negative
// transiently under contention; callers only care about the Acquire result.
func (b *ToolBudget) Remaining() int64 {
	return b.remaining.Load()
}

const maxModelRetries = 3

// SubAgent runs the finite loop of spec.md §4.4 for one step at a time. A
// single SubAgent value is stateless between calls and safe to share across
// the concurrently-running goroutines the Wave Scheduler spawns, since all
// mutable state (the tool budget, the registry, the bus) is itself
// independently synchronized.
type SubAgent struct {
	Client       gateway.Client
	Tools        *tools.Registry
	Bus          *eventbus.Bus
	Budget       *ToolBudget
	MaxToolTurns int
}

// New constructs a SubAgent, defaulting MaxToolTurns to the spec's 20-turn
// cap (spec.md §4.4 step 3) when not positive.
func New(client gateway.Client, reg *tools.Registry, bus *eventbus.Bus, budget *ToolBudget, maxToolTurns int) *SubAgent {
	if maxToolTurns <= 0 {
		maxToolTurns = 20
	}
	return &SubAgent{Client: client, Tools: reg, Bus: bus, Budget: budget, MaxToolTurns: maxToolTurns}
}

// Execute runs step to completion or failure. depOutputs carries the
// completed outputs of step's dependencies, keyed by step ID; they are
// injected verbatim into the step's user message. They are not summarised:
// the Model Gateway Adapter's chunk-summarisation keeps the first and last
// messages verbatim, and the initial prompt has only those two.
func (a *SubAgent) Execute(ctx context.Context, taskID string, step *models.Step, role roles.Role, depOutputs map[string]string) *models.Result {
	messages := a.buildPrompt(step, role, depOutputs)

	var buffer strings.Builder
	sink := gateway.StreamSink(func(delta string) {
		buffer.WriteString(delta)
		a.publish(taskID, models.EventAgentStream, map[string]any{
			"step_id": step.ID,
			"delta":   delta,
			"buffer":  buffer.String(),
		})
	})

	for turn := 0; turn < a.MaxToolTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return failure(koerrors.KindCancelled, "step cancelled: "+err.Error())
		}

		res, err := a.completeWithRetry(ctx, gateway.CompleteRequest{
			Messages:   messages,
			ModelID:    role.PreferredModel,
			Tools:      toolSpecsFor(role, a.Tools),
			StreamSink: sink,
		})
		if err != nil {
			kind, ok := koerrors.KindOf(err)
			if !ok {
				kind = koerrors.KindModelTransport
			}
			return failure(kind, err.Error())
		}

		if len(res.ToolCalls) == 0 {
			a.publish(taskID, models.EventAgentStreamClear, map[string]any{"step_id": step.ID})
			output := strings.TrimSpace(res.Content)
			if output == "" {
				return failure(koerrors.KindInvalidOutput, "model returned an empty final message")
			}
			return &models.Result{Success: true, Output: output}
		}

		messages = append(messages, gateway.Message{
			Role:      gateway.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})

		for _, tc := range res.ToolCalls {
			if !a.Budget.Acquire() {
				return failure(koerrors.KindToolBudgetExhausted, "global tool-call budget exhausted")
			}
			out, _, terr := a.Tools.Execute(ctx, tc.Name, tc.Arguments)
			var content string
			if terr != nil {
				content = terr.Error()
			} else {
				content = stringifyToolOutput(out)
			}
			messages = append(messages, gateway.Message{
				Role:       gateway.RoleTool,
				ToolCallID: tc.ID,
				Content:    content,
			})
		}
	}

	return failure(koerrors.KindInvalidOutput, fmt.Sprintf("tool-call turn budget (%d) exhausted without a final answer", a.MaxToolTurns))
}

// completeWithRetry retries model-transport/rate-limit failures with
// exponential backoff, making at most maxModelRetries attempts in total
// (spec.md §4.4 step 5),
// mirroring the teacher gateway backends' own retry shape.
func (a *SubAgent) completeWithRetry(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxModelRetries; attempt++ {
		res, err := a.Client.Complete(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		kind, _ := koerrors.KindOf(err)
		if !koerrors.Retriable(kind) {
			return nil, err
		}
		if attempt == maxModelRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return 500 * time.Millisecond * time.Duration(1<<attempt)
}

func (a *SubAgent) buildPrompt(step *models.Step, role roles.Role, depOutputs map[string]string) []gateway.Message {
	var ctxBuilder strings.Builder
	for _, dep := range step.Deps {
		out, ok := depOutputs[dep]
		if !ok {
			continue
		}
		fmt.Fprintf(&ctxBuilder, "\n\n[Output of %s]\n%s", dep, out)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Step: %s\n", step.Name)
	if step.Description != "" {
		fmt.Fprintf(&user, "Description: %s\n", step.Description)
	}
	if step.Expected != "" {
		fmt.Fprintf(&user, "Expected output: %s\n", step.Expected)
	}
	if ctxBuilder.Len() > 0 {
		user.WriteString("\nContext from prior steps:")
		user.WriteString(ctxBuilder.String())
	}

	return []gateway.Message{
		{Role: gateway.RoleSystem, Content: role.SystemPrompt},
		{Role: gateway.RoleUser, Content: user.String()},
	}
}

// toolSpecsFor offers the model only the role's allow-listed tools, falling
// back to the full registry when the role declares none.
func toolSpecsFor(role roles.Role, reg *tools.Registry) []gateway.ToolSpec {
	names := role.Tools
	if len(names) == 0 {
		names = reg.List()
	}
	specs := make([]gateway.ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, gateway.ToolSpec{Name: t.Name(), Description: t.Description()})
	}
	return specs
}

func stringifyToolOutput(out any) string {
	if s, ok := out.(string); ok {
		return s
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(b)
}

func (a *SubAgent) publish(taskID string, t models.EventType, payload any) {
	if a.Bus == nil {
		return
	}
	a.Bus.Publish(models.Event{Type: t, TaskID: taskID, Payload: payload, Timestamp: time.Now()})
}

func failure(kind koerrors.Kind, detail string) *models.Result {
	return &models.Result{Success: false, ErrorKind: string(kind), ErrorDetail: detail}
}
