package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/tools"
)

type scriptedClient struct {
	responses []*gateway.CompleteResult
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	i := c.calls
	c.calls++
	if req.StreamSink != nil && i < len(c.responses) && c.responses[i] != nil {
		req.StreamSink(c.responses[i].Content)
	}
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return &gateway.CompleteResult{}, nil
}

func TestPlanReturnsSimpleDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{
		{Content: `{"simple_direct": true, "direct_answer": "Hello to you too."}`},
	}}
	s := New(client, tools.NewRegistry(), 5)
	plan := s.Plan(context.Background(), &models.Task{Content: "hi there"}, nil)
	require.True(t, plan.SimpleDirect)
	require.Equal(t, "Hello to you too.", plan.DirectAnswer)
}

func TestPlanParsesMultiStepPlanAndResolvesDeps(t *testing.T) {
	content := `[THINKING]breaking this down[/THINKING]{"simple_direct": false, "refined_text": "research then write",
"objectives": ["inform"], "steps": [
  {"name": "gather", "description": "gather facts", "role": "researcher", "expected_output": "facts"},
  {"name": "compose", "description": "write it up", "role": "writer", "expected_output": "report", "deps": ["gather"]}
]}`
	client := &scriptedClient{responses: []*gateway.CompleteResult{{Content: content}}}
	s := New(client, tools.NewRegistry(), 5)
	plan := s.Plan(context.Background(), &models.Task{Content: "write me a report"}, nil)

	require.False(t, plan.SimpleDirect)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, "step1", plan.Steps[0].ID)
	require.Equal(t, "step2", plan.Steps[1].ID)
	require.Equal(t, []string{"step1"}, plan.Steps[1].Deps)
	require.Equal(t, "researcher", plan.Steps[0].Role)
	require.Equal(t, "writer", plan.Steps[1].Role)
}

func TestPlanRunsToolCallThenParsesFinalAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.EchoTool{})
	client := &scriptedClient{responses: []*gateway.CompleteResult{
		{ToolCalls: []gateway.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}},
		{Content: `{"simple_direct": true, "direct_answer": "done"}`},
	}}
	s := New(client, reg, 5)
	plan := s.Plan(context.Background(), &models.Task{Content: "echo hi then answer"}, nil)
	require.True(t, plan.SimpleDirect)
	require.Equal(t, "done", plan.DirectAnswer)
	require.Equal(t, 2, client.calls)
}

func TestPlanFallsBackToResearcherOnUnparseableOutput(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{
		{Content: "I cannot produce a structured plan right now."},
	}}
	s := New(client, tools.NewRegistry(), 1)
	plan := s.Plan(context.Background(), &models.Task{Content: "do something complex"}, nil)
	require.False(t, plan.SimpleDirect)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, "researcher", plan.Steps[0].Role)
	require.Equal(t, "do something complex", plan.Steps[0].Description)
}

func TestPlanFallsBackOnNonRetriableError(t *testing.T) {
	client := &scriptedClient{errs: []error{koerrors.New(koerrors.KindInvalidOutput, "bad request")}}
	s := New(client, tools.NewRegistry(), 3)
	plan := s.Plan(context.Background(), &models.Task{Content: "hello"}, nil)
	require.False(t, plan.SimpleDirect)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, 1, client.calls)
}

func TestThinkSplitterSeparatesReasoningFromAnswerAcrossDeltas(t *testing.T) {
	var thinking, answer string
	sink := func(kind StreamKind, text string) {
		if kind == KindThinking {
			thinking += text
		} else {
			answer += text
		}
	}
	splitter := newThinkSplitter(sink)
	for _, chunk := range []string{"[THIN", "KING]reasoning here[/THINK", "ING]final answer"} {
		splitter.feed(chunk)
	}
	splitter.flush()
	require.Contains(t, thinking, "reasoning here")
	require.Contains(t, answer, "final answer")
}
