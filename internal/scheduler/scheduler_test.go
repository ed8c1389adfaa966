package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/reviewer"
	"github.com/example/agent-orchestrator/internal/subagent"
	"github.com/example/agent-orchestrator/internal/tools"
)

func newTestRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.EchoTool{})
	return reg
}

type scriptedClient struct {
	contents []string
	calls    int
}

func (c *scriptedClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	i := c.calls
	c.calls++
	content := ""
	if i < len(c.contents) {
		content = c.contents[i]
	} else if len(c.contents) > 0 {
		content = c.contents[len(c.contents)-1]
	}
	if req.StreamSink != nil {
		req.StreamSink(content)
	}
	return &gateway.CompleteResult{Content: content}, nil
}

func newScheduler(t *testing.T, f *flow.Flow, agentClient, reviewClient gateway.Client) *Scheduler {
	t.Helper()
	bus := eventbus.New(100, nil)
	sa := subagent.New(agentClient, newTestRegistry(), bus, subagent.NewToolBudget(1000), 5)
	rv := reviewer.New(reviewClient, 0.7, 2, time.Second)
	return New(f, sa, rv, bus, 10, 10, 2*time.Second, 5*time.Second, 2)
}

func TestSchedulerRunsSingleStepToCompletion(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "s1", Name: "research", Role: "researcher"}))

	agentClient := &scriptedClient{contents: []string{"the finding"}}
	reviewClient := &scriptedClient{contents: []string{`{"score": 0.9, "decision": "continue"}`}}

	s := newScheduler(t, f, agentClient, reviewClient)
	result, err := s.Run(context.Background(), "task1", "summary")
	require.NoError(t, err)
	require.Equal(t, 1, result.Progress.Completed)
	require.Len(t, result.Waves, 1)

	step, _ := f.Get("s1")
	require.Equal(t, models.StepCompleted, step.Status)
}

func TestSchedulerRunsDependentStepsAcrossWaves(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "s1", Name: "gather", Role: "researcher"}))
	require.NoError(t, f.AddStep(&models.Step{ID: "s2", Name: "write", Role: "writer", Deps: []string{"s1"}}))

	agentClient := &scriptedClient{contents: []string{"gathered facts", "written report"}}
	reviewClient := &scriptedClient{contents: []string{`{"score": 0.9, "decision": "continue"}`}}

	s := newScheduler(t, f, agentClient, reviewClient)
	result, err := s.Run(context.Background(), "task1", "summary")
	require.NoError(t, err)
	require.Equal(t, 2, result.Progress.Completed)
	require.True(t, len(result.Waves) >= 2)

	s2, _ := f.Get("s2")
	require.Equal(t, models.StepCompleted, s2.Status)
}

func TestSchedulerRetriesOnLowQualityScoreThenCompletes(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "s1", Name: "research", Role: "researcher"}))

	agentClient := &scriptedClient{contents: []string{"weak answer", "much better answer"}}
	reviewClient := &scriptedClient{contents: []string{
		`{"score": 0.2, "decision": "continue"}`,
		`{"score": 0.9, "decision": "continue"}`,
	}}

	s := newScheduler(t, f, agentClient, reviewClient)
	result, err := s.Run(context.Background(), "task1", "summary")
	require.NoError(t, err)
	require.Equal(t, 1, result.Progress.Completed)

	step, _ := f.Get("s1")
	require.Equal(t, models.StepCompleted, step.Status)
	require.Equal(t, 1, step.RetryCount)
}

func TestSchedulerSkipsDescendantsOnSkipNext(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "s1", Name: "research", Role: "researcher"}))
	require.NoError(t, f.AddStep(&models.Step{ID: "s2", Name: "write", Role: "writer", Deps: []string{"s1"}}))

	agentClient := &scriptedClient{contents: []string{"weak answer", "weak answer", "weak answer"}}
	reviewClient := &scriptedClient{contents: []string{
		`{"score": 0.1, "decision": "continue"}`,
		`{"score": 0.1, "decision": "continue"}`,
		`{"score": 0.1, "decision": "continue"}`,
	}}

	s := newScheduler(t, f, agentClient, reviewClient)
	result, err := s.Run(context.Background(), "task1", "summary")
	require.NoError(t, err)
	_ = result

	s2, _ := f.Get("s2")
	require.Equal(t, models.StepSkipped, s2.Status)
}

func TestSchedulerLegacyModeCoercesSkipNextToContinue(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "s1", Name: "research", Role: "researcher"}))
	require.NoError(t, f.AddStep(&models.Step{ID: "s2", Name: "write", Role: "writer", Deps: []string{"s1"}}))

	agentClient := &scriptedClient{contents: []string{"weak answer", "weak answer", "weak answer", "second step output"}}
	reviewClient := &scriptedClient{contents: []string{
		`{"score": 0.1, "decision": "continue"}`,
		`{"score": 0.1, "decision": "continue"}`,
		`{"score": 0.1, "decision": "continue"}`,
		`{"score": 0.9, "decision": "continue"}`,
	}}

	s := newScheduler(t, f, agentClient, reviewClient)
	s.AllowMutation = false
	result, err := s.Run(context.Background(), "task1", "summary")
	require.NoError(t, err)
	_ = result

	s2, _ := f.Get("s2")
	require.NotEqual(t, models.StepSkipped, s2.Status)
}
