package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/roles"
	"github.com/example/agent-orchestrator/internal/tools"
)

type scriptedClient struct {
	responses []*gateway.CompleteResult
	errs      []error
	calls     int
	requests  []gateway.CompleteRequest
}

func (c *scriptedClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	i := c.calls
	c.calls++
	c.requests = append(c.requests, req)
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

func testRole() roles.Role {
	return roles.Role{Key: "researcher", DisplayName: "Researcher", SystemPrompt: "You research things.", PreferredModel: "test-model"}
}

func TestSubAgentReturnsFinalContentWithNoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{{Content: "the answer"}}}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1", Name: "research"}, testRole(), nil)
	require.True(t, res.Success)
	require.Equal(t, "the answer", res.Output)
}

func TestSubAgentEmptyFinalMessageIsInvalidOutput(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{{Content: "   "}}}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.False(t, res.Success)
	require.Equal(t, string(koerrors.KindInvalidOutput), res.ErrorKind)
}

func TestSubAgentRunsToolCallThenReturnsFinalAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.EchoTool{})
	client := &scriptedClient{
		responses: []*gateway.CompleteResult{
			{ToolCalls: []gateway.ToolCall{{ID: "call1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}},
			{Content: "done"},
		},
	}
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.True(t, res.Success)
	require.Equal(t, "done", res.Output)
	require.Equal(t, 2, client.calls)
}

func TestSubAgentToolBudgetExhaustedFailsStep(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.EchoTool{})
	client := &scriptedClient{
		responses: []*gateway.CompleteResult{
			{ToolCalls: []gateway.ToolCall{{ID: "call1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}},
		},
	}
	bus := eventbus.New(10, nil)
	budget := NewToolBudget(0)
	a := New(client, reg, bus, budget, 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.False(t, res.Success)
	require.Equal(t, string(koerrors.KindToolBudgetExhausted), res.ErrorKind)
}

func TestSubAgentRetriesOnRetriableModelError(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{koerrors.New(koerrors.KindModelTransport, "connection reset"), nil},
		responses: []*gateway.CompleteResult{nil, {Content: "recovered"}},
	}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.True(t, res.Success)
	require.Equal(t, "recovered", res.Output)
	require.Equal(t, 2, client.calls)
}

func TestSubAgentNonRetriableModelErrorFailsImmediately(t *testing.T) {
	client := &scriptedClient{errs: []error{koerrors.New(koerrors.KindInvalidOutput, "bad request")}}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.False(t, res.Success)
	require.Equal(t, 1, client.calls)
}

func TestSubAgentPublishesStreamAndClearEvents(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{{Content: "hello"}}}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	ch, unsub := bus.Subscribe("task1")
	defer unsub()

	a := New(client, reg, bus, NewToolBudget(10), 5)
	res := a.Execute(context.Background(), "task1", &models.Step{ID: "s1"}, testRole(), nil)
	require.True(t, res.Success)

	var types []models.EventType
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.Contains(t, types, models.EventAgentStream)
	require.Contains(t, types, models.EventAgentStreamClear)
}

func TestSubAgentInjectsDependencyOutputsIntoPrompt(t *testing.T) {
	client := &scriptedClient{responses: []*gateway.CompleteResult{{Content: "ok"}}}
	reg := tools.NewRegistry()
	bus := eventbus.New(10, nil)
	a := New(client, reg, bus, NewToolBudget(10), 5)

	step := &models.Step{ID: "s2", Deps: []string{"s1"}}
	_ = a.Execute(context.Background(), "task1", step, testRole(), map[string]string{"s1": "prior output text"})
	require.Equal(t, 1, client.calls)
	require.Contains(t, client.requests[0].Messages[1].Content, "prior output text")
}
