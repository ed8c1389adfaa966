package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/config"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/tools"
)

// scriptedClient returns one scripted content string per sequential call,
// guarded by a mutex since the scheduler may dispatch multiple concurrent
// Sub-Agents against the same client.
type scriptedClient struct {
	mu       sync.Mutex
	contents []string
	calls    int
	delay    time.Duration
}

func (c *scriptedClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.mu.Unlock()

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

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.MaxConcurrentAgents = 10
	cfg.MaxToolCalls = 100
	cfg.AgentTimeout = 2 * time.Second
	cfg.ExecutionTimeout = 5 * time.Second
	cfg.ReviewerTimeout = time.Second
	return cfg
}

func TestOrchestratorExecuteSimpleDirectSkipsFlow(t *testing.T) {
	client := &scriptedClient{contents: []string{`{"simple_direct": true, "direct_answer": "hi there"}`}}
	o := New(client, tools.NewRegistry(), testConfig(), nil, nil)

	result := o.Execute(context.Background(), "hello", Options{}, nil)
	require.True(t, result.Success)
	require.Equal(t, "hi there", result.Output)
}

func TestOrchestratorExecuteSingleStepPlanCompletes(t *testing.T) {
	planContent := `{"simple_direct": false, "refined_text": "look into it", "objectives": ["inform"],
"steps": [{"name": "gather", "description": "gather facts", "role": "researcher", "expected_output": "facts"}]}`
	client := &scriptedClient{contents: []string{
		planContent,
		"the researched facts",
		`{"score": 0.9, "decision": "continue"}`,
	}}
	o := New(client, tools.NewRegistry(), testConfig(), nil, nil)

	result := o.Execute(context.Background(), "research something", Options{OutputType: models.OutputReport}, nil)
	require.True(t, result.Success)
	require.NotNil(t, result.Artifact)
	require.Contains(t, result.Artifact.Text, "the researched facts")

	id := findLatestTaskID(t, o)
	progress, ok := o.Progress(id)
	require.True(t, ok)
	require.Equal(t, 1, progress.Completed)
}

func TestOrchestratorSubmitReturnsImmediatelyAndProgressesAsync(t *testing.T) {
	planContent := `{"simple_direct": false, "refined_text": "x", "objectives": [],
"steps": [{"name": "gather", "description": "d", "role": "researcher", "expected_output": "e"}]}`
	client := &scriptedClient{contents: []string{
		planContent,
		"output text",
		`{"score": 0.9, "decision": "continue"}`,
	}}
	o := New(client, tools.NewRegistry(), testConfig(), nil, nil)

	id := o.Submit("do something", Options{})
	require.NotEmpty(t, id)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if result, ok := o.Result(id); ok {
			require.True(t, result.Success)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not complete in time")
}

func TestOrchestratorCancelMarksTaskCancelled(t *testing.T) {
	planContent := `{"simple_direct": false, "refined_text": "x", "objectives": [],
"steps": [{"name": "gather", "description": "d", "role": "researcher", "expected_output": "e"}]}`
	client := &scriptedClient{contents: []string{planContent, "never reached"}, delay: 500 * time.Millisecond}
	cfg := testConfig()
	o := New(client, tools.NewRegistry(), cfg, nil, nil)

	id := o.Submit("do something", Options{})
	time.Sleep(50 * time.Millisecond)
	require.True(t, o.Cancel(id))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if result, ok := o.Result(id); ok {
			require.False(t, result.Success)
			require.Equal(t, "cancelled", result.ErrorKind)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cancelled task did not finish in time")
}

func TestOrchestratorListAndRegisterTool(t *testing.T) {
	o := New(&scriptedClient{}, tools.NewRegistry(), testConfig(), nil, nil)
	o.RegisterTool(&tools.EchoTool{})
	require.Contains(t, o.ListTools(), "echo")
	require.True(t, o.UnregisterTool("echo"))
	require.NotContains(t, o.ListTools(), "echo")
}

func TestOrchestratorSetExecutionModeStoresSchedulerMode(t *testing.T) {
	o := New(&scriptedClient{}, tools.NewRegistry(), testConfig(), nil, nil)
	o.SetExecutionMode(ModeScheduler)
	require.Equal(t, ModeScheduler, o.executionMode())
}

func findLatestTaskID(t *testing.T, o *Orchestrator) string {
	t.Helper()
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()
	for id := range o.tasks {
		return id
	}
	t.Fatal("no tasks found")
	return ""
}
