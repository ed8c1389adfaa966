package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	contextWindow  int
	nativeSearch   bool
	nativeCodeExec bool
	calls          []CompleteRequest
	response       string
}

func (s *stubBackend) ContextWindowTokens() int { return s.contextWindow }
func (s *stubBackend) NativeSearch() bool       { return s.nativeSearch }
func (s *stubBackend) NativeCodeExec() bool     { return s.nativeCodeExec }
func (s *stubBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	s.calls = append(s.calls, req)
	return &CompleteResult{Content: s.response}, nil
}

func TestAdapterInjectsFallbackTools(t *testing.T) {
	backend := &stubBackend{contextWindow: 1_000_000, response: "ok"}
	a := NewAdapter(backend, nil)

	_, err := a.Complete(context.Background(), CompleteRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, backend.calls, 1)
	names := toolNames(backend.calls[0].Tools)
	require.Contains(t, names, SandboxBrowserTool)
	require.Contains(t, names, SandboxCodeInterpreterTool)
}

func TestAdapterDoesNotDuplicateDeclaredTool(t *testing.T) {
	backend := &stubBackend{contextWindow: 1_000_000, response: "ok"}
	a := NewAdapter(backend, nil)

	_, err := a.Complete(context.Background(), CompleteRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []ToolSpec{{Name: SandboxBrowserTool, Description: "custom"}},
	})
	require.NoError(t, err)
	count := 0
	for _, tool := range backend.calls[0].Tools {
		if tool.Name == SandboxBrowserTool {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestAdapterSkipsFallbackToolsWhenNative(t *testing.T) {
	backend := &stubBackend{contextWindow: 1_000_000, nativeSearch: true, nativeCodeExec: true, response: "ok"}
	a := NewAdapter(backend, nil)

	_, err := a.Complete(context.Background(), CompleteRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Empty(t, backend.calls[0].Tools)
}

func TestAdapterChunkSummarisesOversizedInput(t *testing.T) {
	backend := &stubBackend{contextWindow: 10, response: "summary"}
	a := NewAdapter(backend, nil)

	longMiddle := strings.Repeat("word ", 500)
	_, err := a.Complete(context.Background(), CompleteRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: longMiddle},
			{Role: RoleUser, Content: "final turn"},
		},
	})
	require.NoError(t, err)
	// One call for summarisation, one for the final assembled completion.
	require.GreaterOrEqual(t, len(backend.calls), 2)
	final := backend.calls[len(backend.calls)-1]
	require.Equal(t, "sys", final.Messages[0].Content)
	require.Equal(t, "final turn", final.Messages[len(final.Messages)-1].Content)
}

func toolNames(tools []ToolSpec) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
