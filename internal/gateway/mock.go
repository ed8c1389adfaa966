package gateway

import (
	"context"
	"strings"
)

// MockBackend is used when no real provider is configured, grounded on the
// teacher's llm.MockClient. It recognises a couple of lightweight
// conventions useful for tests and local development rather than calling
// out to any network.
type MockBackend struct{}

func (MockBackend) ContextWindowTokens() int { return 1_000_000 } // never triggers chunking
func (MockBackend) NativeSearch() bool       { return false }
func (MockBackend) NativeCodeExec() bool     { return false }

func (MockBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	lower := strings.ToLower(last)

	content := "Echo: " + last
	switch {
	case strings.Contains(lower, "你好") || strings.Contains(lower, "hello"):
		content = "Hello! How can I help you today?"
	case strings.Contains(lower, "http") || strings.Contains(lower, "url"):
		content = "I would fetch that URL and summarise its contents."
	}

	if req.StreamSink != nil {
		req.StreamSink(content)
	}
	return &CompleteResult{Content: content}, nil
}
