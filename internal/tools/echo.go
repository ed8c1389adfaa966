package tools

import (
	"context"
	"fmt"
)

// EchoTool returns its input text verbatim, prefixed. Useful for tests and
// as a harmless default when a plan step names a tool the model shouldn't
// actually need.
type EchoTool struct{}

func (e *EchoTool) Name() string        { return "echo" }
func (e *EchoTool) Description() string { return "Echoes the given text back, prefixed with 'echo: '." }

func (e *EchoTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
	text, _ := inputs["text"].(string)
	return fmt.Sprintf("echo: %s", text), "", nil
}
