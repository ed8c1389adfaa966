package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SandboxBrowserTool and SandboxCodeInterpreterTool are the two fallback
// tools the Adapter injects per spec.md §4.8 when the backend can't
// natively search or execute code. Their names are load-bearing: the Tool
// Registry (internal/tools) registers handlers under these exact names.
const (
	SandboxBrowserTool          = "sandbox_browser"
	SandboxCodeInterpreterTool  = "sandbox_code_interpreter"
)

// charsPerToken is a rough heuristic for estimating token counts from
// message content length without pulling in a model-specific tokenizer.
const charsPerToken = 4

// chunkSummaryBudgetTokens caps how much of a middle section the Adapter
// will hand to one chunk-summarisation call.
const chunkSummaryBudgetTokens = 2000

// Adapter wraps a raw Backend with the transparent behaviors spec.md §4.8
// requires of the boundary: fallback tool injection and long-text
// chunk-summarisation. The Sub-Agent/Supervisor/Reviewer only ever see
// Client, never Backend, so they never branch on model identity.
type Adapter struct {
	backend Backend
	log     *zap.Logger
}

// NewAdapter wraps backend. A nil logger is replaced with zap.NewNop().
func NewAdapter(backend Backend, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{backend: backend, log: log}
}

// Complete implements Client. It injects fallback tools the backend lacks
// natively, chunk-summarises oversized input, and otherwise delegates to
// the wrapped backend unchanged.
func (a *Adapter) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	req.Tools = a.withFallbackTools(req.Tools)

	if a.estimateTokens(req.Messages) > a.backend.ContextWindowTokens() {
		chunked, err := a.chunkSummarise(ctx, req)
		if err != nil {
			return nil, err
		}
		req.Messages = chunked
	}

	return a.backend.Complete(ctx, req)
}

// withFallbackTools appends sandbox_browser/sandbox_code_interpreter to the
// tool list when the backend can't do these things natively, without
// duplicating a tool the caller already declared.
func (a *Adapter) withFallbackTools(tools []ToolSpec) []ToolSpec {
	has := func(name string) bool {
		for _, t := range tools {
			if t.Name == name {
				return true
			}
		}
		return false
	}
	out := tools
	if !a.backend.NativeSearch() && !has(SandboxBrowserTool) {
		out = append(out, ToolSpec{
			Name:        SandboxBrowserTool,
			Description: "Search the web and fetch a URL's content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
					"url":   map[string]any{"type": "string"},
				},
			},
		})
	}
	if !a.backend.NativeCodeExec() && !has(SandboxCodeInterpreterTool) {
		out = append(out, ToolSpec{
			Name:        SandboxCodeInterpreterTool,
			Description: "Execute a short script and return its stdout/stderr.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"language": map[string]any{"type": "string"},
					"code":     map[string]any{"type": "string"},
				},
			},
		})
	}
	return out
}

func (a *Adapter) estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / charsPerToken
	}
	return total
}

// chunkSummarise implements spec.md §4.8's "if inputs exceed a model's
// context window, the adapter chunk-summarises middle sections and returns
// an assembled completion; this is transparent to Sub-Agents": it keeps the
// first and last messages verbatim (system prompt and the live turn) and
// replaces the middle run with per-chunk summaries produced by the same
// backend.
func (a *Adapter) chunkSummarise(ctx context.Context, req CompleteRequest) ([]Message, error) {
	messages := req.Messages
	if len(messages) <= 2 {
		return messages, nil
	}

	head := messages[0]
	tail := messages[len(messages)-1]
	middle := messages[1 : len(messages)-1]

	var chunks []string
	var current strings.Builder
	currentTokens := 0
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentTokens = 0
		}
	}
	for _, m := range middle {
		t := len(m.Content) / charsPerToken
		if currentTokens+t > chunkSummaryBudgetTokens {
			flush()
		}
		current.WriteString(fmt.Sprintf("[%s] %s\n", m.Role, m.Content))
		currentTokens += t
	}
	flush()

	summarised := make([]Message, 0, len(chunks))
	for i, chunk := range chunks {
		a.log.Debug("chunk_summarise", zap.Int("chunk_index", i), zap.Int("chunk_count", len(chunks)))
		res, err := a.backend.Complete(ctx, CompleteRequest{
			ModelID: req.ModelID,
			Messages: []Message{
				{Role: RoleSystem, Content: "Summarise the following conversation excerpt, preserving facts and figures a later step may need."},
				{Role: RoleUser, Content: chunk},
			},
		})
		if err != nil {
			return nil, err
		}
		summarised = append(summarised, Message{Role: RoleUser, Content: res.Content})
	}

	out := make([]Message, 0, len(summarised)+2)
	out = append(out, head)
	out = append(out, summarised...)
	out = append(out, tail)
	return out, nil
}
