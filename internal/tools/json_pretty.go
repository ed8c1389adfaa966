package tools

import (
    "context"
    "encoding/json"
    "strings"

    "github.com/example/agent-orchestrator/internal/koerrors"
)

// JSONPrettyTool validates and pretty-prints a JSON string.
// Inputs:
// - json: string (required) — raw JSON text
// Output: string (indented JSON)
type JSONPrettyTool struct{}

func (t *JSONPrettyTool) Name() string { return "json_pretty" }
func (t *JSONPrettyTool) Description() string {
    return "Validates a JSON string and returns it re-indented for readability."
}

func (t *JSONPrettyTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    raw, _ := inputs["json"].(string)
    if strings.TrimSpace(raw) == "" { return "", "", koerrors.New(koerrors.KindToolHandlerError, "json_pretty: missing json") }
    var v any
    if err := json.Unmarshal([]byte(raw), &v); err != nil { return nil, "", koerrors.Wrap(koerrors.KindToolHandlerError, "json_pretty: invalid json", err) }
    out, err := json.MarshalIndent(v, "", "  ")
    if err != nil { return nil, "", koerrors.Wrap(koerrors.KindToolHandlerError, "json_pretty: marshal failed", err) }
    return string(out), "", nil
}

