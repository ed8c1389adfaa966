package tools

import (
    "context"
    "strings"

    "github.com/example/agent-orchestrator/internal/gateway"
    "github.com/example/agent-orchestrator/internal/koerrors"
)

// SandboxBrowserTool fetches a page and returns its readable text, the
// dev-mode stand-in for the out-of-scope Sandbox Gateway's browser that the
// Model Gateway Adapter injects when a backend lacks native web search
// (gateway.SandboxBrowserTool). Composes http_get and html_to_text rather
// than duplicating their fetch/parse logic.
// Inputs:
// - url: string (required)
type SandboxBrowserTool struct{}

func (t *SandboxBrowserTool) Name() string { return gateway.SandboxBrowserTool }
func (t *SandboxBrowserTool) Description() string {
    return "Fetches a URL and returns its readable text content, standing in for a real browsing sandbox."
}

func (t *SandboxBrowserTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    url, _ := inputs["url"].(string)
    if strings.TrimSpace(url) == "" {
        return nil, "", koerrors.New(koerrors.KindToolHandlerError, "sandbox_browser: missing url")
    }
    page, fetchLogs, err := (&HTTPGetTool{}).Execute(ctx, map[string]any{"url": url})
    if err != nil {
        return nil, "", err
    }
    html, _ := page.(string)
    text, _, err := (&HTMLToTextTool{}).Execute(ctx, map[string]any{"html": html})
    if err != nil {
        return nil, "", err
    }
    return text, fetchLogs, nil
}
