package tools

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"

    "github.com/mark3labs/mcp-go/client"
    "github.com/mark3labs/mcp-go/mcp"

    "github.com/example/agent-orchestrator/internal/koerrors"
)

// MCPServerConfig describes how to reach an external MCP server whose tools
// should be proxied into the native Tool Registry.
type MCPServerConfig struct {
    Transport string            // "stdio" | "sse"
    Command   string            // stdio only
    Args      []string          // stdio only
    Env       map[string]string // stdio only
    URL       string            // sse only
}

// mcpTool adapts a single remote MCP tool to the local Tool interface. Its
// Execute call proxies arguments to the MCP server and flattens the result's
// text content blocks into a single string.
type mcpTool struct {
    mu          sync.Mutex
    client      *client.Client
    name        string
    description string
}

func (t *mcpTool) Name() string        { return t.name }
func (t *mcpTool) Description() string { return t.description }

func (t *mcpTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    t.mu.Lock()
    c := t.client
    t.mu.Unlock()

    req := mcp.CallToolRequest{}
    req.Params.Name = t.name
    req.Params.Arguments = inputs

    result, err := c.CallTool(ctx, req)
    if err != nil {
        return nil, "", koerrors.Wrap(koerrors.KindToolHandlerError, fmt.Sprintf("mcp tool %s: call failed", t.name), err)
    }

    var text string
    for _, block := range result.Content {
        if tc, ok := block.(mcp.TextContent); ok {
            if text != "" {
                text += "\n"
            }
            text += tc.Text
        }
    }
    if text == "" && len(result.Content) > 0 {
        if data, merr := json.Marshal(result.Content); merr == nil {
            text = string(data)
        }
    }
    if result.IsError {
        return nil, "", koerrors.New(koerrors.KindToolHandlerError, fmt.Sprintf("mcp tool %s: %s", t.name, text))
    }
    return text, "", nil
}

// ConnectMCPServer dials an external MCP server and registers every tool it
// advertises into reg, proxied through mcpTool. The registered names are
// returned so callers can later Unregister them on disconnect.
func ConnectMCPServer(ctx context.Context, reg *Registry, cfg MCPServerConfig) ([]string, error) {
    c, err := newMCPClient(cfg)
    if err != nil {
        return nil, koerrors.Wrap(koerrors.KindToolHandlerError, "mcp: creating client", err)
    }

    initReq := mcp.InitializeRequest{}
    initReq.Params.ClientInfo = mcp.Implementation{Name: "agent-orchestrator", Version: "1.0.0"}
    initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
    if _, err := c.Initialize(ctx, initReq); err != nil {
        _ = c.Close()
        return nil, koerrors.Wrap(koerrors.KindToolHandlerError, "mcp: initializing connection", err)
    }

    listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
    if err != nil {
        _ = c.Close()
        return nil, koerrors.Wrap(koerrors.KindToolHandlerError, "mcp: listing tools", err)
    }

    names := make([]string, 0, len(listed.Tools))
    for _, tool := range listed.Tools {
        reg.Register(&mcpTool{client: c, name: tool.Name, description: tool.Description})
        names = append(names, tool.Name)
    }
    return names, nil
}

func newMCPClient(cfg MCPServerConfig) (*client.Client, error) {
    switch cfg.Transport {
    case "stdio":
        if cfg.Command == "" {
            return nil, fmt.Errorf("stdio transport requires a command")
        }
        var env []string
        for k, v := range cfg.Env {
            env = append(env, k+"="+v)
        }
        return client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
    case "sse":
        if cfg.URL == "" {
            return nil, fmt.Errorf("sse transport requires a url")
        }
        c, err := client.NewSSEMCPClient(cfg.URL)
        if err != nil {
            return nil, err
        }
        if err := c.Start(context.Background()); err != nil {
            return nil, fmt.Errorf("starting sse connection: %w", err)
        }
        return c, nil
    default:
        return nil, fmt.Errorf("unsupported mcp transport: %s", cfg.Transport)
    }
}
