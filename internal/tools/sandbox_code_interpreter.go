package tools

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/dop251/goja"

    "github.com/example/agent-orchestrator/internal/gateway"
    "github.com/example/agent-orchestrator/internal/koerrors"
)

// SandboxCodeInterpreterTool runs a JavaScript snippet in an isolated goja
// VM, the local dev-mode stand-in for the out-of-scope Sandbox Gateway that
// the Model Gateway Adapter injects when a backend lacks native code
// execution (gateway.SandboxCodeInterpreterTool).
// Inputs:
// - code: string (required)
// - timeout_ms: number (optional; default 5000)
type SandboxCodeInterpreterTool struct{}

func (t *SandboxCodeInterpreterTool) Name() string { return gateway.SandboxCodeInterpreterTool }
func (t *SandboxCodeInterpreterTool) Description() string {
    return "Executes a short JavaScript snippet in a sandboxed VM and returns its console output and final value."
}

func (t *SandboxCodeInterpreterTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    code, _ := inputs["code"].(string)
    if strings.TrimSpace(code) == "" {
        return nil, "", koerrors.New(koerrors.KindToolHandlerError, "sandbox_code_interpreter: missing code")
    }
    timeout := 5 * time.Second
    if v, ok := inputs["timeout_ms"].(float64); ok && v > 0 {
        timeout = time.Duration(v) * time.Millisecond
    }

    vm := goja.New()
    var mu sync.Mutex
    var logs []string
    appendLog := func(level string, call goja.FunctionCall) goja.Value {
        mu.Lock()
        defer mu.Unlock()
        parts := make([]string, len(call.Arguments))
        for i, a := range call.Arguments {
            parts[i] = a.String()
        }
        logs = append(logs, fmt.Sprintf("[%s] %s", level, strings.Join(parts, " ")))
        return goja.Undefined()
    }
    console := vm.NewObject()
    console.Set("log", func(c goja.FunctionCall) goja.Value { return appendLog("LOG", c) })
    console.Set("warn", func(c goja.FunctionCall) goja.Value { return appendLog("WARN", c) })
    console.Set("error", func(c goja.FunctionCall) goja.Value { return appendLog("ERROR", c) })
    vm.Set("console", console)

    done := make(chan struct{})
    timer := time.AfterFunc(timeout, func() { vm.Interrupt("sandbox_code_interpreter: execution timeout") })
    defer timer.Stop()

    var val goja.Value
    var runErr error
    go func() {
        val, runErr = vm.RunString(code)
        close(done)
    }()

    select {
    case <-done:
    case <-ctx.Done():
        vm.Interrupt("sandbox_code_interpreter: cancelled")
        <-done
        runErr = ctx.Err()
    }

    logsOut := strings.Join(logs, "\n")
    if runErr != nil {
        return nil, logsOut, koerrors.Wrap(koerrors.KindToolHandlerError, "sandbox_code_interpreter: execution failed", runErr)
    }
    var result any
    if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
        result = val.Export()
    }
    return map[string]any{"result": result, "console": logs}, logsOut, nil
}
