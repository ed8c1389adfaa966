package tools

import (
    "context"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/example/agent-orchestrator/internal/koerrors"
)

func TestSandboxCodeInterpreterReturnsValueAndLogs(t *testing.T) {
    out, logs, err := (&SandboxCodeInterpreterTool{}).Execute(context.Background(), map[string]any{
        "code": `console.log("hello"); 1 + 2`,
    })
    require.NoError(t, err)
    require.Contains(t, logs, "hello")
    m, ok := out.(map[string]any)
    require.True(t, ok)
    require.EqualValues(t, 3, m["result"])
}

func TestSandboxCodeInterpreterMissingCode(t *testing.T) {
    _, _, err := (&SandboxCodeInterpreterTool{}).Execute(context.Background(), map[string]any{})
    require.Error(t, err)
    kind, ok := koerrors.KindOf(err)
    require.True(t, ok)
    require.Equal(t, koerrors.KindToolHandlerError, kind)
}

func TestSandboxCodeInterpreterRuntimeErrorWrapped(t *testing.T) {
    _, _, err := (&SandboxCodeInterpreterTool{}).Execute(context.Background(), map[string]any{
        "code": `throw new Error("boom")`,
    })
    require.Error(t, err)
    kind, ok := koerrors.KindOf(err)
    require.True(t, ok)
    require.Equal(t, koerrors.KindToolHandlerError, kind)
}

func TestSandboxCodeInterpreterTimeout(t *testing.T) {
    _, _, err := (&SandboxCodeInterpreterTool{}).Execute(context.Background(), map[string]any{
        "code":       `while (true) {}`,
        "timeout_ms": float64(50),
    })
    require.Error(t, err)
}
