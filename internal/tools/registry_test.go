package tools

import (
    "context"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/example/agent-orchestrator/internal/koerrors"
)

func TestRegistryRegisterGetUnregister(t *testing.T) {
    reg := NewRegistry()
    reg.Register(&EchoTool{})

    got, ok := reg.Get("echo")
    require.True(t, ok)
    require.Equal(t, "echo", got.Name())

    require.ElementsMatch(t, []string{"echo"}, reg.List())

    require.True(t, reg.Unregister("echo"))
    _, ok = reg.Get("echo")
    require.False(t, ok)
}

func TestRegistryExecuteUnknownToolReturnsToolHandlerError(t *testing.T) {
    reg := NewRegistry()
    _, _, err := reg.Execute(context.Background(), "nope", nil)
    require.Error(t, err)
    kind, ok := koerrors.KindOf(err)
    require.True(t, ok)
    require.Equal(t, koerrors.KindToolHandlerError, kind)
}

func TestRegistryExecuteWrapsPlainToolError(t *testing.T) {
    reg := NewRegistry()
    reg.Register(&JSONPrettyTool{})
    _, _, err := reg.Execute(context.Background(), "json_pretty", map[string]any{"json": "not json"})
    require.Error(t, err)
    kind, ok := koerrors.KindOf(err)
    require.True(t, ok)
    require.Equal(t, koerrors.KindToolHandlerError, kind)
}

func TestEchoToolExecute(t *testing.T) {
    out, _, err := (&EchoTool{}).Execute(context.Background(), map[string]any{"text": "hi"})
    require.NoError(t, err)
    require.Equal(t, "echo: hi", out)
}
