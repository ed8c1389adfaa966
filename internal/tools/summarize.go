package tools

import (
    "context"
    "fmt"

    "github.com/example/agent-orchestrator/internal/gateway"
    "github.com/example/agent-orchestrator/internal/koerrors"
)

// SummarizeTool condenses a block of text into a short summary via a single
// model turn.
type SummarizeTool struct{ Client gateway.Client }

func (s *SummarizeTool) Name() string { return "summarize" }
func (s *SummarizeTool) Description() string {
    return "Summarizes a block of text into a few concise bullet points."
}

func (s *SummarizeTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    text, _ := inputs["text"].(string)
    if text == "" {
        return nil, "", koerrors.New(koerrors.KindToolHandlerError, "summarize: missing text")
    }
    prompt := fmt.Sprintf("Summarize the following text in a concise way (3-5 bullet points or a short paragraph). Focus on key facts.\n\nText:\n%s", text)
    res, err := s.Client.Complete(ctx, gateway.CompleteRequest{
        Messages: []gateway.Message{{Role: gateway.RoleUser, Content: prompt}},
    })
    if err != nil { return nil, "", err }
    return res.Content, "", nil
}
