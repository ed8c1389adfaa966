package tools

import (
    "context"

    "github.com/example/agent-orchestrator/internal/gateway"
    "github.com/example/agent-orchestrator/internal/koerrors"
)

// LLMAnswerTool answers a free-form question with a single model turn,
// streaming the response when a token callback is present in ctx.
type LLMAnswerTool struct{ Client gateway.Client }

func (t *LLMAnswerTool) Name() string { return "llm_answer" }
func (t *LLMAnswerTool) Description() string {
    return "Answers a free-form question using the configured model, with optional extra instructions."
}

func (t *LLMAnswerTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
    // accept either "text" or "question"
    q, _ := inputs["text"].(string)
    if q == "" { q, _ = inputs["question"].(string) }
    if q == "" { return nil, "", koerrors.New(koerrors.KindToolHandlerError, "llm_answer: missing text/question") }
    // optional instructions
    inst, _ := inputs["instructions"].(string)
    prompt := q
    if inst != "" { prompt = inst + "\n\nQuestion:\n" + q }
    req := gateway.CompleteRequest{Messages: []gateway.Message{{Role: gateway.RoleUser, Content: prompt}}}
    if cb := streamSinkFrom(ctx); cb != nil {
        req.StreamSink = func(delta string) { cb(delta) }
    }
    res, err := t.Client.Complete(ctx, req)
    if err != nil { return nil, "", err }
    return res.Content, "", nil
}
