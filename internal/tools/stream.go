package tools

import "context"

// TokenCallback is used to stream incremental text output from tools
// (summarize_chunked's reduce phase, llm_answer, pdf_extract's per-page
// text).
type TokenCallback func(chunk string)

// ctxKey namespaces context values this package injects.
type ctxKey string

// CtxTokenCallbackKey carries a TokenCallback through context so a tool can
// emit partial output, mirroring the teacher's CtxTokenCallbackKey.
var CtxTokenCallbackKey ctxKey = "token_cb"

func streamSinkFrom(ctx context.Context) TokenCallback {
	if cb, ok := ctx.Value(CtxTokenCallbackKey).(TokenCallback); ok {
		return cb
	}
	return nil
}
