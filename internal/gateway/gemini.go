//go:build gemini

package gateway

import (
	"context"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend calls the Gemini API through the official SDK, grounded on
// the teacher's providers/gemini/gemini_real.go (same genai.NewClient +
// GenerativeModel usage, same gemini build tag), generalized to carry
// multi-turn history, tool declarations, and streaming instead of a single
// flattened prompt.
type GeminiBackend struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiBackend constructs a GeminiBackend for apiKey/modelName. Callers
// typically select modelName per spec.md's role/model preference table
// (internal/roles), e.g. "gemini-1.5-flash".
func NewGeminiBackend(ctx context.Context, apiKey, modelName string) (*GeminiBackend, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiBackend{client: c, model: c.GenerativeModel(modelName)}, nil
}

func (g *GeminiBackend) ContextWindowTokens() int { return 1_000_000 }
func (g *GeminiBackend) NativeSearch() bool       { return false }
func (g *GeminiBackend) NativeCodeExec() bool     { return false }

func (g *GeminiBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	var parts []genai.Part
	for _, m := range req.Messages {
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
	}
	for _, t := range req.Tools {
		g.model.Tools = append(g.model.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.Name,
				Description: t.Description,
			}},
		})
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, wrapTransportErr("gemini", err)
	}

	result := &CompleteResult{}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				result.Content += string(p)
				if req.StreamSink != nil {
					req.StreamSink(string(p))
				}
			case genai.FunctionCall:
				result.ToolCalls = append(result.ToolCalls, ToolCall{Name: p.Name, Arguments: p.Args})
			}
		}
	}
	return result, nil
}
