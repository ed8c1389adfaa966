package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIBackend calls the Chat Completions API, grounded on the teacher's
// llm.OpenAIClient (retry/backoff postJSON, SSE streaming via newLineReader)
// generalized to carry tool definitions and parse tool_calls out of the
// response instead of content only.
type OpenAIBackend struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func (c *OpenAIBackend) ContextWindowTokens() int { return 128_000 }
func (c *OpenAIBackend) NativeSearch() bool       { return false }
func (c *OpenAIBackend) NativeCodeExec() bool     { return false }

type openAIMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall  `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		om := openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			otc := openAIToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAITool, 0, len(tools))
	for _, t := range tools {
		ot := openAITool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		out = append(out, ot)
	}
	return out
}

func (c *OpenAIBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	if req.StreamSink != nil {
		return c.completeStreaming(ctx, req)
	}
	return c.completeOnce(ctx, req)
}

func (c *OpenAIBackend) completeOnce(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	body := map[string]any{
		"model":       c.modelID(req),
		"messages":    toOpenAIMessages(req.Messages),
		"temperature": 0.3,
	}
	if tools := toOpenAITools(req.Tools); tools != nil {
		body["tools"] = tools
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content   string           `json:"content"`
				ToolCalls []openAIToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, c.endpoint("/v1/chat/completions"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices")
	}
	msg := resp.Choices[0].Message
	result := &CompleteResult{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		result.ToolCalls = append(result.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return result, nil
}

func (c *OpenAIBackend) completeStreaming(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	body := map[string]any{
		"model":       c.modelID(req),
		"messages":    toOpenAIMessages(req.Messages),
		"temperature": 0.3,
		"stream":      true,
	}
	if tools := toOpenAITools(req.Tools); tools != nil {
		body["tools"] = tools
	}
	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/chat/completions"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr("openai", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eresp map[string]any
		_ = json.NewDecoder(res.Body).Decode(&eresp)
		return nil, wrapStatusErr("openai", res.StatusCode, fmt.Errorf("openai status %d: %v", res.StatusCode, eresp))
	}

	var content strings.Builder
	toolCallsByIndex := map[int]*ToolCall{}
	scanner := newLineReader(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var obj struct {
			Choices []struct {
				Delta struct {
					Content   string `json:"content"`
					ToolCalls []struct {
						Index    int    `json:"index"`
						ID       string `json:"id"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &obj); err != nil || len(obj.Choices) == 0 {
			continue
		}
		delta := obj.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			req.StreamSink(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			cur, ok := toolCallsByIndex[tc.Index]
			if !ok {
				cur = &ToolCall{ID: tc.ID, Arguments: map[string]any{}}
				toolCallsByIndex[tc.Index] = cur
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			prev, _ := cur.Arguments["__raw"].(string)
			cur.Arguments["__raw"] = prev + tc.Function.Arguments
		}
	}

	result := &CompleteResult{Content: content.String()}
	for i := 0; i < len(toolCallsByIndex); i++ {
		tc := toolCallsByIndex[i]
		if raw, ok := tc.Arguments["__raw"].(string); ok {
			var parsed map[string]any
			_ = json.Unmarshal([]byte(raw), &parsed)
			tc.Arguments = parsed
		}
		result.ToolCalls = append(result.ToolCalls, *tc)
	}
	return result, nil
}

func (c *OpenAIBackend) modelID(req CompleteRequest) string {
	if req.ModelID != "" {
		return req.ModelID
	}
	return c.Model
}

func (c *OpenAIBackend) endpoint(path string) string {
	base := c.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return strings.TrimRight(base, "/") + path
}

func (c *OpenAIBackend) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 45 * time.Second}
}

func (c *OpenAIBackend) postJSON(ctx context.Context, url string, body any, out any) error {
	b, _ := json.Marshal(body)
	httpClient := c.httpClient()
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		res, err := httpClient.Do(req)
		if err != nil {
			lastErr = wrapTransportErr("openai", err)
			if isTimeout(err) {
				time.Sleep(backoff(attempt))
				continue
			}
			return lastErr
		}
		var status int
		func() {
			defer res.Body.Close()
			status = res.StatusCode
			if res.StatusCode >= 200 && res.StatusCode < 300 {
				lastErr = json.NewDecoder(res.Body).Decode(out)
				return
			}
			var eresp map[string]any
			_ = json.NewDecoder(res.Body).Decode(&eresp)
			lastErr = fmt.Errorf("openai status %d: %v", res.StatusCode, eresp)
		}()
		if lastErr == nil {
			return nil
		}
		if status == 408 || status == 429 || (status >= 500 && status <= 599) {
			lastErr = wrapStatusErr("openai", status, lastErr)
			time.Sleep(backoff(attempt))
			continue
		}
		return lastErr
	}
	return lastErr
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var te timeout
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func backoff(i int) time.Duration {
	return time.Duration(500*(1<<i)) * time.Millisecond
}

func newLineReader(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	return sc
}
