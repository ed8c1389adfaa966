package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AnthropicBackend calls the Messages API, grounded on the teacher's
// llm.AnthropicClient (postJSON with retry/backoff), generalized to carry
// system prompts, multi-turn history, and tool definitions instead of a
// single flattened prompt string.
type AnthropicBackend struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func (c *AnthropicBackend) ContextWindowTokens() int { return 200_000 }
func (c *AnthropicBackend) NativeSearch() bool       { return false }
func (c *AnthropicBackend) NativeCodeExec() bool     { return false }

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func (c *AnthropicBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	var system string
	var turns []map[string]any
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleTool:
			turns = append(turns, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		default:
			turns = append(turns, map[string]any{
				"role":    string(m.Role),
				"content": []map[string]string{{"type": "text", "text": m.Content}},
			})
		}
	}

	body := map[string]any{
		"model":      c.modelID(req),
		"max_tokens": 4096,
		"messages":   turns,
	}
	if system != "" {
		body["system"] = system
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
		}
		body["tools"] = tools
	}

	var resp struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
	}
	if err := c.postJSON(ctx, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("anthropic: empty content")
	}

	result := &CompleteResult{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
			if req.StreamSink != nil {
				req.StreamSink(block.Text)
			}
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return result, nil
}

func (c *AnthropicBackend) modelID(req CompleteRequest) string {
	if req.ModelID != "" {
		return req.ModelID
	}
	return c.Model
}

func (c *AnthropicBackend) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.anthropic.com/v1/messages"
}

func (c *AnthropicBackend) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 45 * time.Second}
}

func (c *AnthropicBackend) postJSON(ctx context.Context, body any, out any) error {
	b, _ := json.Marshal(body)
	httpClient := c.httpClient()
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(), bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("x-api-key", c.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		req.Header.Set("content-type", "application/json")

		res, err := httpClient.Do(req)
		if err != nil {
			lastErr = wrapTransportErr("anthropic", err)
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
			lastErr = fmt.Errorf("anthropic status %d: %v", res.StatusCode, eresp)
		}()
		if lastErr == nil {
			return nil
		}
		if status == 408 || status == 429 || (status >= 500 && status <= 599) {
			lastErr = wrapStatusErr("anthropic", status, lastErr)
			time.Sleep(backoff(attempt))
			continue
		}
		return lastErr
	}
	return lastErr
}
