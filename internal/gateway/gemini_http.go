//go:build !gemini

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeminiBackend is the lightweight HTTP fallback used when the repo is
// built without the gemini tag (see gemini.go), grounded on the teacher's
// providers/llm/gemini_http.go, generalized to carry multi-turn history
// instead of a single flattened prompt. It has no tool-calling support,
// so the Adapter always injects the fallback tools for it.
type GeminiBackend struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func (c *GeminiBackend) ContextWindowTokens() int { return 1_000_000 }
func (c *GeminiBackend) NativeSearch() bool       { return false }
func (c *GeminiBackend) NativeCodeExec() bool     { return false }

func (c *GeminiBackend) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	var contents []map[string]any
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}

	body := map[string]any{"contents": contents}
	b, _ := json.Marshal(body)

	modelID := c.Model
	if req.ModelID != "" {
		modelID = req.ModelID
	}
	endpoint := c.baseURL() + "/models/" + url.PathEscape(modelID) + ":generateContent?key=" + url.QueryEscape(c.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("content-type", "application/json")

	res, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr("gemini", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eresp map[string]any
		_ = json.NewDecoder(res.Body).Decode(&eresp)
		return nil, wrapStatusErr("gemini", res.StatusCode, fmt.Errorf("gemini status %d: %v", res.StatusCode, eresp))
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini: no candidates")
	}

	text := out.Candidates[0].Content.Parts[0].Text
	if req.StreamSink != nil {
		req.StreamSink(text)
	}
	return &CompleteResult{Content: text}, nil
}

func (c *GeminiBackend) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://generativelanguage.googleapis.com/v1beta"
}

func (c *GeminiBackend) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 45 * time.Second}
}
