package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/agent-orchestrator/internal/koerrors"
)

// HTTPGetTool fetches a URL's body, truncated to a byte cap.
type HTTPGetTool struct{}

func (h *HTTPGetTool) Name() string { return "http_get" }
func (h *HTTPGetTool) Description() string {
	return "Fetches a URL via HTTP GET and returns the response body as text, truncated to a size cap."
}

func (h *HTTPGetTool) Execute(ctx context.Context, inputs map[string]any) (any, string, error) {
	url, _ := inputs["url"].(string)
	if url == "" {
		return nil, "", koerrors.New(koerrors.KindToolHandlerError, "http_get: missing url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", koerrors.Wrap(koerrors.KindToolHandlerError, "http_get: building request", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", koerrors.Wrap(koerrors.KindToolHandlerError, "http_get: request failed", err)
	}
	defer resp.Body.Close()

	max := envInt("HTTP_GET_MAX_BYTES", 2<<20)
	lr := io.LimitedReader{R: resp.Body, N: int64(max)}
	b, _ := io.ReadAll(&lr)
	logs := fmt.Sprintf("status=%d", resp.StatusCode)
	if lr.N == 0 {
		logs += " truncated=true"
	}
	return string(b), logs, nil
}
