package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/config"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/orchestrator"
	"github.com/example/agent-orchestrator/internal/tools"
)

type scriptedClient struct {
	contents []string
	calls    int
}

func (c *scriptedClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	i := c.calls
	c.calls++
	content := ""
	if i < len(c.contents) {
		content = c.contents[i]
	} else if len(c.contents) > 0 {
		content = c.contents[len(c.contents)-1]
	}
	if req.StreamSink != nil {
		req.StreamSink(content)
	}
	return &gateway.CompleteResult{Content: content}, nil
}

func testServer() *Server {
	cfg := config.Defaults()
	cfg.AgentTimeout = 2 * time.Second
	cfg.ExecutionTimeout = 5 * time.Second
	cfg.ReviewerTimeout = time.Second
	client := &scriptedClient{contents: []string{`{"simple_direct": true, "direct_answer": "hi there"}`}}
	orch := orchestrator.New(client, tools.NewRegistry(), cfg, nil, nil)
	return New(orch, nil)
}

func TestHandleSubmitReturnsTaskID(t *testing.T) {
	srv := testServer()
	router := srv.Router()

	body := []byte(`{"content": "hello", "output_type": "report"}`)
	req := httptest.NewRequest(http.MethodPost, "/tasks/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])
}

func TestHandleResultPollsUntilDone(t *testing.T) {
	srv := testServer()
	router := srv.Router()

	submitReq := httptest.NewRequest(http.MethodPost, "/tasks/", bytes.NewReader([]byte(`{"content": "hello"}`)))
	submitW := httptest.NewRecorder()
	router.ServeHTTP(submitW, submitReq)
	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(submitW.Body.Bytes(), &submitResp))
	id := submitResp["id"]

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/tasks/"+id+"/result", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			var result map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
			require.Equal(t, true, result["success"])
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("result never became available")
}

func TestHandleListToolsAndUnregister(t *testing.T) {
	srv := testServer()
	srv.Orch.RegisterTool(&tools.EchoTool{})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/tools/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	require.Contains(t, names, "echo")

	delReq := httptest.NewRequest(http.MethodDelete, "/tools/echo", nil)
	delW := httptest.NewRecorder()
	router.ServeHTTP(delW, delReq)
	require.Equal(t, http.StatusNoContent, delW.Code)
}

func TestHandleSetModeRejectsUnknownMode(t *testing.T) {
	srv := testServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/mode", bytes.NewReader([]byte(`{"mode": "bogus"}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCancelOnUnknownTaskReturnsNotFound(t *testing.T) {
	srv := testServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/tasks/does-not-exist/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
