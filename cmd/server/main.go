// Command server runs the orchestration engine behind the HTTP Library API
// boundary (spec.md §6), grounded on the teacher's cmd/server/main.go
// (env-driven addr, package-level CORS middleware) and extended with
// config.Load, logging.New, and graceful shutdown for the ambient stack
// the expanded specification calls for.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/agent-orchestrator/internal/api"
	"github.com/example/agent-orchestrator/internal/config"
	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/logging"
	"github.com/example/agent-orchestrator/internal/orchestrator"
	"github.com/example/agent-orchestrator/internal/tools"
)

func main() {
	_ = godotenv.Load()

	log := logging.New(logging.Options{
		FilePath: os.Getenv("LOG_FILE"),
		Debug:    os.Getenv("LOG_DEBUG") == "1",
	})
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	client := gateway.NewFromEnv(log)
	reg := defaultToolRegistry(client)
	bus := eventbus.New(1000, log)
	orch := orchestrator.New(client, reg, cfg, bus, log)

	srv := api.New(orch, log)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}
	httpServer := &http.Server{Addr: addr, Handler: srv.Router()}

	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if err := orch.Shutdown(ctx); err != nil {
		log.Error("orchestrator shutdown error", zap.Error(err))
	}
}

func defaultToolRegistry(client gateway.Client) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(&tools.EchoTool{})
	reg.Register(&tools.HTTPGetTool{})
	reg.Register(&tools.HTTPPostJSONTool{})
	reg.Register(&tools.HTMLToTextTool{})
	reg.Register(&tools.ExtractLinksTool{})
	reg.Register(&tools.CSVParseTool{})
	reg.Register(&tools.JSONPrettyTool{})
	reg.Register(&tools.RegexExtractTool{})
	reg.Register(&tools.PDFExtractTool{})
	reg.Register(&tools.FileExtractTool{})
	reg.Register(&tools.SandboxBrowserTool{})
	reg.Register(&tools.SandboxCodeInterpreterTool{})
	reg.Register(&tools.SummarizeTool{Client: client})
	reg.Register(&tools.SummarizeChunkedTool{Client: client})
	reg.Register(&tools.LLMAnswerTool{Client: client})
	reg.Register(&tools.CallTool{Registry: reg})
	return reg
}
