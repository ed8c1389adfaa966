// Package api exposes the Library API (spec.md §6) over HTTP: it is a thin
// transport shell around internal/orchestrator.Orchestrator, never holding
// any scheduling logic of its own.
//
// Grounded on the teacher's internal/api/server.go (one handler per
// resource, a package-level respondJSON helper) and restructured from its
// net/http.ServeMux onto chi.Router (chi's anasdox-workline contributes the
// muxing style: path params via chi.URLParam instead of manual prefix
// trimming, and middleware.Logger/Recoverer for request logging and panic
// containment).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/orchestrator"
)

// Server is the HTTP boundary over one Orchestrator.
type Server struct {
	Orch *orchestrator.Orchestrator
	Log  *zap.Logger
}

// New builds a Server. A nil logger is replaced with zap.NewNop().
func New(orch *orchestrator.Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Orch: orch, Log: log}
}

// Router builds the chi.Router exposing every Library API operation.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", s.handleHealth)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleProgress)
			r.Get("/flow", s.handleFlow)
			r.Get("/result", s.handleResult)
			r.Post("/cancel", s.handleCancel)
			r.Get("/events", s.handleEvents)
		})
	})

	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.handleListTools)
		r.Delete("/{name}", s.handleUnregisterTool)
	})

	r.Post("/mode", s.handleSetMode)
	r.Post("/shutdown", s.handleShutdown)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type submitRequest struct {
	Content    string         `json:"content"`
	OutputType string         `json:"output_type,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := orchestrator.Options{Context: req.Context}
	if req.OutputType != "" {
		opts.OutputType = models.OutputType(req.OutputType)
	} else {
		opts.OutputType = models.OutputAuto
	}
	id := s.Orch.Submit(req.Content, opts)
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	progress, ok := s.Orch.Progress(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	steps, ok := s.Orch.Flow(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	respondJSON(w, http.StatusOK, steps)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	result, ok := s.Orch.Result(id)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if !s.Orch.Cancel(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams one task's Event Bus events as Server-Sent Events
// (spec.md §6 "subscribe"), closing when the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "taskID")
	ch, unsubscribe := s.Orch.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			w.Write([]byte("event: " + string(ev.Type) + "\n"))
			w.Write([]byte("data: "))
			w.Write(b)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Orch.ListTools())
}

func (s *Server) handleUnregisterTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.Orch.UnregisterTool(name) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := orchestrator.ExecutionMode(req.Mode)
	if mode != orchestrator.ModeTeam && mode != orchestrator.ModeScheduler {
		http.Error(w, "mode must be \"team\" or \"scheduler\"", http.StatusBadRequest)
		return
	}
	s.Orch.SetExecutionMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.Orch.Shutdown(ctx); err != nil {
		s.Log.Error("shutdown failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
