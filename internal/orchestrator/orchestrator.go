// Package orchestrator implements the Library API (spec.md §6): the single
// boundary that embeds the core. It wires one Supervisor, Flow, Scheduler,
// Reviewer, Sub-Agent, Aggregator, and the shared Event Bus into a
// per-task lifecycle, and exposes submit/execute/cancel/progress/flow/
// subscribe/register_tool/set_execution_mode/shutdown.
//
// Grounded on the teacher's internal/orchestrator/orchestrator.go: its
// task registry (map[string]*models.Task guarded by a RWMutex), its
// Submit-then-background-Start split, and its Subscribe-returns-channel
// shape are kept, generalized from the teacher's flat single-plan
// sequential loop to a per-task Flow/Scheduler pipeline. The teacher's own
// Hub (events.go) is superseded by internal/eventbus (the spec's own
// Event Bus, already grounded there) rather than kept as a second,
// redundant pub/sub implementation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/agent-orchestrator/internal/aggregator"
	"github.com/example/agent-orchestrator/internal/config"
	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/reviewer"
	"github.com/example/agent-orchestrator/internal/scheduler"
	"github.com/example/agent-orchestrator/internal/subagent"
	"github.com/example/agent-orchestrator/internal/supervisor"
	"github.com/example/agent-orchestrator/internal/tools"
)

// ExecutionMode selects between spec.md §6's two scheduling behaviors.
type ExecutionMode string

const (
	// ModeTeam is the default: the Wave Scheduler dynamically mutates the
	// flow per reviewer decision (add_step/skip_next allowed).
	ModeTeam ExecutionMode = "team"
	// ModeScheduler is the legacy mode: waves are fixed to the plan's
	// original topological levels, no mid-flow mutation.
	ModeScheduler ExecutionMode = "scheduler"
)

// Options customizes one submit/execute call.
type Options struct {
	OutputType models.OutputType
	Context    map[string]any
}

// taskEntry is everything the orchestrator keeps per in-flight or
// completed task.
type taskEntry struct {
	task   *models.Task
	flow   *flow.Flow
	cancel context.CancelFunc
	done   chan struct{}
	result *models.Result
}

// Orchestrator is the Library API boundary.
type Orchestrator struct {
	Client gateway.Client
	Tools  *tools.Registry
	Bus    *eventbus.Bus
	Config *config.Config
	Log    *zap.Logger

	mu   sync.RWMutex
	mode ExecutionMode

	tasksMu sync.RWMutex
	tasks   map[string]*taskEntry
}

// New builds an Orchestrator. Tools defaults to a fresh empty registry if
// nil is passed; Bus defaults to a 256-event backlog bus.
func New(client gateway.Client, reg *tools.Registry, cfg *config.Config, bus *eventbus.Bus, log *zap.Logger) *Orchestrator {
	if reg == nil {
		reg = tools.NewRegistry()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(256, log)
	}
	mode := ModeScheduler
	if cfg.EnableTeamMode {
		mode = ModeTeam
	}
	return &Orchestrator{
		Client: client, Tools: reg, Bus: bus, Config: cfg, Log: log,
		mode:  mode,
		tasks: map[string]*taskEntry{},
	}
}

// SetExecutionMode switches between "team" and "scheduler" modes for every
// task submitted from this point on (spec.md §6).
func (o *Orchestrator) SetExecutionMode(mode ExecutionMode) {
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
}

func (o *Orchestrator) executionMode() ExecutionMode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode
}

// Submit enqueues a task for planning and execution and returns immediately
// with its id (spec.md §6 "submit").
func (o *Orchestrator) Submit(content string, opts Options) string {
	id := uuid.NewString()
	now := time.Now()
	task := &models.Task{
		ID: id, Content: content, OutputType: opts.OutputType,
		Context: opts.Context, CreatedAt: now, UpdatedAt: now,
		Status: models.TaskPending,
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &taskEntry{task: task, flow: flow.New(), cancel: cancel, done: make(chan struct{})}

	o.tasksMu.Lock()
	o.tasks[id] = entry
	o.tasksMu.Unlock()

	o.publish(id, models.EventTaskCreated, map[string]any{"content": content})
	go o.run(ctx, entry)
	return id
}

// Execute submits content and blocks until the task reaches a terminal
// state, returning its final Result (spec.md §6 "execute").
func (o *Orchestrator) Execute(ctx context.Context, content string, opts Options, sink supervisor.StreamSink) *models.Result {
	id := o.Submit(content, opts)
	o.tasksMu.RLock()
	entry := o.tasks[id]
	o.tasksMu.RUnlock()
	if entry == nil {
		return &models.Result{Success: false, ErrorKind: string(koerrors.KindDependencyUnsat), ErrorDetail: "task vanished immediately after submit"}
	}
	select {
	case <-entry.done:
		return entry.result
	case <-ctx.Done():
		o.Cancel(id)
		<-entry.done
		return entry.result
	}
}

// ExecuteTask runs a pre-built task (with its own plan/content already set)
// through to completion, without the Supervisor re-planning it (spec.md §6
// "execute_task").
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *models.Task) *models.Result {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	entry := &taskEntry{task: task, flow: flow.New(), cancel: cancel, done: make(chan struct{})}
	o.tasksMu.Lock()
	o.tasks[task.ID] = entry
	o.tasksMu.Unlock()

	o.publish(task.ID, models.EventTaskCreated, map[string]any{"content": task.Content})
	go o.run(taskCtx, entry)

	select {
	case <-entry.done:
		return entry.result
	case <-ctx.Done():
		o.Cancel(task.ID)
		<-entry.done
		return entry.result
	}
}

// Cancel cancels a task's context (spec.md §6 "cancel").
func (o *Orchestrator) Cancel(taskID string) bool {
	o.tasksMu.RLock()
	entry, ok := o.tasks[taskID]
	o.tasksMu.RUnlock()
	if !ok {
		return false
	}
	entry.cancel()
	return true
}

// Progress returns the task's current DAG progress tally (spec.md §6
// "progress").
func (o *Orchestrator) Progress(taskID string) (models.Progress, bool) {
	o.tasksMu.RLock()
	entry, ok := o.tasks[taskID]
	o.tasksMu.RUnlock()
	if !ok {
		return models.Progress{}, false
	}
	return entry.flow.Progress(), true
}

// Flow returns the task's full DAG snapshot (spec.md §6 "flow").
func (o *Orchestrator) Flow(taskID string) ([]*models.Step, bool) {
	o.tasksMu.RLock()
	entry, ok := o.tasks[taskID]
	o.tasksMu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.flow.Snapshot(), true
}

// Result returns a task's final Result once it has reached a terminal
// status, or (nil, false) if it's still in flight or unknown. Callers
// driving the async submit/progress/flow loop use this to fetch the
// outcome once progress shows nothing left pending or running.
func (o *Orchestrator) Result(taskID string) (*models.Result, bool) {
	o.tasksMu.RLock()
	entry, ok := o.tasks[taskID]
	o.tasksMu.RUnlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.done:
		return entry.result, true
	default:
		return nil, false
	}
}

// Subscribe registers an observer for a task's Event Bus events (spec.md §6
// "subscribe"). The caller must invoke the returned unsubscribe func.
func (o *Orchestrator) Subscribe(taskID string) (<-chan models.Event, func()) {
	return o.Bus.Subscribe(taskID)
}

// RegisterTool adds a tool to the shared registry (spec.md §6
// "register_tool").
func (o *Orchestrator) RegisterTool(t tools.Tool) {
	o.Tools.Register(t)
}

// UnregisterTool removes a tool by name (spec.md §6 "unregister_tool").
func (o *Orchestrator) UnregisterTool(name string) bool {
	return o.Tools.Unregister(name)
}

// ListTools returns every registered tool's name (spec.md §6 "list_tools").
func (o *Orchestrator) ListTools() []string {
	return o.Tools.List()
}

// Shutdown cancels every in-flight task, waits briefly for each to observe
// cancellation, and writes the recovery file named by
// Config.RecoveryFilePath (spec.md §6 "Persisted state": on unclean
// shutdown, list what's still open so a future startup can reclaim it).
//
// The spec's recovery file lists "open Sandbox Gateway instances"; this
// core never holds a Sandbox Gateway handle directly (that's the Model
// Gateway Adapter's responsibility per spec.md §4.8's fallback tools), so
// the file instead lists the task ids that were still running at shutdown
// time — the unit a future startup actually needs to decide what to
// reclaim or re-submit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.tasksMu.RLock()
	running := make([]string, 0, len(o.tasks))
	for id, entry := range o.tasks {
		select {
		case <-entry.done:
		default:
			running = append(running, id)
		}
		entry.cancel()
	}
	o.tasksMu.RUnlock()

	for _, id := range running {
		o.tasksMu.RLock()
		entry := o.tasks[id]
		o.tasksMu.RUnlock()
		if entry == nil {
			continue
		}
		select {
		case <-entry.done:
		case <-ctx.Done():
		}
	}

	if o.Config.RecoveryFilePath == "" || len(running) == 0 {
		return nil
	}
	b, err := json.MarshalIndent(map[string]any{"incomplete_tasks": running, "at": time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(o.Config.RecoveryFilePath, b, 0o644)
}

// run drives one task from planning through aggregation to a terminal
// Result, closing entry.done when finished.
func (o *Orchestrator) run(ctx context.Context, entry *taskEntry) {
	defer close(entry.done)
	task := entry.task
	taskID := task.ID

	task.Status = models.TaskPlanning
	task.UpdatedAt = time.Now()
	o.publish(taskID, models.EventTaskUpdated, map[string]any{"status": string(task.Status)})

	var planSteps []*models.Step
	refinedText := task.Content

	if len(task.Steps) > 0 {
		// execute_task: the caller already supplied a plan, so the
		// Supervisor's ReAct planning loop is skipped entirely.
		planSteps = task.Steps
	} else {
		sup := supervisor.New(o.Client, o.Tools, o.Config.Supervisor.MaxReactIterations)
		sink := func(kind supervisor.StreamKind, text string) {
			o.publish(taskID, models.EventAgentStream, map[string]any{"kind": string(kind), "text": text})
		}
		plan := sup.Plan(ctx, task, sink)
		if plan.SimpleDirect {
			result := &models.Result{Success: true, Output: plan.DirectAnswer, Artifact: &models.Artifact{Type: models.OutputReport, Text: plan.DirectAnswer}}
			o.finish(taskID, entry, result)
			return
		}
		planSteps = plan.Steps
		refinedText = plan.RefinedText
	}

	for i, step := range planSteps {
		step.Ordinal = i
		if step.Status == "" {
			step.Status = models.StepPending
		}
		if err := entry.flow.AddStep(step); err != nil {
			result := &models.Result{Success: false, ErrorKind: string(koerrors.KindCycleDetected), ErrorDetail: err.Error()}
			o.finish(taskID, entry, result)
			return
		}
	}

	task.Status = models.TaskRunning
	task.UpdatedAt = time.Now()
	o.publish(taskID, models.EventTaskUpdated, map[string]any{"status": string(task.Status)})

	budget := subagent.NewToolBudget(o.Config.MaxToolCalls)
	sa := subagent.New(o.Client, o.Tools, o.Bus, budget, o.Config.MaxToolTurns)
	rv := reviewer.New(o.Client, o.Config.Supervisor.QualityThreshold, o.Config.Supervisor.MaxRetryOnFailure, o.Config.ReviewerTimeout)
	sched := scheduler.New(entry.flow, sa, rv, o.Bus, o.Config.MaxConcurrentAgents, o.Config.MaxConcurrentAgents, o.Config.AgentTimeout, o.Config.ExecutionTimeout, o.Config.Supervisor.MaxRetryOnFailure)
	sched.AllowMutation = o.executionMode() == ModeTeam
	if !o.Config.Supervisor.EnableQualityGates {
		rv.QualityThreshold = 0
	}

	if _, err := sched.Run(ctx, taskID, refinedText); err != nil {
		result := &models.Result{Success: false, ErrorKind: string(koerrors.KindDependencyUnsat), ErrorDetail: err.Error()}
		o.finish(taskID, entry, result)
		return
	}

	agg := aggregator.New(o.Bus)
	artifact := agg.Aggregate(entry.flow, task, taskID)
	progress := entry.flow.Progress()

	result := &models.Result{
		Success:  progress.Failed == 0 && progress.Completed > 0,
		Output:   artifact.Text,
		Artifact: artifact,
	}
	if !result.Success {
		result.ErrorKind = string(koerrors.KindInvalidOutput)
		result.ErrorDetail = fmt.Sprintf("%d of %d steps failed", progress.Failed, progress.Total)
	}
	if ctx.Err() != nil {
		result.ErrorKind = string(koerrors.KindCancelled)
		result.ErrorDetail = "task cancelled before completion"
	}
	o.finish(taskID, entry, result)
}

func (o *Orchestrator) finish(taskID string, entry *taskEntry, result *models.Result) {
	entry.result = result
	entry.task.UpdatedAt = time.Now()
	if result.Success {
		entry.task.Status = models.TaskCompleted
	} else if result.ErrorKind == string(koerrors.KindCancelled) {
		entry.task.Status = models.TaskCancelled
	} else {
		entry.task.Status = models.TaskFailed
	}
	o.publish(taskID, models.EventTaskCompleted, result)
}

func (o *Orchestrator) publish(taskID string, t models.EventType, payload any) {
	o.Bus.Publish(models.Event{Type: t, TaskID: taskID, Payload: payload, Timestamp: time.Now()})
}
