// Package scheduler implements the Wave Scheduler (spec.md §4.3/C5): the
// DAG-driven dispatch loop that partitions ready steps into bounded-
// parallelism waves, runs each wave's Sub-Agents concurrently, applies the
// Quality-Gate Reviewer's decision to the flow after every step, and
// repeats until no step is ready or running.
//
// Grounded on spec.md §4.3's algorithm description directly (the teacher
// has no wave-based scheduler of its own — its orchestrator runs one flat
// plan with a simple per-step goroutine fan-out and no reviewer loop) and
// on the teacher's own use of one ticket-counter-style semaphore for
// bounding concurrent work, generalized here to golang.org/x/sync's
// semaphore.Weighted/errgroup, the idiomatic Go primitives for exactly this
// shape (bounded concurrent dispatch + wait-for-all-with-shared-cancellation).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/example/agent-orchestrator/internal/reviewer"
	"github.com/example/agent-orchestrator/internal/roles"
	"github.com/example/agent-orchestrator/internal/subagent"
)

// DefaultParallelismCap is the per-wave truncation default of spec.md §4.3.
const DefaultParallelismCap = 100

// Scheduler runs the wave loop for one task's Flow.
type Scheduler struct {
	Flow              *flow.Flow
	SubAgent          *subagent.SubAgent
	Reviewer          *reviewer.Reviewer
	Bus               *eventbus.Bus
	ParallelismCap    int
	MaxConcurrent     int
	StepTimeout       time.Duration
	TaskTimeout       time.Duration
	MaxRetryOnFailure int

	// AllowMutation gates the reviewer's add_step/skip_next decisions.
	// spec.md §6's "team" execution mode (the default) allows both; its
	// legacy "scheduler" mode fixes waves to the original topological
	// levels with no mid-flow mutation, so add_step/skip_next there are
	// coerced down to continue instead.
	AllowMutation bool

	ticket *semaphore.Weighted
}

// New constructs a Scheduler, defaulting ParallelismCap/MaxConcurrent to
// spec.md §4.3's 100, StepTimeout/TaskTimeout to §6's 300s/3600s.
func New(f *flow.Flow, sa *subagent.SubAgent, rv *reviewer.Reviewer, bus *eventbus.Bus, parallelismCap, maxConcurrent int, stepTimeout, taskTimeout time.Duration, maxRetryOnFailure int) *Scheduler {
	if parallelismCap <= 0 {
		parallelismCap = DefaultParallelismCap
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultParallelismCap
	}
	if stepTimeout <= 0 {
		stepTimeout = 300 * time.Second
	}
	if taskTimeout <= 0 {
		taskTimeout = 3600 * time.Second
	}
	if maxRetryOnFailure <= 0 {
		maxRetryOnFailure = 2
	}
	return &Scheduler{
		Flow: f, SubAgent: sa, Reviewer: rv, Bus: bus,
		ParallelismCap: parallelismCap, MaxConcurrent: maxConcurrent,
		StepTimeout: stepTimeout, TaskTimeout: taskTimeout,
		MaxRetryOnFailure: maxRetryOnFailure,
		AllowMutation:     true,
		ticket:            semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// RunResult is everything the scheduler produces for the caller once the
// wave loop reaches a terminal state: the final progress tally and the
// per-wave stats history (spec.md §3 WaveStats).
type RunResult struct {
	Progress models.Progress
	Waves    []models.WaveStats
}

// Run executes the wave loop for taskID's flow until no step is ready or
// running, or the overall task timeout/cancellation fires. depOutputs is
// populated with every completed step's output as the loop proceeds, so
// later waves can inject prior-step context into their prompts.
func (s *Scheduler) Run(ctx context.Context, taskID string, planSummary string) (*RunResult, error) {
	taskCtx, cancel := context.WithTimeout(ctx, s.TaskTimeout)
	defer cancel()

	for _, step := range s.Flow.Snapshot() {
		if step.Status == models.StepPending {
			if err := s.Flow.MarkWaiting(step.ID); err != nil {
				return nil, err
			}
		}
	}

	depOutputs := map[string]string{}
	var waves []models.WaveStats
	waveNum := 0

	for {
		if taskCtx.Err() != nil {
			s.cancelInFlight(taskID)
			break
		}

		ready := s.Flow.ReadyIDs()
		if len(ready) == 0 {
			// Every dispatched wave is fully awaited before the loop comes
			// back here, so an empty ready set always means the flow is
			// terminal (nothing left running either).
			break
		}

		wave := ready
		if len(wave) > s.ParallelismCap {
			wave = wave[:s.ParallelismCap]
		}
		waveNum++
		stats := models.WaveStats{Wave: waveNum, TaskCount: len(wave), Parallelism: len(wave), StartedAt: time.Now()}

		durations, err := s.runWave(taskCtx, taskID, wave, depOutputs)
		if err != nil {
			return nil, err
		}

		stats.EndedAt = time.Now()
		for _, id := range wave {
			step, _ := s.Flow.Get(id)
			if step == nil {
				continue
			}
			switch step.Status {
			case models.StepCompleted:
				stats.Completed++
			case models.StepFailed:
				stats.Failed++
			}
		}
		if hist := histogramOf(durations); hist != nil {
			stats.P50Millis = hist.ValueAtQuantile(50)
			stats.P99Millis = hist.ValueAtQuantile(99)
		}
		waves = append(waves, stats)

		s.publish(taskID, models.EventExecutionFlowUpdated, map[string]any{"wave": waveNum})

		for _, id := range wave {
			s.reviewStep(taskCtx, taskID, id, planSummary)
		}

		for _, id := range wave {
			step, ok := s.Flow.Get(id)
			if ok && step.Status == models.StepCompleted {
				if text, ok := step.Output.(string); ok {
					depOutputs[id] = text
				}
			}
		}
	}

	return &RunResult{Progress: s.Flow.Progress(), Waves: waves}, nil
}

// runWave dispatches every step in wave concurrently, bounded by the ticket
// semaphore, and waits for all of them to reach a terminal status or for
// ctx to be cancelled. It returns each step's observed duration in
// milliseconds for the wave's latency histogram.
func (s *Scheduler) runWave(ctx context.Context, taskID string, wave []string, depOutputs map[string]string) ([]int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var durations []int64

	for _, id := range wave {
		id := id
		g.Go(func() error {
			if err := s.ticket.Acquire(gctx, 1); err != nil {
				// Context cancelled before a ticket freed up; mark the step
				// cancelled rather than leaving it stuck in waiting.
				_ = s.Flow.MarkFailed(id, koerrors.KindCancelled, "scheduler cancelled before dispatch: "+err.Error())
				return nil
			}
			defer s.ticket.Release(1)

			dur := s.runStep(ctx, taskID, id, depOutputs)

			mu.Lock()
			durations = append(durations, dur)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return durations, nil
}

// runStep runs exactly one step: mark running, execute via the Sub-Agent
// under a per-step timeout, and apply the terminal status to the flow.
func (s *Scheduler) runStep(ctx context.Context, taskID string, id string, depOutputs map[string]string) int64 {
	step, ok := s.Flow.Get(id)
	if !ok {
		return 0
	}

	if err := s.Flow.MarkRunning(id); err != nil {
		return 0
	}
	s.publish(taskID, models.EventAgentCreated, map[string]any{"step_id": id})
	s.publish(taskID, models.EventStepStatusChanged, map[string]any{"step_id": id, "status": string(models.StepRunning)})

	role, ok := roles.Get(step.Role)
	if !ok {
		role = roles.Resolve(step.Role)
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout())
	defer cancel()

	start := time.Now()
	res := s.SubAgent.Execute(stepCtx, taskID, step, role, depOutputs)
	elapsed := time.Since(start)

	if res.Success {
		_ = s.Flow.MarkCompleted(id, res.Output)
		s.publish(taskID, models.EventStepStatusChanged, map[string]any{"step_id": id, "status": string(models.StepCompleted)})
		return elapsed.Milliseconds()
	}

	kind := koerrors.Kind(res.ErrorKind)
	if ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		kind = koerrors.KindTimeout
	} else if ctx.Err() != nil {
		kind = koerrors.KindCancelled
	}
	_ = s.Flow.MarkFailed(id, kind, res.ErrorDetail)
	s.publish(taskID, models.EventStepStatusChanged, map[string]any{"step_id": id, "status": string(models.StepFailed), "error_kind": string(kind)})
	return elapsed.Milliseconds()
}

func (s *Scheduler) stepTimeout() time.Duration {
	if s.StepTimeout <= 0 {
		return 300 * time.Second
	}
	return s.StepTimeout
}

// reviewStep invokes the Quality-Gate Reviewer for one terminated step and
// applies its coerced decision to the flow (spec.md §4.3 step 5 / §4.5).
func (s *Scheduler) reviewStep(ctx context.Context, taskID string, id string, planSummary string) {
	step, ok := s.Flow.Get(id)
	if !ok || step.Status == models.StepSkipped || step.Status == models.StepBlocked {
		return
	}

	output := ""
	if text, ok := step.Output.(string); ok {
		output = text
	}
	role, ok := roles.Get(step.Role)
	if !ok {
		role = roles.Resolve(step.Role)
	}

	report := s.Reviewer.Review(ctx, step, output, planSummary)
	decision := s.Reviewer.Coerce(report, step.RetryCount, role.Critical)
	if !s.AllowMutation && (decision == models.DecisionAddStep || decision == models.DecisionSkipNext) {
		decision = models.DecisionContinue
	}

	switch decision {
	case models.DecisionContinue:
		// no mutation needed
	case models.DecisionRetry:
		_ = s.Flow.Retry(id)
	case models.DecisionAddStep:
		specs := make([]models.NewStepSpec, len(report.NewSteps))
		copy(specs, report.NewSteps)
		for i := range specs {
			if !containsStr(specs[i].Deps, id) {
				specs[i].Deps = append(specs[i].Deps, id)
			}
		}
		applied, rejected := reviewer.ApplyAddStep(s.Flow, specs)
		for _, newID := range applied {
			_ = s.Flow.MarkWaiting(newID)
		}
		if len(rejected) > 0 {
			s.publish(taskID, models.EventTaskLog, map[string]any{
				"level":   "warning",
				"message": fmt.Sprintf("reviewer add_step rejected for step %s: %v", id, rejected),
			})
		}
	case models.DecisionSkipNext:
		s.skipDescendants(id)
	}
}

// skipDescendants transitively marks every step that (directly or
// indirectly) depends on id as skipped, per spec.md §4.3's skip_next rule.
func (s *Scheduler) skipDescendants(id string) {
	snapshot := s.Flow.Snapshot()
	dependents := map[string][]string{}
	for _, step := range snapshot {
		for _, dep := range step.Deps {
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	visited := map[string]bool{}
	queue := append([]string(nil), dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		_ = s.Flow.MarkSkipped(next)
		queue = append(queue, dependents[next]...)
	}
}

// cancelInFlight marks every running step as failed(cancelled) once the
// overall task timeout/cancellation fires (spec.md §4.3 "overall task
// timeout... all in-flight steps receive cancellation").
func (s *Scheduler) cancelInFlight(taskID string) {
	for _, step := range s.Flow.Snapshot() {
		if step.Status == models.StepRunning {
			_ = s.Flow.MarkFailed(step.ID, koerrors.KindCancelled, "task cancelled or timed out")
			s.publish(taskID, models.EventStepStatusChanged, map[string]any{"step_id": step.ID, "status": string(models.StepFailed), "error_kind": string(koerrors.KindCancelled)})
		}
	}
}

func (s *Scheduler) publish(taskID string, t models.EventType, payload any) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(models.Event{Type: t, TaskID: taskID, Payload: payload, Timestamp: time.Now()})
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// histogramOf builds an HDR histogram over a wave's step durations (in
// milliseconds), or nil if no step produced a sample.
func histogramOf(durationsMillis []int64) *hdrhistogram.Histogram {
	if len(durationsMillis) == 0 {
		return nil
	}
	h := hdrhistogram.New(1, 3_600_000, 3)
	for _, d := range durationsMillis {
		if d <= 0 {
			d = 1
		}
		_ = h.RecordValue(d)
	}
	return h
}
