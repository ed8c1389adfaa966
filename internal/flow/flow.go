// Package flow implements the Execution Flow (spec.md §4.2): the
// authoritative mutable DAG of a task's steps, its Kahn's-algorithm
// topological order, and the invariants that every mutation must preserve.
package flow

import (
	"sort"
	"sync"
	"time"

	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
)

// Flow is the authoritative mutable DAG state for one task, mirroring the
// mutex-guarded map pattern of the teacher's Orchestrator (tasksMu/tasks)
// but scoped to a single task's steps instead of the whole task registry.
type Flow struct {
	mu        sync.Mutex
	steps     map[string]*models.Step
	order     []string // insertion order, used for ordinal tie-breaking
	topoBuilt bool
	topo      []string
}

// New returns an empty Flow.
func New() *Flow {
	return &Flow{steps: map[string]*models.Step{}}
}

func (f *Flow) lock()   { f.mu.Lock() }
func (f *Flow) unlock() { f.mu.Unlock() }

// AddStep appends a new step in status pending. It returns a
// dependency_unsatisfied error if any declared dependency is unknown, and a
// cycle_detected error if adding the step would introduce a cycle.
func (f *Flow) AddStep(s *models.Step) error {
	f.lock()
	defer f.unlock()
	return f.addStepLocked(s)
}

func (f *Flow) addStepLocked(s *models.Step) error {
	if _, exists := f.steps[s.ID]; exists {
		return koerrors.New(koerrors.KindCycleDetected, "duplicate step id "+s.ID)
	}
	for _, dep := range s.Deps {
		if _, ok := f.steps[dep]; !ok {
			return koerrors.New(koerrors.KindDependencyUnsat, "unknown dependency "+dep+" for step "+s.ID)
		}
	}
	if s.Status == "" {
		s.Status = models.StepPending
	}
	f.steps[s.ID] = s
	f.order = append(f.order, s.ID)
	if wouldCycle(f.steps) {
		delete(f.steps, s.ID)
		f.order = f.order[:len(f.order)-1]
		return koerrors.New(koerrors.KindCycleDetected, "adding step "+s.ID+" would create a cycle")
	}
	f.topoBuilt = false
	return nil
}

// InsertStep inserts a new step, optionally rewiring beforeID's dependants
// to depend on the new step instead (spec.md §4.2's insert_step, used by
// the reviewer's add_step decision in §4.5). Rejected with
// cycle_detected if the insertion would create a cycle.
func (f *Flow) InsertStep(s *models.Step, beforeID string) error {
	f.lock()
	defer f.unlock()

	if beforeID != "" {
		if _, ok := f.steps[beforeID]; !ok {
			return koerrors.New(koerrors.KindDependencyUnsat, "insert_step: unknown before_id "+beforeID)
		}
	}
	if err := f.addStepLocked(s); err != nil {
		return err
	}
	if beforeID == "" {
		return nil
	}
	// Rewire: any step that depended on beforeID now depends on s instead,
	// and s depends on beforeID, unless that would introduce a cycle.
	var rewired []string
	for id, step := range f.steps {
		if id == s.ID {
			continue
		}
		for i, dep := range step.Deps {
			if dep == beforeID {
				step.Deps[i] = s.ID
				rewired = append(rewired, id)
			}
		}
	}
	if !contains(s.Deps, beforeID) {
		s.Deps = append(s.Deps, beforeID)
	}
	if wouldCycle(f.steps) {
		// revert rewiring and the insertion entirely
		for _, id := range rewired {
			step := f.steps[id]
			for i, dep := range step.Deps {
				if dep == s.ID {
					step.Deps[i] = beforeID
				}
			}
		}
		delete(f.steps, s.ID)
		f.order = f.order[:len(f.order)-1]
		return koerrors.New(koerrors.KindCycleDetected, "insert_step: rewiring around "+beforeID+" would create a cycle")
	}
	f.topoBuilt = false
	return nil
}

// MarkRunning transitions a step to running. It panics-free asserts (via a
// returned dependency_unsatisfied error) that every declared dependency is
// completed first, per spec.md §4.2's invariant.
func (f *Flow) MarkRunning(id string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	for _, dep := range s.Deps {
		d, ok := f.steps[dep]
		if !ok || d.Status != models.StepCompleted {
			return koerrors.New(koerrors.KindDependencyUnsat, "step "+id+" depends on incomplete "+dep)
		}
	}
	s.Status = models.StepRunning
	now := time.Now()
	s.StartedAt = &now
	return nil
}

// MarkCompleted transitions a step to completed with the given output.
func (f *Flow) MarkCompleted(id string, output any) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepCompleted
	s.Output = output
	now := time.Now()
	s.CompletedAt = &now
	return nil
}

// MarkFailed transitions a step to failed with the given error.
func (f *Flow) MarkFailed(id string, kind koerrors.Kind, detail string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepFailed
	s.Error = &models.StepError{Kind: string(kind), Detail: detail}
	now := time.Now()
	s.CompletedAt = &now
	return nil
}

// MarkSkipped transitions a step to skipped, the reviewer's skip_next path.
func (f *Flow) MarkSkipped(id string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepSkipped
	now := time.Now()
	s.CompletedAt = &now
	return nil
}

// MarkBlocked transitions a waiting step to blocked, used when a dependency
// fails and the reviewer chooses to skip rather than retry (spec.md §3
// Step transition table).
func (f *Flow) MarkBlocked(id string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepBlocked
	return nil
}

// Retry resets a completed/failed step back to waiting with its retry
// counter strictly increased, per spec.md §8 invariant 3.
func (f *Flow) Retry(id string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepWaiting
	s.RetryCount++
	s.StartedAt = nil
	s.CompletedAt = nil
	return nil
}

// MarkWaiting transitions a pending step to waiting, the scheduler's signal
// that the step is now eligible for the ready_steps() computation.
func (f *Flow) MarkWaiting(id string) error {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	if !ok {
		return koerrors.New(koerrors.KindDependencyUnsat, "unknown step "+id)
	}
	s.Status = models.StepWaiting
	return nil
}

// ReadyIDs returns the ids of every step in status waiting whose
// dependencies are all completed, ordered by ordinal then insertion order
// (spec.md §4.2 ready_steps(), ties broken by ordinal per §4.2 last line).
func (f *Flow) ReadyIDs() []string {
	f.lock()
	defer f.unlock()
	var ready []string
	for _, id := range f.order {
		s := f.steps[id]
		if s.Status != models.StepWaiting {
			continue
		}
		if f.depsCompletedLocked(s) {
			ready = append(ready, id)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return f.steps[ready[i]].Ordinal < f.steps[ready[j]].Ordinal
	})
	return ready
}

func (f *Flow) depsCompletedLocked(s *models.Step) bool {
	for _, dep := range s.Deps {
		d, ok := f.steps[dep]
		if !ok || d.Status != models.StepCompleted {
			return false
		}
	}
	return true
}

// Snapshot returns a deep-enough immutable copy of every step, safe to
// serialize for the round-trip law in spec.md §8.
func (f *Flow) Snapshot() []*models.Step {
	f.lock()
	defer f.unlock()
	out := make([]*models.Step, 0, len(f.order))
	for _, id := range f.order {
		s := *f.steps[id]
		cp := s
		cp.Deps = append([]string(nil), s.Deps...)
		out = append(out, &cp)
	}
	return out
}

// Get returns a pointer to the live step (not a copy), for callers inside
// the scheduler/reviewer that need to read fields not worth copying.
func (f *Flow) Get(id string) (*models.Step, bool) {
	f.lock()
	defer f.unlock()
	s, ok := f.steps[id]
	return s, ok
}

// Progress computes the tally required by spec.md §8 invariant 6.
func (f *Flow) Progress() models.Progress {
	f.lock()
	defer f.unlock()
	p := models.Progress{}
	for _, id := range f.order {
		s := f.steps[id]
		p.Total++
		switch s.Status {
		case models.StepCompleted:
			p.Completed++
		case models.StepFailed:
			p.Failed++
		case models.StepSkipped:
			p.Skipped++
		case models.StepRunning:
			p.Running++
		default: // pending, waiting, blocked
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed+p.Failed+p.Skipped) / float64(p.Total)
	}
	return p
}

// TopoOrder returns the step ids in topological order, computed lazily on
// first call and cached until the next AddStep/InsertStep invalidates it
// (spec.md §4.2: "computed lazily on first read and re-computed after
// every insert_step via Kahn's algorithm; ties... broken by step ordinal").
func (f *Flow) TopoOrder() ([]string, error) {
	f.lock()
	defer f.unlock()
	if f.topoBuilt {
		return append([]string(nil), f.topo...), nil
	}
	order, err := kahn(f.steps)
	if err != nil {
		return nil, err
	}
	f.topo = order
	f.topoBuilt = true
	return append([]string(nil), order...), nil
}

// kahn computes a topological order over steps, breaking ties within a
// level by step ordinal, and erroring with cycle_detected if the graph
// (which AddStep/InsertStep should already prevent) is cyclic.
func kahn(steps map[string]*models.Step) ([]string, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for id, s := range steps {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, dep := range s.Deps {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sortByOrdinal(frontier, steps)

	var order []string
	for len(frontier) > 0 {
		sortByOrdinal(frontier, steps)
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}
	if len(order) != len(steps) {
		return nil, koerrors.New(koerrors.KindCycleDetected, "dependency graph contains a cycle")
	}
	return order, nil
}

func sortByOrdinal(ids []string, steps map[string]*models.Step) {
	sort.SliceStable(ids, func(i, j int) bool {
		return steps[ids[i]].Ordinal < steps[ids[j]].Ordinal
	})
}

// wouldCycle reports whether the current step set contains a cycle, by
// attempting a Kahn pass and checking every node was emitted.
func wouldCycle(steps map[string]*models.Step) bool {
	_, err := kahn(steps)
	return err != nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
