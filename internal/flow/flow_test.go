package flow

import (
	"testing"

	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
	"github.com/stretchr/testify/require"
)

func step(id string, ordinal int, deps ...string) *models.Step {
	return &models.Step{ID: id, Ordinal: ordinal, Deps: deps, Status: models.StepWaiting}
}

func TestAddStepRejectsUnknownDependency(t *testing.T) {
	f := New()
	err := f.AddStep(step("b", 1, "a"))
	require.Error(t, err)
	kind, ok := koerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, koerrors.KindDependencyUnsat, kind)
}

func TestReadyStepsOnlyWaitingWithCompletedDeps(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("b", 1, "a")))

	require.Equal(t, []string{"a"}, f.ReadyIDs())

	require.NoError(t, f.MarkRunning("a"))
	require.NoError(t, f.MarkCompleted("a", "out"))

	require.Equal(t, []string{"b"}, f.ReadyIDs())
}

func TestMarkRunningRejectsIncompleteDependency(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("b", 1, "a")))

	err := f.MarkRunning("b")
	require.Error(t, err)
	kind, _ := koerrors.KindOf(err)
	require.Equal(t, koerrors.KindDependencyUnsat, kind)
}

func TestInsertStepRewiresDependants(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("c", 1, "a")))

	// insert b between a and c
	require.NoError(t, f.InsertStep(step("b", 2), "a"))

	c, ok := f.Get("c")
	require.True(t, ok)
	require.Contains(t, c.Deps, "b")
}

func TestWouldCycleDetectsCyclicGraph(t *testing.T) {
	a := step("a", 0, "c")
	b := step("b", 1, "a")
	c := step("c", 2, "b")
	require.True(t, wouldCycle(map[string]*models.Step{"a": a, "b": b, "c": c}))
}

func TestWouldCycleAcceptsAcyclicGraph(t *testing.T) {
	a := step("a", 0)
	b := step("b", 1, "a")
	c := step("c", 2, "b")
	require.False(t, wouldCycle(map[string]*models.Step{"a": a, "b": b, "c": c}))
}

func TestTopoOrderBreaksTiesByOrdinal(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("z", 2)))
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("m", 1)))

	order, err := f.TopoOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "m", "z"}, order)
}

func TestProgressCompleteness(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("b", 1, "a")))

	require.NoError(t, f.MarkRunning("a"))
	require.NoError(t, f.MarkCompleted("a", "x"))

	p := f.Progress()
	require.Equal(t, p.Total, p.Pending+p.Running+p.Completed+p.Failed+p.Skipped)
	require.Equal(t, 1, p.Completed)
	require.Equal(t, 1, p.Pending) // b is still "waiting", bucketed as pending
}

func TestRetryIncreasesCounterAndResetsToWaiting(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.MarkRunning("a"))
	require.NoError(t, f.MarkFailed("a", koerrors.KindTimeout, "boom"))

	require.NoError(t, f.Retry("a"))
	a, _ := f.Get("a")
	require.Equal(t, models.StepWaiting, a.Status)
	require.Equal(t, 1, a.RetryCount)
}

func TestDiamondDAGWaveWidths(t *testing.T) {
	f := New()
	require.NoError(t, f.AddStep(step("a", 0)))
	require.NoError(t, f.AddStep(step("b", 1, "a")))
	require.NoError(t, f.AddStep(step("c", 2, "a")))
	require.NoError(t, f.AddStep(step("d", 3, "b", "c")))

	require.Equal(t, []string{"a"}, f.ReadyIDs())
	require.NoError(t, f.MarkRunning("a"))
	require.NoError(t, f.MarkCompleted("a", nil))

	require.ElementsMatch(t, []string{"b", "c"}, f.ReadyIDs())
	require.NoError(t, f.MarkRunning("b"))
	require.NoError(t, f.MarkRunning("c"))
	require.NoError(t, f.MarkCompleted("b", nil))
	require.NoError(t, f.MarkCompleted("c", nil))

	require.Equal(t, []string{"d"}, f.ReadyIDs())
}
