package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/models"
)

func completedStep(id, name, role string, output string, completedAt time.Time) *models.Step {
	ts := completedAt
	return &models.Step{
		ID: id, Name: name, Role: role, Status: models.StepCompleted,
		Output: output, CompletedAt: &ts,
	}
}

func newFlowWithSteps(steps ...*models.Step) *flow.Flow {
	f := flow.New()
	for _, s := range steps {
		if err := f.AddStep(s); err != nil {
			panic(err)
		}
	}
	return f
}

func TestAggregateMergesTextRolesWithHeadings(t *testing.T) {
	base := time.Now()
	f := newFlowWithSteps(
		completedStep("s1", "gather facts", "researcher", "the sky is blue", base),
		completedStep("s2", "write report", "writer", "a report about the sky", base.Add(time.Second)),
	)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputReport}, "task1")
	require.Equal(t, models.OutputReport, art.Type)
	require.Contains(t, art.Text, "## gather facts")
	require.Contains(t, art.Text, "the sky is blue")
	require.Contains(t, art.Text, "## write report")
	require.Contains(t, art.Text, "a report about the sky")
}

func TestAggregateInfersCodeTypeFromMajorityCoderRole(t *testing.T) {
	base := time.Now()
	f := newFlowWithSteps(
		completedStep("s1", "main.go", "coder", "package main", base),
		completedStep("s2", "util.go", "coder", "package util\nfunc helper() {}", base.Add(time.Second)),
	)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputAuto}, "task1")
	require.Equal(t, models.OutputCode, art.Type)
	require.Len(t, art.Files, 2)
}

func TestAggregateBinaryRolesCollectURIs(t *testing.T) {
	base := time.Now()
	f := newFlowWithSteps(
		completedStep("s1", "render", "text_to_image", "https://example.com/image1.png", base),
	)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputImage}, "task1")
	require.Equal(t, models.OutputImage, art.Type)
	require.Equal(t, []string{"https://example.com/image1.png"}, art.URIs)
}

func TestAggregateOnlyConsidersTerminalSteps(t *testing.T) {
	base := time.Now()
	s1 := completedStep("s1", "gather", "researcher", "raw notes", base)
	s2 := completedStep("s2", "write", "writer", "final report", base.Add(time.Second))
	s2.Deps = []string{"s1"}
	f := newFlowWithSteps(s1, s2)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputReport}, "task1")
	require.NotContains(t, art.Text, "raw notes")
	require.Contains(t, art.Text, "final report")
}

func TestAggregateResolvesConflictInFavorOfLaterStep(t *testing.T) {
	base := time.Now()
	overlapping := "the quarterly revenue grew by twelve percent this year compared to last year overall"
	f := newFlowWithSteps(
		completedStep("s1", "draft one", "writer", overlapping, base),
		completedStep("s2", "draft two", "writer", overlapping, base.Add(time.Second)),
	)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputReport}, "task1")
	require.NotContains(t, art.Text, "## draft one")
	require.Contains(t, art.Text, "## draft two")
}

func TestAggregateCompositeBundlesPerSubtypeArtifacts(t *testing.T) {
	base := time.Now()
	f := newFlowWithSteps(
		completedStep("s1", "write report", "writer", "a written report", base),
		completedStep("s2", "render image", "text_to_image", "https://example.com/img.png", base.Add(time.Second)),
	)
	a := New(nil)
	art := a.Aggregate(f, &models.Task{OutputType: models.OutputComposite}, "task1")
	require.Equal(t, models.OutputComposite, art.Type)
	require.Contains(t, art.Parts, "text")
	require.Contains(t, art.Parts, "binary")
	require.Contains(t, art.Parts["text"].Text, "a written report")
	require.Equal(t, []string{"https://example.com/img.png"}, art.Parts["binary"].URIs)
}
