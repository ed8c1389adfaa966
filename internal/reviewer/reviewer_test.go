package reviewer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/gateway"
	"github.com/example/agent-orchestrator/internal/koerrors"
	"github.com/example/agent-orchestrator/internal/models"
)

type stubClient struct {
	content string
	err     error
	delay   time.Duration
}

func (c *stubClient) Complete(ctx context.Context, req gateway.CompleteRequest) (*gateway.CompleteResult, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &gateway.CompleteResult{Content: c.content}, nil
}

func testStep() *models.Step {
	return &models.Step{ID: "s1", Name: "write report", Description: "write it", Expected: "a report"}
}

func TestReviewParsesCleanJSON(t *testing.T) {
	client := &stubClient{content: `{"score": 0.9, "decision": "continue", "rationale": "looks good"}`}
	r := New(client, 0.7, 2, time.Second)
	report := r.Review(context.Background(), testStep(), "the report text", "plan summary")
	require.Equal(t, 0.9, report.Score)
	require.Equal(t, models.DecisionContinue, report.Decision)
}

func TestReviewRecoversFromCodeFencedJSON(t *testing.T) {
	client := &stubClient{content: "```json\n{\"score\": 0.4, \"decision\": \"retry\", \"rationale\": \"too short\"}\n```"}
	r := New(client, 0.7, 2, time.Second)
	report := r.Review(context.Background(), testStep(), "short", "plan summary")
	require.Equal(t, 0.4, report.Score)
	require.Equal(t, models.DecisionRetry, report.Decision)
}

func TestReviewRecoversFromSurroundingProse(t *testing.T) {
	client := &stubClient{content: "Sure, here is my assessment: {\"score\": 0.8, \"decision\": \"continue\", \"rationale\": \"fine\"} Let me know if you need more."}
	r := New(client, 0.7, 2, time.Second)
	report := r.Review(context.Background(), testStep(), "output", "summary")
	require.Equal(t, 0.8, report.Score)
}

func TestReviewUnparseableOutputDefaultsToContinue(t *testing.T) {
	client := &stubClient{content: "not json at all"}
	r := New(client, 0.7, 2, time.Second)
	report := r.Review(context.Background(), testStep(), "output", "summary")
	require.Equal(t, models.DecisionContinue, report.Decision)
}

func TestReviewTimeoutDefaultsToContinue(t *testing.T) {
	client := &stubClient{content: `{"score": 0.9, "decision": "continue"}`, delay: 50 * time.Millisecond}
	r := New(client, 0.7, 2, 10*time.Millisecond)
	report := r.Review(context.Background(), testStep(), "output", "summary")
	require.Equal(t, models.DecisionContinue, report.Decision)
}

func TestReviewTransportErrorDefaultsToContinue(t *testing.T) {
	client := &stubClient{err: koerrors.New(koerrors.KindModelTransport, "boom")}
	r := New(client, 0.7, 2, time.Second)
	report := r.Review(context.Background(), testStep(), "output", "summary")
	require.Equal(t, models.DecisionContinue, report.Decision)
}

func TestCoerceAcceptsHighScoreContinue(t *testing.T) {
	r := New(&stubClient{}, 0.7, 2, time.Second)
	report := &models.QualityReport{Score: 0.9, Decision: models.DecisionContinue}
	require.Equal(t, models.DecisionContinue, r.Coerce(report, 0, false))
}

func TestCoerceForcesRetryBelowThresholdWithBudgetRemaining(t *testing.T) {
	r := New(&stubClient{}, 0.7, 2, time.Second)
	report := &models.QualityReport{Score: 0.3, Decision: models.DecisionContinue}
	require.Equal(t, models.DecisionRetry, r.Coerce(report, 0, false))
}

func TestCoerceFallsBackToContinueWhenRetryBudgetExhaustedAndNotCritical(t *testing.T) {
	r := New(&stubClient{}, 0.7, 2, time.Second)
	report := &models.QualityReport{Score: 0.2, Decision: models.DecisionContinue}
	require.Equal(t, models.DecisionContinue, r.Coerce(report, 2, false))
}

func TestCoerceSkipsNextWhenRetryBudgetExhaustedAndCritical(t *testing.T) {
	r := New(&stubClient{}, 0.7, 2, time.Second)
	report := &models.QualityReport{Score: 0.2, Decision: models.DecisionContinue}
	require.Equal(t, models.DecisionSkipNext, r.Coerce(report, 2, true))
}

func TestCoercePassesThroughAddStep(t *testing.T) {
	r := New(&stubClient{}, 0.7, 2, time.Second)
	report := &models.QualityReport{Score: 0.9, Decision: models.DecisionAddStep}
	require.Equal(t, models.DecisionAddStep, r.Coerce(report, 0, false))
}

func TestApplyAddStepRejectsStepWithIncompleteDependency(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "base"}))

	applied, rejected := ApplyAddStep(f, []models.NewStepSpec{
		{Name: "compensate", Description: "fix it", Deps: []string{"base"}},
	})
	require.Empty(t, applied)
	require.Equal(t, []string{"compensate"}, rejected)
}

func TestApplyAddStepAcceptsStepWithCompletedDependency(t *testing.T) {
	f := flow.New()
	require.NoError(t, f.AddStep(&models.Step{ID: "base"}))
	require.NoError(t, f.MarkRunning("base"))
	require.NoError(t, f.MarkCompleted("base", "done"))

	applied, rejected := ApplyAddStep(f, []models.NewStepSpec{
		{Name: "compensate", Description: "fix it", Deps: []string{"base"}},
	})
	require.Len(t, applied, 1)
	require.Empty(t, rejected)
}
