package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
)

func byKind(eval *Evaluation) map[domain.CheckpointKind]*domain.Checkpoint {
	out := make(map[domain.CheckpointKind]*domain.Checkpoint, len(eval.Checkpoints))
	for _, cp := range eval.Checkpoints {
		out[cp.Kind] = cp
	}
	return out
}

func TestAssess_WeightedScoreAcrossChecks(t *testing.T) {
	f := newFixture(t)
	f.checker.matches = []LanguageMatch{{Message: "Possible typo", Replacements: []string{"agenda"}}}
	f.oracle.coherence = coherenceJSON("0.9")

	content := buildReport(600, []string{"Summary", "Decisions", "Action Items"}, "")
	eval := f.gate.Assess(context.Background(), content)
	cps := byKind(eval)
	require.Len(t, cps, 5)

	assert.InDelta(t, 0.9, cps[domain.CheckpointSpelling].Score, 1e-9)
	assert.Equal(t, domain.CheckpointPassed, cps[domain.CheckpointSpelling].Status)
	assert.Equal(t, "agenda", cps[domain.CheckpointSpelling].Issues[0].Suggestion)
	assert.InDelta(t, 1.0, cps[domain.CheckpointFormat].Score, 1e-9)
	assert.InDelta(t, 0.75, cps[domain.CheckpointCompleteness].Score, 1e-9)
	assert.InDelta(t, 0.9, cps[domain.CheckpointCoherence].Score, 1e-9)
	assert.InDelta(t, 0.8, cps[domain.CheckpointCompliance].Score, 1e-9)
	assert.Equal(t, domain.CheckpointReviewRequired, cps[domain.CheckpointCompliance].Status)

	assert.InDelta(t, 0.87, eval.Score, 1e-9)
	assert.Equal(t, domain.VerdictReadyToSend, eval.Verdict)
}

func TestAssess_PerfectReport(t *testing.T) {
	f := newFixture(t)
	eval := f.gate.Assess(context.Background(), perfectReport)
	assert.InDelta(t, 1.0, eval.Score, 1e-9)
	assert.Equal(t, domain.VerdictReadyToSend, eval.Verdict)
	for _, cp := range eval.Checkpoints {
		assert.Equal(t, domain.CheckpointPassed, cp.Status, cp.Kind)
		assert.Empty(t, cp.Issues, cp.Kind)
	}
}

func TestAssess_MissingTopicsNeedReview(t *testing.T) {
	f := newFixture(t)
	content := buildReport(600, []string{"Intro", "Body", "Wrap"}, signature)
	eval := f.gate.Assess(context.Background(), content)

	completeness := byKind(eval)[domain.CheckpointCompleteness]
	assert.Zero(t, completeness.Score)
	assert.Equal(t, domain.CheckpointReviewRequired, completeness.Status)
	assert.Len(t, completeness.Issues, 4)

	assert.InDelta(t, 0.8, eval.Score, 1e-9)
	assert.Equal(t, domain.VerdictReviewNeeded, eval.Verdict)
}

func TestAssess_CompletenessPenaltyPerMissingTerm(t *testing.T) {
	f := newFixture(t)
	terms := []string{"Summary", "Decisions", "Action Items", "Next Steps", "Risks"}
	content := buildReport(600, terms[:4], signature)

	tests := []struct {
		name    string
		penalty float64
		want    float64
	}{
		{name: "default penalty", want: 0.75},
		{name: "configured penalty", penalty: 0.1, want: 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := config.DefaultQualityConfig()
			policy.RequiredTerms = terms
			policy.CompletenessPenalty = tt.penalty
			gate := NewQualityGate(f.repos, f.checker, f.oracle, policy, nil)

			completeness := byKind(gate.Assess(context.Background(), content))[domain.CheckpointCompleteness]
			assert.InDelta(t, tt.want, completeness.Score, 1e-9)
			require.Len(t, completeness.Issues, 1)
			assert.Contains(t, completeness.Issues[0].Message, "Risks")
		})
	}
}

func TestAssess_CollaboratorErrorIsolated(t *testing.T) {
	f := newFixture(t)
	f.oracle.cohErr = errors.New("oracle unavailable")

	eval := f.gate.Assess(context.Background(), perfectReport)
	cps := byKind(eval)

	coherence := cps[domain.CheckpointCoherence]
	assert.Zero(t, coherence.Score)
	assert.Equal(t, domain.CheckpointFailed, coherence.Status)
	require.Len(t, coherence.Issues, 1)
	assert.Equal(t, "check_error", coherence.Issues[0].Kind)
	assert.Equal(t, domain.SeverityHigh, coherence.Issues[0].Severity)
	assert.Contains(t, coherence.Issues[0].Message, "oracle unavailable")

	assert.InDelta(t, 1.0, cps[domain.CheckpointSpelling].Score, 1e-9)
	assert.InDelta(t, 0.8, eval.Score, 1e-9)
	assert.Equal(t, domain.VerdictReviewNeeded, eval.Verdict)
}

func TestAssess_InvalidCoherenceJSON(t *testing.T) {
	f := newFixture(t)
	f.oracle.coherence = "not json"
	cp := byKind(f.gate.Assess(context.Background(), perfectReport))[domain.CheckpointCoherence]
	assert.Equal(t, domain.CheckpointFailed, cp.Status)
	assert.Equal(t, "check_error", cp.Issues[0].Kind)
}

func TestAssess_SpellingAboveLimitFails(t *testing.T) {
	f := newFixture(t)
	f.checker.matches = make([]LanguageMatch, 4)
	cp := byKind(f.gate.Assess(context.Background(), perfectReport))[domain.CheckpointSpelling]
	assert.InDelta(t, 0.6, cp.Score, 1e-9)
	assert.Equal(t, domain.CheckpointFailed, cp.Status)
	assert.Len(t, cp.Issues, 4)
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		score   float64
		status  domain.CheckpointStatus
		issues  int
	}{
		{"well formed", perfectReport, 1, domain.CheckpointPassed, 0},
		{"too few sections", buildReport(600, []string{"Summary"}, ""), 0.85, domain.CheckpointReviewRequired, 1},
		{"too short", buildReport(100, allTerms, ""), 0.85, domain.CheckpointFailed, 1},
		{"short and flat", buildReport(50, nil, ""), 0.7, domain.CheckpointFailed, 2},
		{"too long", buildReport(5200, allTerms, ""), 0.85, domain.CheckpointReviewRequired, 1},
	}

	g := newFixture(t).gate
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.checkFormat(context.Background(), tt.content)
			require.NoError(t, err)
			assert.InDelta(t, tt.score, res.score, 1e-9)
			assert.Equal(t, tt.status, res.status)
			assert.Len(t, res.issues, tt.issues)
		})
	}
}

func TestCountSections(t *testing.T) {
	assert.Equal(t, 3, CountSections("# A\ntext\n## B\n###### C\n#nospace\n####### seven"))
	assert.Zero(t, CountSections("no headings here"))
}

func TestVerdictFor(t *testing.T) {
	g := newFixture(t).gate
	tests := []struct {
		score float64
		want  domain.Verdict
	}{
		{1.0, domain.VerdictReadyToSend},
		{0.86, domain.VerdictReadyToSend},
		{0.85, domain.VerdictReviewNeeded},
		{0.71, domain.VerdictReviewNeeded},
		{0.70, domain.VerdictFailed},
		{0, domain.VerdictFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.VerdictFor(tt.score), "score %v", tt.score)
	}
}

func TestAggregate_Weights(t *testing.T) {
	f := newFixture(t)
	policy := config.DefaultQualityConfig()
	policy.Weights = map[string]float64{"coherence": 3, "compliance": 0}
	g := NewQualityGate(f.repos, f.checker, f.oracle, policy, nil)

	cps := []*domain.Checkpoint{
		{Kind: domain.CheckpointCoherence, Score: 0.5},
		{Kind: domain.CheckpointSpelling, Score: 1},
		{Kind: domain.CheckpointCompliance, Score: 0},
	}
	// (3*0.5 + 1*1 + 0*0) / 4
	assert.InDelta(t, 0.625, g.Aggregate(cps), 1e-9)
	assert.Zero(t, g.Aggregate(nil))
}

func TestEvaluate_PersistsCheckpoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.meeting(t, "m-1", "log:alice")
	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)

	eval, err := f.gate.Evaluate(ctx, res.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictReadyToSend, eval.Verdict)

	stored, err := f.repos.Checkpoints.ListByArtifact(ctx, res.ArtifactID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	artifact, err := f.repos.Deliveries.GetByID(ctx, res.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, artifact.QualityScore)
	assert.InDelta(t, eval.Score, *artifact.QualityScore, 1e-9)
	assert.Equal(t, domain.VerdictReadyToSend, artifact.QualityVerdict)
	assert.Len(t, artifact.CheckpointIDs, 5)
	assert.Equal(t, domain.EventEvaluated, artifact.History[len(artifact.History)-1].Event)
	assert.Equal(t, domain.DeliveryStatusReviewPending, artifact.Status, "evaluation does not move the lifecycle")
}

func TestEvaluate_UnknownArtifact(t *testing.T) {
	_, err := newFixture(t).gate.Evaluate(context.Background(), "missing")
	assert.Error(t, err)
}
