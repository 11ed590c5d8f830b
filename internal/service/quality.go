package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/metrics"
	"github.com/timmy/recap/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Evaluation is the quality gate's verdict on one artifact.
type Evaluation struct {
	ArtifactID  string               `json:"artifact_id"`
	Verdict     domain.Verdict       `json:"verdict"`
	Score       float64              `json:"score"`
	Checkpoints []*domain.Checkpoint `json:"checkpoints"`
}

// QualityGate scores generated reports and decides whether they may be sent.
type QualityGate struct {
	deliveries  *repository.DeliveryRepository
	checkpoints *repository.CheckpointRepository
	checker     LanguageChecker
	oracle      Oracle
	policy      config.QualityConfig
	metrics     metrics.Sink
	now         func() time.Time
}

// NewQualityGate creates a new quality gate.
// Parameters:
//   - repos: repository set.
//   - checker: spelling and grammar checker.
//   - oracle: model used for the coherence check.
//   - policy: thresholds, weights and required terms.
//   - sink: metrics sink; nil uses a no-op sink.
//
// Returns:
//   - *QualityGate: initialized gate.
func NewQualityGate(
	repos *repository.Repositories,
	checker LanguageChecker,
	oracle Oracle,
	policy config.QualityConfig,
	sink metrics.Sink,
) *QualityGate {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &QualityGate{
		deliveries:  repos.Deliveries,
		checkpoints: repos.Checkpoints,
		checker:     checker,
		oracle:      oracle,
		policy:      policy,
		metrics:     sink,
		now:         time.Now,
	}
}

// Evaluate scores the artifact, persists one checkpoint per check and
// writes the score and verdict back onto the artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: artifact to score.
//
// Returns:
//   - *Evaluation: score, verdict and persisted checkpoints.
//   - error: load or persistence error.
func (g *QualityGate) Evaluate(ctx context.Context, artifactID string) (*Evaluation, error) {
	artifact, err := g.deliveries.GetByID(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
	}
	ctx = logger.WithTrace(ctx, logger.Trace{ArtifactID: artifactID})

	eval := g.Assess(ctx, artifact.Content)
	eval.ArtifactID = artifact.ID
	ids := make([]string, 0, len(eval.Checkpoints))
	for _, cp := range eval.Checkpoints {
		cp.ID = uuid.NewString()
		cp.ArtifactID = artifact.ID
		ids = append(ids, cp.ID)
	}
	if err := g.checkpoints.CreateBatch(ctx, eval.Checkpoints); err != nil {
		return nil, fmt.Errorf("save checkpoints: %w", err)
	}

	score := eval.Score
	artifact.QualityScore = &score
	artifact.QualityVerdict = eval.Verdict
	artifact.CheckpointIDs = ids
	artifact.Append(domain.HistoryEntry{
		At:     g.now(),
		Event:  domain.EventEvaluated,
		Detail: fmt.Sprintf("%s %.2f", eval.Verdict, eval.Score),
	})
	if err := g.deliveries.Update(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	g.metrics.EvaluationCompleted(string(eval.Verdict), eval.Score)
	logger.Metrics(logger.Fields{logger.FieldScore: eval.Score}).
		Status(string(eval.Verdict)).
		Info(ctx, "Quality gate evaluated artifact")
	return eval, nil
}

// Assess runs every check against content concurrently without persisting.
// A check whose collaborator fails scores 0 with status failed; the other
// checks are unaffected.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - content: report text.
//
// Returns:
//   - *Evaluation: unsaved evaluation.
func (g *QualityGate) Assess(ctx context.Context, content string) *Evaluation {
	checks := g.checks()
	results := make([]*domain.Checkpoint, len(checks))

	var eg errgroup.Group
	for i, chk := range checks {
		i, chk := i, chk
		eg.Go(func() error {
			results[i] = runCheck(ctx, chk, content)
			return nil
		})
	}
	_ = eg.Wait()

	for _, cp := range results {
		g.metrics.CheckpointScored(string(cp.Kind), string(cp.Status))
	}
	score := g.Aggregate(results)
	return &Evaluation{
		Verdict:     g.VerdictFor(score),
		Score:       score,
		Checkpoints: results,
	}
}

// Aggregate is the weighted mean of checkpoint scores.
// Parameters:
//   - checkpoints: scored checkpoints.
//
// Returns:
//   - float64: weighted mean score in [0,1].
func (g *QualityGate) Aggregate(checkpoints []*domain.Checkpoint) float64 {
	var sum, weights float64
	for _, cp := range checkpoints {
		w := g.policy.Weight(string(cp.Kind))
		sum += w * cp.Score
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// VerdictFor maps a score onto the three readiness tiers. Both thresholds
// are exclusive.
// Parameters:
//   - score: aggregated score.
//
// Returns:
//   - domain.Verdict: verdict for the score.
func (g *QualityGate) VerdictFor(score float64) domain.Verdict {
	switch {
	case score > g.policy.ReadyThreshold:
		return domain.VerdictReadyToSend
	case score > g.policy.ReviewThreshold:
		return domain.VerdictReviewNeeded
	default:
		return domain.VerdictFailed
	}
}
