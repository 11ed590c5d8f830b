package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/metrics"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
	"github.com/timmy/recap/internal/storage"
)

// RunOutcome is the aggregate result of a finalized QA run.
type RunOutcome struct {
	Status       domain.QaRunStatus `json:"status"`
	PassedCount  int                `json:"passed_count"`
	FailedCount  int                `json:"failed_count"`
	SkippedCount int                `json:"skipped_count"`
	Notes        string             `json:"notes,omitempty"`
}

// Deps are the primitives the harness exercises. Pipeline is used to build
// both the regular orchestrator and one whose uploads always fail.
type Deps struct {
	Repos          *repository.Repositories
	Pipeline       service.OrchestratorDeps
	PipelineConfig service.OrchestratorConfig
	Gate           *service.QualityGate
	Delivery       *service.DeliveryService
	Router         *notify.Router
	Fixtures       *Fixtures
	Metrics        metrics.Sink
}

// Harness runs coded end-to-end checks against synthetic fixtures and
// records them as an immutable QA run.
type Harness struct {
	repos       *repository.Repositories
	store       storage.ObjectStorage
	pipeline    service.Executor
	degraded    service.Executor
	gate        *service.QualityGate
	delivery    *service.DeliveryService
	retry       *service.RetryCoordinator
	router      *notify.Router
	transcriber service.Transcriber
	fixtures    *Fixtures
	policy      config.QAConfig
	quality     config.QualityConfig
	metrics     metrics.Sink
	now         func() time.Time
}

// NewHarness creates a new harness.
func NewHarness(deps Deps, policy config.QAConfig, quality config.QualityConfig) *Harness {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopSink()
	}
	if deps.Fixtures == nil {
		deps.Fixtures = &Fixtures{Manifest: defaultManifest()}
	}
	if deps.Pipeline.Repos == nil {
		deps.Pipeline.Repos = deps.Repos
	}

	degradedDeps := deps.Pipeline
	degradedDeps.Storage = unavailableStorage{ObjectStorage: deps.Pipeline.Storage}
	pipeline := service.NewOrchestrator(deps.Pipeline, deps.PipelineConfig)

	return &Harness{
		repos:       deps.Repos,
		store:       deps.Pipeline.Storage,
		pipeline:    pipeline,
		degraded:    service.NewOrchestrator(degradedDeps, deps.PipelineConfig),
		gate:        deps.Gate,
		delivery:    deps.Delivery,
		retry:       service.NewRetryCoordinator(deps.Repos.Deliveries, pipeline, service.RetryPolicy{}),
		router:      deps.Router,
		transcriber: deps.Pipeline.Transcriber,
		fixtures:    deps.Fixtures,
		policy:      policy,
		quality:     quality,
		metrics:     deps.Metrics,
		now:         time.Now,
	}
}

// Start persists a new RUNNING run of the given kind.
func (h *Harness) Start(ctx context.Context, kind domain.QaRunKind) (*domain.QaRun, error) {
	if kind != domain.QaRunSmoke && kind != domain.QaRunFull {
		return nil, fmt.Errorf("unknown QA run kind %q", kind)
	}
	now := h.now()
	run := &domain.QaRun{
		RunID:     domain.NewQaRunID(kind, now),
		RunKind:   kind,
		Status:    domain.QaRunRunning,
		StartedAt: now,
	}
	if err := h.repos.QA.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create QA run: %w", err)
	}
	return run, nil
}

// Run starts a run, executes the suite for kind and finalizes it.
func (h *Harness) Run(ctx context.Context, kind domain.QaRunKind) (*domain.QaRun, []domain.QaCheck, error) {
	run, err := h.Start(ctx, kind)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.WithTrace(ctx, logger.Trace{QaRunID: run.RunID})
	logger.CtxInfo(ctx, "QA run started (kind=%s)", kind)

	var checks []domain.QaCheck
	if kind == domain.QaRunFull {
		checks = h.RunFull(ctx)
	} else {
		checks = h.RunSmoke(ctx)
	}

	if _, err := h.FinalizeRun(ctx, run.RunID, checks); err != nil {
		return nil, checks, err
	}
	final, err := h.repos.QA.GetRun(ctx, run.RunID)
	if err != nil {
		return nil, checks, err
	}
	h.metrics.QaRunFinished(string(kind), string(final.Status))
	logger.Metrics(logger.Fields{logger.FieldCount: len(checks)}).
		Took(final.FinishedAt.Sub(final.StartedAt)).
		Status(string(final.Status)).
		Info(ctx, "QA run finished: %s", final.Notes)
	return final, checks, nil
}

// RunSmoke executes the SMOKE checks in order.
func (h *Harness) RunSmoke(ctx context.Context) []domain.QaCheck {
	return h.execute(ctx, &suiteState{}, h.smokeChecks())
}

// RunFull executes the SMOKE checks and then the FULL-only checks, which
// reuse the meeting and artifact created during SMOKE.
func (h *Harness) RunFull(ctx context.Context) []domain.QaCheck {
	st := &suiteState{}
	checks := h.execute(ctx, st, h.smokeChecks())
	return append(checks, h.executeFrom(ctx, st, h.fullChecks(), len(checks))...)
}

func (h *Harness) execute(ctx context.Context, st *suiteState, suite []check) []domain.QaCheck {
	return h.executeFrom(ctx, st, suite, 0)
}

func (h *Harness) executeFrom(ctx context.Context, st *suiteState, suite []check, offset int) []domain.QaCheck {
	out := make([]domain.QaCheck, 0, len(suite))
	for i, chk := range suite {
		out = append(out, h.runCheck(ctx, st, chk, offset+i))
	}
	return out
}

func (h *Harness) runCheck(ctx context.Context, st *suiteState, chk check, position int) domain.QaCheck {
	ctx = logger.WithTrace(ctx, logger.Trace{CheckCode: chk.code})
	began := h.now()
	res := chk.run(ctx, st)
	duration := h.now().Sub(began)

	qc := domain.QaCheck{
		Code:       chk.code,
		Critical:   h.policy.IsCritical(chk.code),
		Status:     res.status,
		Evidence:   res.evidence,
		DurationMs: duration.Milliseconds(),
		Position:   position,
	}
	if res.err != nil {
		qc.ErrorDetail = res.err.Error()
	}
	h.metrics.QaCheckRecorded(chk.code, string(res.status))

	entry := logger.Metrics(nil).Took(duration).Status(string(res.status))
	if res.status == domain.QaCheckFailed {
		entry.Warn(ctx, "QA check failed: %s", qc.ErrorDetail)
	} else {
		entry.Info(ctx, "QA check finished")
	}
	return qc
}

// FinalizeRun aggregates the checks into the run status and persists both.
// A FAILED critical check fails the run; any other FAILED check makes it
// PARTIAL; SKIPPED checks carry no penalty.
func (h *Harness) FinalizeRun(ctx context.Context, runID string, checks []domain.QaCheck) (*RunOutcome, error) {
	run, err := h.repos.QA.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load QA run %s: %w", runID, err)
	}

	// criticality always comes from the policy, never from the caller
	stored := make([]domain.QaCheck, len(checks))
	for i, c := range checks {
		c.ID = uuid.NewString()
		c.RunID = runID
		c.Critical = h.policy.IsCritical(c.Code)
		stored[i] = c
	}

	outcome := Aggregate(stored)
	now := h.now()
	run.Status = outcome.Status
	run.PassedCount = outcome.PassedCount
	run.FailedCount = outcome.FailedCount
	run.SkippedCount = outcome.SkippedCount
	run.Notes = outcome.Notes
	run.FinishedAt = &now

	if err := h.repos.QA.Finalize(ctx, run, stored); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Aggregate applies the critical-check rule to a set of recorded checks.
// The Critical flag on each check decides escalation; FinalizeRun sets it
// from the QA policy before aggregating.
func Aggregate(checks []domain.QaCheck) *RunOutcome {
	out := &RunOutcome{Status: domain.QaRunSuccess}
	var critical, other []string
	for _, c := range checks {
		switch c.Status {
		case domain.QaCheckPassed:
			out.PassedCount++
		case domain.QaCheckSkipped:
			out.SkippedCount++
		case domain.QaCheckFailed:
			out.FailedCount++
			if c.Critical {
				critical = append(critical, c.Code)
			} else {
				other = append(other, c.Code)
			}
		}
	}

	switch {
	case len(critical) > 0:
		out.Status = domain.QaRunFailed
	case len(other) > 0:
		out.Status = domain.QaRunPartial
	}

	notes := []string{fmt.Sprintf("%d passed, %d failed, %d skipped", out.PassedCount, out.FailedCount, out.SkippedCount)}
	if len(critical) > 0 {
		notes = append(notes, "critical failures: "+strings.Join(critical, ", "))
	}
	if len(other) > 0 {
		notes = append(notes, "failures: "+strings.Join(other, ", "))
	}
	out.Notes = strings.Join(notes, "; ")
	return out
}

// evidence renders key facts as a JSON object with sorted keys.
func evidence(facts map[string]interface{}) string {
	raw, err := json.Marshal(facts)
	if err != nil {
		return fmt.Sprint(facts)
	}
	return string(raw)
}
