package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(db)
}

func TestMeetingRepository_CreateAndStatus(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	m := &domain.Meeting{ID: "m-1", Title: "Weekly sync", Participants: domain.StringArray{"a@example.com"}}
	require.NoError(t, repos.Meetings.Create(ctx, m))

	got, err := repos.Meetings.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusNone, got.ReportStatus)
	assert.Equal(t, domain.StringArray{"a@example.com"}, got.Participants)

	require.NoError(t, repos.Meetings.SetReportStatus(ctx, "m-1", domain.ReportStatusReady))
	got, err = repos.Meetings.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusReady, got.ReportStatus)

	err = repos.Meetings.SetReportStatus(ctx, "missing", domain.ReportStatusReady)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repos.Meetings.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunRepository_StepsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	now := time.Now()

	run := domain.NewPipelineRun("r-1", "m-1", domain.RunKindDelivery, domain.TriggerManual, 1)
	require.NoError(t, repos.Runs.Create(ctx, run))
	require.NoError(t, run.StartStep("LOAD", now))
	require.NoError(t, run.CompleteStep("LOAD", "loaded", now))
	require.NoError(t, run.StartStep("NORMALIZE", now))
	require.NoError(t, repos.Runs.Save(ctx, run))

	got, err := repos.Runs.GetByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"LOAD", "NORMALIZE"}, got.Steps.Names())
	assert.Equal(t, domain.StepStatusRunning, got.Progress()["NORMALIZE"])
	assert.Equal(t, domain.RunStatusRunning, got.Status)
}

func TestFindBy_OrdersNewestFirstAndLimits(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		run := domain.NewPipelineRun(uuid.NewString(), "m-1", domain.RunKindDelivery, domain.TriggerAPI, i+1)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repos.Runs.Create(ctx, run))
	}
	other := domain.NewPipelineRun(uuid.NewString(), "m-2", domain.RunKindDelivery, domain.TriggerAPI, 1)
	require.NoError(t, repos.Runs.Create(ctx, other))

	runs, err := repos.Runs.FindBy(ctx, "subject_id", "m-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].Attempt)
	assert.Equal(t, 2, runs[1].Attempt)

	_, err = repos.Runs.FindBy(ctx, "subject_id; DROP TABLE pipeline_runs", "x", 1)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestDeliveryRepository_Versions(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	latest, err := repos.Deliveries.LatestVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	for v := 1; v <= 2; v++ {
		require.NoError(t, repos.Deliveries.Create(ctx, &domain.DeliveryArtifact{
			ID:         uuid.NewString(),
			SubjectRef: "m-1",
			Version:    v,
			Status:     domain.DeliveryStatusRunning,
		}))
	}

	latest, err = repos.Deliveries.LatestVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	dup := &domain.DeliveryArtifact{ID: uuid.NewString(), SubjectRef: "m-1", Version: 2}
	assert.Error(t, repos.Deliveries.Create(ctx, dup), "subject and version are unique together")

	all, err := repos.Deliveries.ListBySubject(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)
}

func TestDeliveryRepository_HistoryPersists(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	a := &domain.DeliveryArtifact{ID: "a-1", SubjectRef: "m-1", Version: 1}
	a.Append(domain.HistoryEntry{Event: domain.EventCreated, Attempt: 1})
	require.NoError(t, repos.Deliveries.Create(ctx, a))

	a.Append(domain.HistoryEntry{Event: domain.EventRetry, Attempt: 2})
	a.SetError(errors.New("boom"))
	require.NoError(t, repos.Deliveries.Update(ctx, a))

	got, err := repos.Deliveries.GetByID(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, domain.EventRetry, got.History[1].Event)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
}

func TestDeliveryRepository_SetStatusKeepsHistory(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	a := &domain.DeliveryArtifact{ID: "a-1", SubjectRef: "m-1", Version: 1, Status: domain.DeliveryStatusRunning}
	a.Append(domain.HistoryEntry{Event: domain.EventCreated, Attempt: 1})
	require.NoError(t, repos.Deliveries.Create(ctx, a))

	// another writer appends after a has been loaded
	other, err := repos.Deliveries.GetByID(ctx, "a-1")
	require.NoError(t, err)
	other.Append(domain.HistoryEntry{Event: domain.EventRetry, Attempt: 2})
	require.NoError(t, repos.Deliveries.Update(ctx, other))

	require.NoError(t, repos.Deliveries.SetStatus(ctx, "a-1", domain.DeliveryStatusReviewPending))

	got, err := repos.Deliveries.GetByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusReviewPending, got.Status)
	assert.Len(t, got.History, 2)

	err = repos.Deliveries.SetStatus(ctx, "missing", domain.DeliveryStatusFailed)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCheckpointRepository_Batch(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	batch := []*domain.Checkpoint{
		{ID: "c-1", ArtifactID: "a-1", Kind: domain.CheckpointSpelling, Status: domain.CheckpointPassed, Score: 1},
		{ID: "c-2", ArtifactID: "a-1", Kind: domain.CheckpointFormat, Status: domain.CheckpointFailed, Score: 0.4,
			Issues: domain.IssueList{{Kind: "word_count", Severity: domain.SeverityHigh, Message: "too short"}}},
	}
	require.NoError(t, repos.Checkpoints.CreateBatch(ctx, batch))

	got, err := repos.Checkpoints.ListByArtifact(ctx, "a-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	byID, err := repos.Checkpoints.GetByIDs(ctx, []string{"c-2"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, domain.SeverityHigh, byID[0].Issues[0].Severity)
}

func TestQaRepository_FinalizeOnce(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	started := time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)

	run := &domain.QaRun{RunID: domain.NewQaRunID(domain.QaRunSmoke, started), RunKind: domain.QaRunSmoke, StartedAt: started}
	require.NoError(t, repos.QA.CreateRun(ctx, run))

	finished := started.Add(time.Minute)
	run.Status = domain.QaRunPartial
	run.PassedCount, run.FailedCount = 8, 1
	run.FinishedAt = &finished
	checks := []domain.QaCheck{
		{ID: uuid.NewString(), RunID: run.RunID, Code: "CONF-001", Critical: true, Status: domain.QaCheckPassed, Position: 0},
		{ID: uuid.NewString(), RunID: run.RunID, Code: "FILE-001", Status: domain.QaCheckFailed, Position: 1},
	}
	require.NoError(t, repos.QA.Finalize(ctx, run, checks))

	run.Status = domain.QaRunSuccess
	err := repos.QA.Finalize(ctx, run, nil)
	assert.ErrorIs(t, err, ErrRunFinalized)

	stored, err := repos.QA.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.QaRunPartial, stored.Status)
	assert.Equal(t, 8, stored.PassedCount)

	storedChecks, err := repos.QA.ListChecks(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, storedChecks, 2)
	assert.Equal(t, "CONF-001", storedChecks[0].Code)

	missing := &domain.QaRun{RunID: "QA-SMOKE-missing", Status: domain.QaRunSuccess}
	assert.ErrorIs(t, repos.QA.Finalize(ctx, missing, nil), gorm.ErrRecordNotFound)
}
