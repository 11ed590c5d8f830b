package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/storage"
)

func TestExecute_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.meeting(t, "m-1", "log:alice", "log:bob")

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{Trigger: domain.TriggerAPI})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.RunStatusSuccess, res.Status)

	run, err := f.repos.Runs.GetByID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, StepOrder, run.Steps.Names())
	for name, status := range run.Progress() {
		assert.Equal(t, domain.StepStatusSuccess, status, name)
	}
	assert.Equal(t, res.ArtifactID, run.ArtifactID)

	artifact, err := f.repos.Deliveries.GetByID(ctx, res.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusReviewPending, artifact.Status)
	assert.Equal(t, 1, artifact.Version)
	assert.Equal(t, ReportKey("m-1", artifact.ID, 1), artifact.StorageKey)
	assert.Equal(t, "https://cdn.test/"+artifact.StorageKey, artifact.ExternalURL)

	stored, err := storage.ReadAll(ctx, f.store, artifact.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, perfectReport, string(stored))

	meeting, err := f.repos.Meetings.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusReady, meeting.ReportStatus)

	msgs := f.inbox.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, artifact.ExternalURL)

	require.NotEmpty(t, f.oracle.prompts)
	assert.Contains(t, f.oracle.prompts[0], "Speaker 1: we ship on friday")
}

func TestExecute_UploadFailureDoesNotEscalate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store = brokenStorage{}
	f.rebuild(OrchestratorConfig{SignatureMarker: signature})
	f.meeting(t, "m-1", "log:alice")

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, res.Status)

	progress := res.Run.Progress()
	assert.Equal(t, domain.StepStatusFailed, progress[StepUpload])
	assert.Equal(t, domain.StepStatusSuccess, progress[StepNotify])
	assert.Equal(t, domain.StepStatusSuccess, progress[StepFinalize])
	assert.Contains(t, res.Run.Summary, "without external link")

	upload, _ := res.Run.Steps.Get(StepUpload)
	require.NotNil(t, upload.Error)
	assert.Contains(t, *upload.Error, "bucket unavailable")

	msgs := f.inbox.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "No external link")
}

func TestExecute_BlockingFailureStopsPipeline(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture) string
		failedStep string
		meetingSt  domain.ReportStatus
	}{
		{
			name:       "load: missing meeting",
			setup:      func(t *testing.T, f *fixture) string { return "nope" },
			failedStep: StepLoad,
		},
		{
			name: "normalize: empty transcript",
			setup: func(t *testing.T, f *fixture) string {
				m := f.meeting(t, "m-empty", "log:alice")
				m.Transcript = "  \n\t\n"
				require.NoError(t, f.repos.Meetings.Update(context.Background(), m))
				return m.ID
			},
			failedStep: StepNormalize,
			meetingSt:  domain.ReportStatusFailed,
		},
		{
			name: "generate: oracle error",
			setup: func(t *testing.T, f *fixture) string {
				f.oracle.reportErr = errors.New("rate limited")
				return f.meeting(t, "m-gen", "log:alice").ID
			},
			failedStep: StepGenerate,
			meetingSt:  domain.ReportStatusFailed,
		},
		{
			name: "notify: every recipient invalid",
			setup: func(t *testing.T, f *fixture) string {
				return f.meeting(t, "m-notify", "nobody", "also-nobody").ID
			},
			failedStep: StepNotify,
			meetingSt:  domain.ReportStatusFailed,
		},
		{
			name: "notify: no recipients",
			setup: func(t *testing.T, f *fixture) string {
				return f.meeting(t, "m-alone").ID
			},
			failedStep: StepNotify,
			meetingSt:  domain.ReportStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			subject := tt.setup(t, f)

			res, err := f.orch.Execute(ctx, subject, ExecuteOptions{})
			require.Error(t, err)
			require.NotNil(t, res)
			assert.False(t, res.Success)

			run, gerr := f.repos.Runs.GetByID(ctx, res.RunID)
			require.NoError(t, gerr)
			assert.Equal(t, domain.RunStatusFailed, run.Status)
			require.NotNil(t, run.Error)

			names := run.Steps.Names()
			assert.Equal(t, tt.failedStep, names[len(names)-1], "no step after the failed one")
			last, _ := run.Steps.Get(tt.failedStep)
			assert.Equal(t, domain.StepStatusFailed, last.Status)
			for _, name := range names[:len(names)-1] {
				s, _ := run.Steps.Get(name)
				assert.Equal(t, domain.StepStatusSuccess, s.Status, name)
			}

			if tt.meetingSt != "" {
				m, merr := f.repos.Meetings.GetByID(ctx, subject)
				require.NoError(t, merr)
				assert.Equal(t, tt.meetingSt, m.ReportStatus)
			}
			if run.ArtifactID != "" {
				a, aerr := f.repos.Deliveries.GetByID(ctx, run.ArtifactID)
				require.NoError(t, aerr)
				assert.Equal(t, domain.DeliveryStatusFailed, a.Status)
				assert.NotNil(t, a.Error)
			}
		})
	}
}

func TestExecute_PartialWhenSomeRecipientsFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.meeting(t, "m-1", "log:alice", "not-a-recipient", "log:bob")

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.RunStatusPartial, res.Status)
	assert.Len(t, f.inbox.Messages(), 2)

	notifyStep, _ := res.Run.Steps.Get(StepNotify)
	assert.Contains(t, notifyStep.OutputSummary, "delivered 2/3")
}

func TestExecute_SubjectBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.meeting(t, "m-1", "log:alice")

	release, err := f.locker.TryLock(ctx, "m-1")
	require.NoError(t, err)

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	assert.ErrorIs(t, err, ErrSubjectBusy)
	assert.Nil(t, res)

	runs, err := f.repos.Runs.ListBySubject(ctx, "m-1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "a rejected run leaves no record")

	release()
	_, err = f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	assert.NoError(t, err)
}

func TestExecute_ReprocessingCreatesNewVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.meeting(t, "m-1", "log:alice")

	first, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	f.oracle.report = perfectReport + "\n\nAddendum."
	second, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	require.NotEqual(t, first.ArtifactID, second.ArtifactID)

	versions, err := f.repos.Deliveries.ListBySubject(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)
	assert.Equal(t, perfectReport, versions[1].Content, "older version is untouched")
}

func TestExecute_TranscribesAudioOnlyMeetings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	transcriber := &replayTranscriber{text: "Alice : budget approved"}
	f.orch.transcriber = transcriber

	_, err := storage.Store(ctx, f.store, "audio/m-1.mp3", []byte("ID3..."), "audio/mpeg")
	require.NoError(t, err)
	m := &domain.Meeting{ID: "m-1", Title: "Budget", AudioKey: "audio/m-1.mp3", AudioFormat: "mp3", Participants: domain.StringArray{"log:alice"}}
	require.NoError(t, f.repos.Meetings.Create(ctx, m))

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mp3", transcriber.format)

	normalize, _ := res.Run.Steps.Get(StepNormalize)
	assert.Contains(t, normalize.OutputSummary, "from audio")

	saved, err := f.repos.Meetings.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice: budget approved", saved.Transcript)
}

func TestExecute_StepTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.block = true
	f.rebuild(OrchestratorConfig{StepTimeout: 50 * time.Millisecond})
	f.meeting(t, "m-1", "log:alice")

	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	gen, ok := res.Run.Steps.Get(StepGenerate)
	require.True(t, ok)
	assert.Equal(t, domain.StepStatusFailed, gen.Status)
}

func TestNormalizeTranscript(t *testing.T) {
	raw := "[00:01] SPEAKER_01: hello   there\r\n\r\n  spk 2 :  hi\n12:30:01 Alice : ok\nSPEAKER_03:\n"
	assert.Equal(t, "Speaker 1: hello there\nSpeaker 2: hi\nAlice: ok", NormalizeTranscript(raw))
	assert.Equal(t, "", NormalizeTranscript(" \n\t "))
}
