package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/lock"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/metrics"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/prompts"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/storage"
)

// Pipeline step names, in execution order.
const (
	StepLoad      = "LOAD"
	StepNormalize = "NORMALIZE"
	StepGenerate  = "GENERATE"
	StepUpload    = "UPLOAD"
	StepNotify    = "NOTIFY"
	StepFinalize  = "FINALIZE"
)

// StepOrder lists every step in the order a run records them.
var StepOrder = []string{StepLoad, StepNormalize, StepGenerate, StepUpload, StepNotify, StepFinalize}

// ReportContentType is the MIME type of uploaded reports.
const ReportContentType = "text/markdown; charset=utf-8"

// ExecuteOptions tunes a single orchestration.
type ExecuteOptions struct {
	Trigger domain.Trigger
	Attempt int
	// ArtifactID regenerates an existing artifact in place instead of
	// creating a new version. Set by retries.
	ArtifactID string
	// SubjectLocked is set by callers that already hold the subject lock
	// through LockSubject.
	SubjectLocked bool
}

// ExecuteResult reports the outcome of Execute. On failure Run still holds
// the persisted, partially populated record.
type ExecuteResult struct {
	Success    bool                `json:"success"`
	Status     domain.RunStatus    `json:"status"`
	RunID      string              `json:"run_id"`
	ArtifactID string              `json:"artifact_id,omitempty"`
	Duration   time.Duration       `json:"duration"`
	Run        *domain.PipelineRun `json:"run"`
}

// Executor runs the delivery pipeline for one meeting.
type Executor interface {
	Execute(ctx context.Context, meetingID string, opts ExecuteOptions) (*ExecuteResult, error)
}

// OrchestratorConfig holds pipeline settings.
type OrchestratorConfig struct {
	StepTimeout     time.Duration
	TemplateRef     string
	SignatureMarker string
}

// OrchestratorDeps are the collaborators of the orchestrator. Storage and
// Transcriber may be nil: UPLOAD then fails softly and audio-only meetings
// fail NORMALIZE.
type OrchestratorDeps struct {
	Repos       *repository.Repositories
	Storage     storage.ObjectStorage
	Oracle      Oracle
	Transcriber Transcriber
	Notifier    notify.Sender
	Locker      lock.Locker
	Metrics     metrics.Sink
}

// Orchestrator drives LOAD, NORMALIZE, GENERATE, UPLOAD, NOTIFY and FINALIZE
// for one meeting, persisting the run record after every step.
type Orchestrator struct {
	meetings    *repository.MeetingRepository
	runs        *repository.RunRepository
	deliveries  *repository.DeliveryRepository
	storage     storage.ObjectStorage
	oracle      Oracle
	transcriber Transcriber
	notifier    notify.Sender
	locker      lock.Locker
	metrics     metrics.Sink
	cfg         OrchestratorConfig
	now         func() time.Time
}

// NewOrchestrator creates a new orchestrator.
// Parameters:
//   - deps: repositories and collaborators; nil metrics use a no-op sink.
//   - cfg: step timeout and report settings.
//
// Returns:
//   - *Orchestrator: initialized orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopSink()
	}
	if cfg.TemplateRef == "" {
		cfg.TemplateRef = "meeting-report/v1"
	}
	return &Orchestrator{
		meetings:    deps.Repos.Meetings,
		runs:        deps.Repos.Runs,
		deliveries:  deps.Repos.Deliveries,
		storage:     deps.Storage,
		oracle:      deps.Oracle,
		transcriber: deps.Transcriber,
		notifier:    deps.Notifier,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		cfg:         cfg,
		now:         time.Now,
	}
}

// runState carries data between the steps of one run.
type runState struct {
	run        *domain.PipelineRun
	opts       ExecuteOptions
	meeting    *domain.Meeting
	transcript string
	artifact   *domain.DeliveryArtifact
	notified   *notify.FanOutResult
	degraded   []string
}

type pipelineStep struct {
	name     string
	blocking bool
	run      func(ctx context.Context, st *runState) (string, error)
}

func (o *Orchestrator) steps() []pipelineStep {
	return []pipelineStep{
		{StepLoad, true, o.load},
		{StepNormalize, true, o.normalize},
		{StepGenerate, true, o.generate},
		{StepUpload, false, o.upload},
		{StepNotify, true, o.notify},
		{StepFinalize, true, o.finalize},
	}
}

// Execute runs the pipeline for meetingID.
// A concurrent run on the same meeting fails fast with ErrSubjectBusy and
// leaves no run record behind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meetingID: meeting to report on.
//   - opts: trigger, attempt and optional artifact to regenerate.
//
// Returns:
//   - *ExecuteResult: run outcome; nil only when the run could not start.
//   - error: ErrSubjectBusy, or the first blocking step error.
func (o *Orchestrator) Execute(ctx context.Context, meetingID string, opts ExecuteOptions) (*ExecuteResult, error) {
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerManual
	}

	if !opts.SubjectLocked {
		release, err := o.LockSubject(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	start := o.now()
	run := domain.NewPipelineRun(uuid.NewString(), meetingID, domain.RunKindDelivery, opts.Trigger, opts.Attempt)
	run.ArtifactID = opts.ArtifactID
	if err := o.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ctx = logger.WithTrace(ctx, logger.Trace{RunID: run.ID, SubjectID: meetingID})
	o.metrics.RunStarted(string(opts.Trigger))
	logger.CtxInfo(ctx, "Pipeline run started (trigger=%s, attempt=%d)", opts.Trigger, run.Attempt)

	st := &runState{run: run, opts: opts}
	for _, step := range o.steps() {
		err := o.runStep(ctx, st, step)
		if err == nil {
			continue
		}
		if !step.blocking {
			st.degraded = append(st.degraded, step.name)
			continue
		}
		return o.fail(ctx, st, step.name, err, start)
	}
	return o.complete(ctx, st, start)
}

// LockSubject takes the advisory lock of one meeting without running
// anything.
// Parameters:
//   - ctx: request context.
//   - meetingID: subject to lock.
//
// Returns:
//   - func(): releases the lock; safe to call more than once.
//   - error: ErrSubjectBusy when another orchestration holds it.
func (o *Orchestrator) LockSubject(ctx context.Context, meetingID string) (func(), error) {
	release, err := o.locker.TryLock(ctx, meetingID)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			o.metrics.SubjectBusy()
			return nil, fmt.Errorf("%w: %s", ErrSubjectBusy, meetingID)
		}
		return nil, fmt.Errorf("acquire subject lock: %w", err)
	}
	return release, nil
}

// runStep records running, performs the step under the step timeout and
// records the outcome, persisting the run both times.
func (o *Orchestrator) runStep(ctx context.Context, st *runState, step pipelineStep) error {
	ctx = logger.WithTrace(ctx, logger.Trace{Step: step.name})
	began := o.now()
	if err := st.run.StartStep(step.name, began); err != nil {
		return err
	}
	if err := o.runs.Save(ctx, st.run); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}

	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, o.cfg.StepTimeout)
	}
	summary, stepErr := step.run(stepCtx, st)
	cancel()

	finished := o.now()
	status := domain.StepStatusSuccess
	if stepErr != nil {
		status = domain.StepStatusFailed
		if err := st.run.FailStep(step.name, stepErr, finished); err != nil {
			return err
		}
	} else if err := st.run.CompleteStep(step.name, summary, finished); err != nil {
		return err
	}
	o.metrics.StepFinished(step.name, string(status), finished.Sub(began))

	if err := o.runs.Save(ctx, st.run); err != nil && stepErr == nil {
		stepErr = fmt.Errorf("persist run: %w", err)
	}

	entry := logger.Metrics(nil).Took(finished.Sub(began)).Status(string(status))
	if stepErr != nil {
		entry.Warn(ctx, "Step failed: %v", stepErr)
	} else {
		entry.Info(ctx, "Step finished: %s", summary)
	}
	return stepErr
}

func (o *Orchestrator) load(ctx context.Context, st *runState) (string, error) {
	meeting, err := o.meetings.GetByID(ctx, st.run.SubjectID)
	if err != nil {
		return "", fmt.Errorf("load meeting %s: %w", st.run.SubjectID, err)
	}
	if err := o.meetings.SetReportStatus(ctx, meeting.ID, domain.ReportStatusProcessing); err != nil {
		return "", fmt.Errorf("mark meeting processing: %w", err)
	}
	meeting.ReportStatus = domain.ReportStatusProcessing
	st.meeting = meeting
	return fmt.Sprintf("loaded %q with %d participants", meeting.Title, len(meeting.Participants)), nil
}

func (o *Orchestrator) normalize(ctx context.Context, st *runState) (string, error) {
	raw := st.meeting.Transcript
	source := "transcript"
	if strings.TrimSpace(raw) == "" && st.meeting.AudioKey != "" {
		text, err := o.transcribe(ctx, st.meeting)
		if err != nil {
			return "", err
		}
		raw, source = text, "audio"
	}

	st.transcript = NormalizeTranscript(raw)
	if st.transcript == "" {
		return "", ErrEmptyTranscript
	}
	if source == "audio" {
		st.meeting.Transcript = st.transcript
		if err := o.meetings.Update(ctx, st.meeting); err != nil {
			return "", fmt.Errorf("save transcript: %w", err)
		}
	}
	return fmt.Sprintf("%d words from %s", WordCount(st.transcript), source), nil
}

func (o *Orchestrator) transcribe(ctx context.Context, meeting *domain.Meeting) (string, error) {
	if o.transcriber == nil {
		return "", fmt.Errorf("meeting has audio only and no transcriber is configured")
	}
	if o.storage == nil {
		return "", fmt.Errorf("meeting audio %s cannot be read: no artifact storage", meeting.AudioKey)
	}
	audio, err := storage.ReadAll(ctx, o.storage, meeting.AudioKey)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	text, err := o.transcriber.Transcribe(ctx, audio, meeting.AudioFormat)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}

func (o *Orchestrator) generate(ctx context.Context, st *runState) (string, error) {
	prompt := prompts.ReportPrompt(o.cfg.SignatureMarker, st.meeting.Title, st.meeting.Participants, st.transcript)
	content, err := o.oracle.Submit(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}

	now := o.now()
	if st.opts.ArtifactID != "" {
		artifact, err := o.deliveries.GetByID(ctx, st.opts.ArtifactID)
		if err != nil {
			return "", fmt.Errorf("load artifact %s: %w", st.opts.ArtifactID, err)
		}
		if artifact.SubjectRef != st.meeting.ID {
			return "", fmt.Errorf("artifact %s belongs to meeting %s", artifact.ID, artifact.SubjectRef)
		}
		artifact.Content = content
		artifact.ResetQuality()
		artifact.Status = domain.DeliveryStatusRunning
		artifact.Recipients = domain.StringArray(st.meeting.Participants)
		artifact.SetError(nil)
		artifact.Append(domain.HistoryEntry{At: now, Event: domain.EventRegenerated, Attempt: st.run.Attempt, RunID: st.run.ID})
		if err := o.deliveries.Update(ctx, artifact); err != nil {
			return "", fmt.Errorf("save artifact: %w", err)
		}
		st.artifact = artifact
	} else {
		latest, err := o.deliveries.LatestVersion(ctx, st.meeting.ID)
		if err != nil {
			return "", fmt.Errorf("read latest version: %w", err)
		}
		artifact := &domain.DeliveryArtifact{
			ID:            uuid.NewString(),
			TemplateRef:   o.cfg.TemplateRef,
			SubjectRef:    st.meeting.ID,
			Version:       latest + 1,
			Status:        domain.DeliveryStatusRunning,
			Content:       content,
			Recipients:    domain.StringArray(st.meeting.Participants),
			Attempts:      1,
			LastAttemptAt: &now,
		}
		artifact.Append(domain.HistoryEntry{At: now, Event: domain.EventCreated, Attempt: 1, RunID: st.run.ID})
		if err := o.deliveries.Create(ctx, artifact); err != nil {
			return "", fmt.Errorf("create artifact: %w", err)
		}
		st.artifact = artifact
	}

	st.run.ArtifactID = st.artifact.ID
	return fmt.Sprintf("artifact %s v%d, %d words", st.artifact.ID, st.artifact.Version, WordCount(content)), nil
}

// ReportKey is the storage key of an artifact version.
// Parameters:
//   - meetingID: meeting ID.
//   - artifactID: artifact ID.
//   - version: artifact version.
//
// Returns:
//   - string: object storage key.
func ReportKey(meetingID, artifactID string, version int) string {
	return fmt.Sprintf("reports/%s/%s-v%d.md", meetingID, artifactID, version)
}

func (o *Orchestrator) upload(ctx context.Context, st *runState) (string, error) {
	if o.storage == nil {
		return "", fmt.Errorf("artifact storage not configured")
	}
	key := ReportKey(st.meeting.ID, st.artifact.ID, st.artifact.Version)
	obj, err := storage.Store(ctx, o.storage, key, []byte(st.artifact.Content), ReportContentType)
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	// apply to a fresh copy so entries appended since GENERATE are kept
	artifact, err := o.deliveries.GetByID(ctx, st.artifact.ID)
	if err != nil {
		return "", fmt.Errorf("load artifact %s: %w", st.artifact.ID, err)
	}
	artifact.StorageKey = obj.Key
	artifact.ExternalURL = obj.ExternalURL
	artifact.Append(domain.HistoryEntry{At: o.now(), Event: domain.EventUploaded, Attempt: st.run.Attempt, RunID: st.run.ID, Detail: obj.ExternalURL})
	if err := o.deliveries.Update(ctx, artifact); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	st.artifact = artifact
	return "stored at " + obj.Key, nil
}

func (o *Orchestrator) notify(ctx context.Context, st *runState) (string, error) {
	recipients := st.artifact.Recipients
	if len(recipients) == 0 {
		return "", ErrNoRecipients
	}
	subject := prompts.ReportReadySubject(st.meeting.Title, st.artifact.Version)
	body := prompts.ReportReadyBody(st.meeting.Title, st.artifact.ExternalURL)

	res := notify.FanOut(ctx, o.notifier, recipients, subject, body)
	st.notified = res
	if res.AllFailed() {
		return "", fmt.Errorf("every recipient failed: %s", res.Summary())
	}
	return res.Summary(), nil
}

// finalize only touches the status column so that history appended by
// others since GENERATE survives.
func (o *Orchestrator) finalize(ctx context.Context, st *runState) (string, error) {
	if err := o.deliveries.SetStatus(ctx, st.artifact.ID, domain.DeliveryStatusReviewPending); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	st.artifact.Status = domain.DeliveryStatusReviewPending
	if err := o.meetings.SetReportStatus(ctx, st.meeting.ID, domain.ReportStatusReady); err != nil {
		return "", fmt.Errorf("mark meeting ready: %w", err)
	}
	return fmt.Sprintf("artifact %s awaiting review", st.artifact.ID), nil
}

func (o *Orchestrator) complete(ctx context.Context, st *runState, start time.Time) (*ExecuteResult, error) {
	status := domain.RunStatusSuccess
	notes := []string{"completed"}
	if st.notified != nil && len(st.notified.Failed) > 0 {
		status = domain.RunStatusPartial
		notes = append(notes, fmt.Sprintf("%d recipient(s) not notified", len(st.notified.Failed)))
	}
	for _, name := range st.degraded {
		if name == StepUpload {
			notes = append(notes, "upload failed, sent without external link")
		}
	}

	duration := o.now().Sub(start)
	st.run.Finish(status, duration, strings.Join(notes, "; "), nil)
	if err := o.runs.Save(ctx, st.run); err != nil {
		return o.result(st, duration), fmt.Errorf("persist run: %w", err)
	}
	o.metrics.RunFinished(string(status), duration)
	logger.Metrics(logger.Fields{logger.FieldArtifactID: st.artifact.ID}).
		Took(duration).
		Status(string(status)).
		Info(ctx, "Pipeline run finished")
	return o.result(st, duration), nil
}

// fail finalizes the run as failed and marks the meeting and artifact.
// The returned error wraps the step error.
func (o *Orchestrator) fail(ctx context.Context, st *runState, step string, stepErr error, start time.Time) (*ExecuteResult, error) {
	duration := o.now().Sub(start)
	st.run.Finish(domain.RunStatusFailed, duration, "failed at "+step, stepErr)
	if err := o.runs.Save(ctx, st.run); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to persist failed run")
	}

	if st.meeting != nil {
		if err := o.meetings.SetReportStatus(ctx, st.meeting.ID, domain.ReportStatusFailed); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark meeting report as failed")
		}
	}
	if st.artifact != nil {
		if fresh, err := o.deliveries.GetByID(ctx, st.artifact.ID); err == nil {
			st.artifact = fresh
		}
		st.artifact.Status = domain.DeliveryStatusFailed
		st.artifact.SetError(stepErr)
		st.artifact.Append(domain.HistoryEntry{At: o.now(), Event: domain.EventFailed, Attempt: st.run.Attempt, RunID: st.run.ID, Detail: step + ": " + stepErr.Error()})
		if err := o.deliveries.Update(ctx, st.artifact); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark artifact as failed")
		}
	}

	o.metrics.RunFinished(string(domain.RunStatusFailed), duration)
	logger.Metrics(logger.Fields{logger.FieldStep: step}).
		Took(duration).
		Status(string(domain.RunStatusFailed)).
		Error(ctx, "Pipeline run failed: %v", stepErr)
	return o.result(st, duration), fmt.Errorf("%s: %w", step, stepErr)
}

func (o *Orchestrator) result(st *runState, duration time.Duration) *ExecuteResult {
	return &ExecuteResult{
		Success:    st.run.Status == domain.RunStatusSuccess || st.run.Status == domain.RunStatusPartial,
		Status:     st.run.Status,
		RunID:      st.run.ID,
		ArtifactID: st.run.ArtifactID,
		Duration:   duration,
		Run:        st.run,
	}
}
