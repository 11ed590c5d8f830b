package qa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/service"
	"github.com/timmy/recap/internal/storage"
)

// Check codes.
const (
	CodeConfig        = "CONF-001"
	CodeTranscriptFix = "FILE-001"
	CodeStorage       = "FILE-002"
	CodeMeeting       = "MEET-001"
	CodeTranscribe    = "TRANS-001"
	CodeGenerate      = "GEN-001"
	CodeRunRecord     = "GEN-002"
	CodeQuality       = "QUAL-001"
	CodeNotify        = "NOTIF-001"
	CodeVersioning    = "VERS-001"
	CodeFanOut        = "NOTIF-002"
	CodeEmail         = "EMAIL-001"
	CodeUpload        = "UPLD-001"
	CodeRetry         = "RETRY-001"
)

// invalidRecipient is mixed into the fan-out check and must be rejected.
const invalidRecipient = "qa-invalid-recipient"

// suiteState threads identifiers created by earlier checks into later ones.
type suiteState struct {
	meetingID  string
	runID      string
	artifactID string
}

type result struct {
	status   domain.QaCheckStatus
	evidence string
	err      error
}

type check struct {
	code string
	run  func(ctx context.Context, st *suiteState) result
}

func pass(facts map[string]interface{}) result {
	return result{status: domain.QaCheckPassed, evidence: evidence(facts)}
}

func fail(err error, facts map[string]interface{}) result {
	return result{status: domain.QaCheckFailed, evidence: evidence(facts), err: err}
}

func skip(reason string) result {
	return result{status: domain.QaCheckSkipped, evidence: evidence(map[string]interface{}{"skipped": reason})}
}

func (h *Harness) smokeChecks() []check {
	return []check{
		{CodeConfig, h.checkConfig},
		{CodeTranscriptFix, h.checkTranscriptFixture},
		{CodeStorage, h.checkStorage},
		{CodeMeeting, h.checkMeeting},
		{CodeTranscribe, h.checkTranscribe},
		{CodeGenerate, h.checkGenerate},
		{CodeRunRecord, h.checkRunRecord},
		{CodeQuality, h.checkQuality},
		{CodeNotify, h.checkNotify},
	}
}

func (h *Harness) fullChecks() []check {
	return []check{
		{CodeVersioning, h.checkVersioning},
		{CodeFanOut, h.checkFanOut},
		{CodeEmail, h.checkEmail},
		{CodeUpload, h.checkUploadDegrades},
		{CodeRetry, h.checkRetryDelivered},
	}
}

func (h *Harness) checkConfig(_ context.Context, _ *suiteState) result {
	facts := map[string]interface{}{
		"ready_threshold":  h.quality.ReadyThreshold,
		"review_threshold": h.quality.ReviewThreshold,
		"critical_codes":   h.policy.CriticalCodes,
	}
	if err := h.quality.Validate(); err != nil {
		return fail(err, facts)
	}
	if err := h.policy.Validate(); err != nil {
		return fail(err, facts)
	}
	return pass(facts)
}

func (h *Harness) checkTranscriptFixture(_ context.Context, _ *suiteState) result {
	facts := map[string]interface{}{"dir": h.fixtures.Dir, "file": h.fixtures.Manifest.Transcript}
	if h.fixtures.Transcript == "" {
		return fail(errors.New("transcript fixture is missing or empty"), facts)
	}
	facts["words"] = service.WordCount(h.fixtures.Transcript)
	return pass(facts)
}

func (h *Harness) checkStorage(ctx context.Context, _ *suiteState) result {
	if h.store == nil {
		return fail(errors.New("no artifact storage configured"), nil)
	}
	key := "qa/roundtrip-" + uuid.NewString() + ".txt"
	payload := []byte("recap storage round-trip " + key)
	facts := map[string]interface{}{"key": key, "bytes": len(payload)}

	obj, err := storage.Store(ctx, h.store, key, payload, "text/plain")
	if err != nil {
		return fail(err, facts)
	}
	facts["url"] = obj.ExternalURL
	got, err := storage.ReadAll(ctx, h.store, key)
	if err != nil {
		return fail(err, facts)
	}
	if !bytes.Equal(got, payload) {
		return fail(fmt.Errorf("read back %d bytes, wrote %d", len(got), len(payload)), facts)
	}
	if err := h.store.Delete(ctx, key); err != nil {
		return fail(fmt.Errorf("cleanup: %w", err), facts)
	}
	return pass(facts)
}

func (h *Harness) checkMeeting(ctx context.Context, st *suiteState) result {
	if h.fixtures.Transcript == "" {
		return skip("no transcript fixture")
	}
	meeting := &domain.Meeting{
		ID:           "qa-" + uuid.NewString(),
		Title:        h.fixtures.Manifest.Title,
		Transcript:   h.fixtures.Transcript,
		Participants: domain.StringArray{h.primaryRecipient()},
		Synthetic:    true,
	}
	facts := map[string]interface{}{"meeting_id": meeting.ID, "participants": meeting.Participants}
	if err := h.repos.Meetings.Create(ctx, meeting); err != nil {
		return fail(err, facts)
	}
	st.meetingID = meeting.ID
	return pass(facts)
}

func (h *Harness) checkTranscribe(ctx context.Context, _ *suiteState) result {
	switch {
	case len(h.fixtures.Audio) == 0:
		return skip("no audio fixture")
	case !h.policy.SupportsAudioFormat(h.fixtures.AudioFormat):
		return skip(fmt.Sprintf("audio format %q is not supported", h.fixtures.AudioFormat))
	case h.transcriber == nil:
		return skip("no transcriber configured")
	}
	facts := map[string]interface{}{"format": h.fixtures.AudioFormat, "bytes": len(h.fixtures.Audio)}
	text, err := h.transcriber.Transcribe(ctx, h.fixtures.Audio, h.fixtures.AudioFormat)
	if err != nil {
		return fail(err, facts)
	}
	text = service.NormalizeTranscript(text)
	facts["words"] = service.WordCount(text)
	if text == "" {
		return fail(errors.New("transcription is empty"), facts)
	}
	return pass(facts)
}

func (h *Harness) checkGenerate(ctx context.Context, st *suiteState) result {
	if st.meetingID == "" {
		return skip("no synthetic meeting")
	}
	res, err := h.pipeline.Execute(ctx, st.meetingID, service.ExecuteOptions{Trigger: domain.TriggerQA})
	facts := map[string]interface{}{"meeting_id": st.meetingID}
	if res != nil {
		st.runID = res.RunID
		facts["run_id"] = res.RunID
		facts["artifact_id"] = res.ArtifactID
		facts["status"] = res.Status
		facts["progress"] = res.Run.Progress()
	}
	if err != nil {
		return fail(err, facts)
	}
	st.artifactID = res.ArtifactID
	return pass(facts)
}

func (h *Harness) checkRunRecord(ctx context.Context, st *suiteState) result {
	if st.runID == "" {
		return skip("no pipeline run")
	}
	run, err := h.repos.Runs.GetByID(ctx, st.runID)
	if err != nil {
		return fail(err, map[string]interface{}{"run_id": st.runID})
	}
	names := run.Steps.Names()
	facts := map[string]interface{}{"run_id": run.ID, "steps": names, "status": run.Status}
	if strings.Join(names, ",") != strings.Join(service.StepOrder, ",") {
		return fail(fmt.Errorf("steps %v, expected %v", names, service.StepOrder), facts)
	}
	if !run.Status.IsTerminal() {
		return fail(fmt.Errorf("run is still %s", run.Status), facts)
	}
	return pass(facts)
}

func (h *Harness) checkQuality(ctx context.Context, st *suiteState) result {
	if st.artifactID == "" {
		return skip("no artifact")
	}
	if h.gate == nil {
		return skip("no quality gate configured")
	}
	eval, err := h.gate.Evaluate(ctx, st.artifactID)
	facts := map[string]interface{}{"artifact_id": st.artifactID}
	if err != nil {
		return fail(err, facts)
	}
	scores := make(map[string]interface{}, len(eval.Checkpoints))
	for _, cp := range eval.Checkpoints {
		scores[string(cp.Kind)] = fmt.Sprintf("%.2f %s", cp.Score, cp.Status)
	}
	facts["verdict"] = eval.Verdict
	facts["score"] = eval.Score
	facts["checkpoints"] = scores
	if len(eval.Checkpoints) != len(domain.CheckpointKinds) {
		return fail(fmt.Errorf("%d checkpoints, expected %d", len(eval.Checkpoints), len(domain.CheckpointKinds)), facts)
	}
	return pass(facts)
}

func (h *Harness) checkNotify(ctx context.Context, _ *suiteState) result {
	if h.router == nil {
		return fail(errors.New("no notifier configured"), nil)
	}
	recipient := h.primaryRecipient()
	facts := map[string]interface{}{"recipient": recipient}
	if err := h.router.Send(ctx, recipient, "Recap QA notification", "Single-recipient notification check."); err != nil {
		return fail(err, facts)
	}
	return pass(facts)
}

func (h *Harness) checkVersioning(ctx context.Context, st *suiteState) result {
	if st.meetingID == "" || st.artifactID == "" {
		return skip("no artifact from the smoke suite")
	}
	before, err := h.repos.Deliveries.GetByID(ctx, st.artifactID)
	if err != nil {
		return fail(err, map[string]interface{}{"artifact_id": st.artifactID})
	}
	res, err := h.pipeline.Execute(ctx, st.meetingID, service.ExecuteOptions{Trigger: domain.TriggerQA})
	facts := map[string]interface{}{"previous_id": before.ID, "previous_version": before.Version}
	if err != nil {
		return fail(err, facts)
	}
	latest, err := h.repos.Deliveries.GetByID(ctx, res.ArtifactID)
	if err != nil {
		return fail(err, facts)
	}
	after, err := h.repos.Deliveries.GetByID(ctx, before.ID)
	if err != nil {
		return fail(err, facts)
	}
	facts["new_id"] = latest.ID
	facts["new_version"] = latest.Version

	switch {
	case latest.ID == before.ID:
		return fail(errors.New("re-processing reused the previous artifact"), facts)
	case latest.Version != before.Version+1:
		return fail(fmt.Errorf("new version %d, expected %d", latest.Version, before.Version+1), facts)
	case after.Content != before.Content || after.Version != before.Version:
		return fail(errors.New("previous version was overwritten"), facts)
	}
	return pass(facts)
}

func (h *Harness) checkFanOut(ctx context.Context, _ *suiteState) result {
	if h.router == nil {
		return fail(errors.New("no notifier configured"), nil)
	}
	recipients := append(h.fanOutRecipients(), invalidRecipient)
	res := notify.FanOut(ctx, h.router, recipients, "Recap QA fan-out", "Multi-recipient notification check.")
	facts := map[string]interface{}{"recipients": recipients, "delivered": res.Delivered, "failed": res.Failed}

	if _, rejected := res.Failed[invalidRecipient]; !rejected {
		return fail(errors.New("invalid recipient was not rejected"), facts)
	}
	if len(res.Delivered) != len(recipients)-1 {
		return fail(fmt.Errorf("delivered %d of %d valid recipients", len(res.Delivered), len(recipients)-1), facts)
	}
	return pass(facts)
}

func (h *Harness) checkEmail(ctx context.Context, _ *suiteState) result {
	if h.router == nil || !h.router.Has(notify.ChannelEmail) {
		return skip("no email channel configured")
	}
	if len(h.policy.EmailRecipients) == 0 {
		return skip("no email recipients configured")
	}
	res := notify.FanOut(ctx, h.router, h.policy.EmailRecipients, "Recap QA email", "Email channel check.")
	facts := map[string]interface{}{"delivered": res.Delivered, "failed": res.Failed}
	if len(res.Failed) > 0 {
		return fail(errors.New(res.Summary()), facts)
	}
	return pass(facts)
}

func (h *Harness) checkUploadDegrades(ctx context.Context, st *suiteState) result {
	if st.meetingID == "" {
		return skip("no synthetic meeting")
	}
	res, err := h.degraded.Execute(ctx, st.meetingID, service.ExecuteOptions{Trigger: domain.TriggerQA})
	facts := map[string]interface{}{"meeting_id": st.meetingID}
	if res != nil {
		facts["run_id"] = res.RunID
		facts["status"] = res.Status
		facts["progress"] = res.Run.Progress()
	}
	if err != nil {
		return fail(fmt.Errorf("upload failure aborted the run: %w", err), facts)
	}
	progress := res.Run.Progress()
	if progress[service.StepUpload] != domain.StepStatusFailed {
		return fail(errors.New("upload did not fail against unavailable storage"), facts)
	}
	if progress[service.StepNotify] != domain.StepStatusSuccess || progress[service.StepFinalize] != domain.StepStatusSuccess {
		return fail(errors.New("steps after upload did not complete"), facts)
	}
	return pass(facts)
}

func (h *Harness) checkRetryDelivered(ctx context.Context, st *suiteState) result {
	if st.artifactID == "" {
		return skip("no artifact from the smoke suite")
	}
	if h.delivery == nil {
		return skip("no delivery service configured")
	}
	facts := map[string]interface{}{"artifact_id": st.artifactID}
	if _, err := h.delivery.Send(ctx, st.artifactID, true); err != nil && !errors.Is(err, service.ErrAlreadyDelivered) {
		return fail(fmt.Errorf("deliver artifact: %w", err), facts)
	}
	runsBefore, err := h.repos.Runs.ListBySubject(ctx, st.meetingID, 0)
	if err != nil {
		return fail(err, facts)
	}

	_, err = h.retry.Retry(ctx, st.artifactID)
	facts["retry_error"] = fmt.Sprint(err)
	if !errors.Is(err, service.ErrAlreadyDelivered) {
		return fail(fmt.Errorf("retry of a delivered artifact was not rejected: %v", err), facts)
	}
	runsAfter, err := h.repos.Runs.ListBySubject(ctx, st.meetingID, 0)
	if err != nil {
		return fail(err, facts)
	}
	if len(runsAfter) != len(runsBefore) {
		return fail(errors.New("rejected retry still started a run"), facts)
	}
	return pass(facts)
}

func (h *Harness) primaryRecipient() string {
	if len(h.fixtures.Manifest.Participants) > 0 {
		return h.fixtures.Manifest.Participants[0]
	}
	if len(h.policy.Recipients) > 0 {
		return h.policy.Recipients[0]
	}
	return "log:qa-primary"
}

func (h *Harness) fanOutRecipients() []string {
	if len(h.policy.Recipients) > 1 {
		return append([]string(nil), h.policy.Recipients...)
	}
	return []string{h.primaryRecipient(), "log:qa-secondary"}
}

// unavailableStorage rejects every upload.
type unavailableStorage struct {
	storage.ObjectStorage
}

func (unavailableStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return errors.New("storage unavailable")
}
