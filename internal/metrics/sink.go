package metrics

import "time"

// Sink records pipeline, quality and QA metrics.
// Methods are fire-and-forget: implementations never block or return errors.
type Sink interface {
	// Orchestrator
	RunStarted(trigger string)
	RunFinished(status string, duration time.Duration)
	StepFinished(step, status string, duration time.Duration)
	SubjectBusy()

	// Quality gate
	EvaluationCompleted(verdict string, score float64)
	CheckpointScored(kind, status string)

	// Notifications
	NotificationSent(channel string, ok bool)

	// QA harness
	QaCheckRecorded(code, status string)
	QaRunFinished(kind, status string)
}

// Channel labels for NotificationSent.
const (
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelUnknown = "unknown"
)
