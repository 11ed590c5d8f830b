package metrics

import "time"

// NoopSink is used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RunStarted(trigger string)                                {}
func (n *NoopSink) RunFinished(status string, duration time.Duration)        {}
func (n *NoopSink) StepFinished(step, status string, duration time.Duration) {}
func (n *NoopSink) SubjectBusy()                                             {}
func (n *NoopSink) EvaluationCompleted(verdict string, score float64)        {}
func (n *NoopSink) CheckpointScored(kind, status string)                     {}
func (n *NoopSink) NotificationSent(channel string, ok bool)                 {}
func (n *NoopSink) QaCheckRecorded(code, status string)                      {}
func (n *NoopSink) QaRunFinished(kind, status string)                        {}
