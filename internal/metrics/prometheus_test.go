package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusSink(reg), reg
}

func TestPrometheusSink_RunCounters(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.RunStarted("api")
	sink.RunStarted("api")
	sink.RunStarted("retry")
	sink.RunFinished("success", 2*time.Second)
	sink.RunFinished("failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("failed")))
}

func TestPrometheusSink_QualityAndQA(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.EvaluationCompleted("READY_TO_SEND", 0.87)
	sink.CheckpointScored("spelling", "passed")
	sink.QaCheckRecorded("GEN-001", "PASSED")
	sink.QaRunFinished("SMOKE", "SUCCESS")
	sink.NotificationSent(ChannelSlack, false)
	sink.SubjectBusy()

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.verdicts.WithLabelValues("READY_TO_SEND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.notifications.WithLabelValues("slack", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.subjectBusy))

	count, err := testutil.GatherAndCount(reg, "recap_qa_runs_total", "recap_qa_checks_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrometheusSink_DoubleRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	assert.NotPanics(t, func() {
		s := NewPrometheusSink(reg)
		s.RunStarted("manual")
	})
}

func TestNoopSink_ImplementsSink(t *testing.T) {
	var s Sink = NewNoopSink()
	assert.NotPanics(t, func() {
		s.RunStarted("manual")
		s.RunFinished("success", time.Second)
		s.QaRunFinished("FULL", "PARTIAL")
	})
}
