package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/timmy/recap/internal/logger"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stepDuration  *prometheus.HistogramVec
	subjectBusy   prometheus.Counter
	verdicts      *prometheus.CounterVec
	qualityScore  prometheus.Histogram
	checkpoints   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	qaChecks      *prometheus.CounterVec
	qaRuns        *prometheus.CounterVec
}

// NewPrometheusSink creates the collectors and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initPipelineMetrics(reg)
	s.initQualityMetrics(reg)
	s.initQAMetrics(reg)
	return s
}

func (s *PrometheusSink) initPipelineMetrics(reg prometheus.Registerer) {
	s.runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_pipeline_runs_started_total",
		Help: "Pipeline runs started, by trigger.",
	}, []string{"trigger"})
	s.runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_pipeline_runs_finished_total",
		Help: "Pipeline runs finished, by terminal status.",
	}, []string{"status"})
	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recap_pipeline_run_duration_seconds",
		Help:    "Wall time of a pipeline run in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	s.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recap_pipeline_step_duration_seconds",
		Help:    "Wall time of a pipeline step in seconds.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 120},
	}, []string{"step", "status"})
	s.subjectBusy = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_pipeline_subject_busy_total",
		Help: "Runs rejected because the subject was already being processed.",
	})
	s.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_notifications_total",
		Help: "Notification attempts, by channel and result.",
	}, []string{"channel", "ok"})

	s.register(reg, s.runsStarted, "recap_pipeline_runs_started_total")
	s.register(reg, s.runsFinished, "recap_pipeline_runs_finished_total")
	s.register(reg, s.runDuration, "recap_pipeline_run_duration_seconds")
	s.register(reg, s.stepDuration, "recap_pipeline_step_duration_seconds")
	s.register(reg, s.subjectBusy, "recap_pipeline_subject_busy_total")
	s.register(reg, s.notifications, "recap_notifications_total")
}

func (s *PrometheusSink) initQualityMetrics(reg prometheus.Registerer) {
	s.verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_quality_verdicts_total",
		Help: "Quality gate verdicts.",
	}, []string{"verdict"})
	s.qualityScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recap_quality_score",
		Help:    "Aggregate quality score distribution.",
		Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
	})
	s.checkpoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_quality_checkpoints_total",
		Help: "Quality checkpoints, by kind and status.",
	}, []string{"kind", "status"})

	s.register(reg, s.verdicts, "recap_quality_verdicts_total")
	s.register(reg, s.qualityScore, "recap_quality_score")
	s.register(reg, s.checkpoints, "recap_quality_checkpoints_total")
}

func (s *PrometheusSink) initQAMetrics(reg prometheus.Registerer) {
	s.qaChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_qa_checks_total",
		Help: "QA checks recorded, by code and status.",
	}, []string{"code", "status"})
	s.qaRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_qa_runs_total",
		Help: "QA runs finalized, by kind and status.",
	}, []string{"kind", "status"})

	s.register(reg, s.qaChecks, "recap_qa_checks_total")
	s.register(reg, s.qaRuns, "recap_qa_runs_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger.Default().WithError(err).Warnf("metrics: failed to register %s", name)
	}
}

func (s *PrometheusSink) RunStarted(trigger string) {
	s.runsStarted.WithLabelValues(trigger).Inc()
}

func (s *PrometheusSink) RunFinished(status string, duration time.Duration) {
	s.runsFinished.WithLabelValues(status).Inc()
	s.runDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) StepFinished(step, status string, duration time.Duration) {
	s.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

func (s *PrometheusSink) SubjectBusy() {
	s.subjectBusy.Inc()
}

func (s *PrometheusSink) EvaluationCompleted(verdict string, score float64) {
	s.verdicts.WithLabelValues(verdict).Inc()
	s.qualityScore.Observe(score)
}

func (s *PrometheusSink) CheckpointScored(kind, status string) {
	s.checkpoints.WithLabelValues(kind, status).Inc()
}

func (s *PrometheusSink) NotificationSent(channel string, ok bool) {
	s.notifications.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
}

func (s *PrometheusSink) QaCheckRecorded(code, status string) {
	s.qaChecks.WithLabelValues(code, status).Inc()
}

func (s *PrometheusSink) QaRunFinished(kind, status string) {
	s.qaRuns.WithLabelValues(kind, status).Inc()
}
