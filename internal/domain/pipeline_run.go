package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the overall status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal reports whether no further step will be recorded on the run.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusPartial
}

// RunKind identifies which pipeline a run belongs to.
type RunKind string

const (
	RunKindDelivery RunKind = "delivery"
)

// Trigger records who started a run.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAPI    Trigger = "api"
	TriggerRetry  Trigger = "retry"
	TriggerQA     Trigger = "qa"
)

// StepStatus is the state of a single pipeline step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

// ErrInvalidTransition is returned when a step is moved to a state its FSM forbids.
var ErrInvalidTransition = errors.New("invalid step transition")

var stepTransitions = map[StepStatus]map[StepStatus]struct{}{
	StepStatusPending: {
		StepStatusRunning: {},
	},
	StepStatusRunning: {
		StepStatusSuccess: {},
		StepStatusFailed:  {},
	},
	// finished steps may only be re-entered
	StepStatusSuccess: {
		StepStatusRunning: {},
	},
	StepStatusFailed: {
		StepStatusRunning: {},
	},
}

// ValidateStepTransition checks a single FSM edge.
func ValidateStepTransition(from, to StepStatus) error {
	if _, ok := stepTransitions[from]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, from)
	}
	if _, ok := stepTransitions[to]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}
	if _, ok := stepTransitions[from][to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Step is one named entry of a run record.
type Step struct {
	Name          string     `json:"name"`
	Status        StepStatus `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	OutputSummary string     `json:"output_summary,omitempty"`
	Error         *string    `json:"error,omitempty"`
}

// StepList is the ordered, name-keyed step collection of a run.
// It is stored as a JSON column.
type StepList []Step

// Value implements the driver.Valuer interface for database serialization.
func (l StepList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalColumn(l)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *StepList) Scan(value interface{}) error {
	if value == nil {
		*l = StepList{}
		return nil
	}
	return unmarshalColumn(value, l)
}

// Get returns the step with the given name.
func (l StepList) Get(name string) (Step, bool) {
	for _, s := range l {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Names returns step names in recorded order.
func (l StepList) Names() []string {
	names := make([]string, 0, len(l))
	for _, s := range l {
		names = append(names, s.Name)
	}
	return names
}

// PipelineRun is the persisted record of one orchestration attempt.
type PipelineRun struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	SubjectID  string    `gorm:"type:text;not null;index:idx_runs_subject" json:"subject_id"`
	RunKind    RunKind   `gorm:"type:text;not null" json:"run_kind"`
	Trigger    Trigger   `gorm:"type:text;not null" json:"trigger"`
	Attempt    int       `gorm:"default:1" json:"attempt"`
	ArtifactID string    `gorm:"type:text;index:idx_runs_artifact" json:"artifact_id,omitempty"`
	Status     RunStatus `gorm:"type:text;index:idx_runs_status;default:running" json:"status"`
	Steps      StepList  `gorm:"type:text" json:"steps"`
	DurationMs int64     `json:"duration_ms"`
	Summary    string    `gorm:"type:text" json:"summary,omitempty"`
	Error      *string   `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for PipelineRun.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// NewPipelineRun returns a run in the running state with no steps.
func NewPipelineRun(id, subjectID string, kind RunKind, trigger Trigger, attempt int) *PipelineRun {
	if attempt < 1 {
		attempt = 1
	}
	return &PipelineRun{
		ID:        id,
		SubjectID: subjectID,
		RunKind:   kind,
		Trigger:   trigger,
		Attempt:   attempt,
		Status:    RunStatusRunning,
		Steps:     StepList{},
	}
}

// StartStep moves the named step to running, creating it if absent.
func (r *PipelineRun) StartStep(name string, at time.Time) error {
	return r.upsertStep(name, StepStatusRunning, at, func(s *Step) {
		s.StartedAt = &at
		s.FinishedAt = nil
		s.OutputSummary = ""
		s.Error = nil
	})
}

// CompleteStep marks the named step successful with a short summary.
func (r *PipelineRun) CompleteStep(name, summary string, at time.Time) error {
	return r.upsertStep(name, StepStatusSuccess, at, func(s *Step) {
		s.FinishedAt = &at
		s.OutputSummary = summary
		s.Error = nil
	})
}

// FailStep marks the named step failed with the error text.
func (r *PipelineRun) FailStep(name string, stepErr error, at time.Time) error {
	msg := "unknown error"
	if stepErr != nil {
		msg = stepErr.Error()
	}
	return r.upsertStep(name, StepStatusFailed, at, func(s *Step) {
		s.FinishedAt = &at
		s.Error = &msg
	})
}

// upsertStep applies an FSM-checked transition to the step keyed by name.
// A missing step starts from pending, so it is appended at the end of the list.
func (r *PipelineRun) upsertStep(name string, to StepStatus, at time.Time, apply func(*Step)) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s is already %s", ErrInvalidTransition, r.ID, r.Status)
	}
	for i := range r.Steps {
		if r.Steps[i].Name != name {
			continue
		}
		if err := ValidateStepTransition(r.Steps[i].Status, to); err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
		r.Steps[i].Status = to
		apply(&r.Steps[i])
		return nil
	}
	if err := ValidateStepTransition(StepStatusPending, to); err != nil {
		return fmt.Errorf("step %s: %w", name, err)
	}
	s := Step{Name: name, Status: to}
	apply(&s)
	r.Steps = append(r.Steps, s)
	return nil
}

// Finish stamps a terminal status, duration and summary on the run.
func (r *PipelineRun) Finish(status RunStatus, duration time.Duration, summary string, runErr error) {
	r.Status = status
	r.DurationMs = duration.Milliseconds()
	r.Summary = summary
	if runErr != nil {
		msg := runErr.Error()
		r.Error = &msg
	}
}

// Progress maps step name to status for progress displays.
func (r *PipelineRun) Progress() map[string]StepStatus {
	out := make(map[string]StepStatus, len(r.Steps))
	for _, s := range r.Steps {
		out[s.Name] = s.Status
	}
	return out
}
