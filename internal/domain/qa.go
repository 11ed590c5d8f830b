package domain

import (
	"fmt"
	"time"
)

// QaRunKind selects the QA suite.
type QaRunKind string

const (
	QaRunSmoke QaRunKind = "SMOKE"
	QaRunFull  QaRunKind = "FULL"
)

// QaRunStatus is the aggregate outcome of a QA run.
type QaRunStatus string

const (
	QaRunRunning QaRunStatus = "RUNNING"
	QaRunSuccess QaRunStatus = "SUCCESS"
	QaRunFailed  QaRunStatus = "FAILED"
	QaRunPartial QaRunStatus = "PARTIAL"
)

// QaCheckStatus is the outcome of one checked behavior.
type QaCheckStatus string

const (
	QaCheckPassed  QaCheckStatus = "PASSED"
	QaCheckFailed  QaCheckStatus = "FAILED"
	QaCheckSkipped QaCheckStatus = "SKIPPED"
	QaCheckRunning QaCheckStatus = "RUNNING"
)

// QaRun is one harness execution. Immutable once its status leaves RUNNING.
type QaRun struct {
	RunID        string      `gorm:"type:text;primaryKey" json:"run_id"`
	RunKind      QaRunKind   `gorm:"type:text;not null" json:"run_kind"`
	Status       QaRunStatus `gorm:"type:text;index:idx_qa_runs_status;default:RUNNING" json:"status"`
	PassedCount  int         `json:"passed_count"`
	FailedCount  int         `json:"failed_count"`
	SkippedCount int         `json:"skipped_count"`
	Notes        string      `gorm:"type:text" json:"notes,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for QaRun.
func (QaRun) TableName() string {
	return "qa_runs"
}

// NewQaRunID builds a human-legible run id from the kind and start time.
func NewQaRunID(kind QaRunKind, at time.Time) string {
	return fmt.Sprintf("QA-%s-%s", kind, at.UTC().Format("20060102-150405.000"))
}

// QaCheck is one coded check recorded by the harness.
type QaCheck struct {
	ID          string        `gorm:"type:text;primaryKey" json:"id"`
	RunID       string        `gorm:"type:text;not null;index:idx_qa_checks_run" json:"run_id"`
	Code        string        `gorm:"type:text;not null" json:"code"`
	Critical    bool          `json:"critical"`
	Status      QaCheckStatus `gorm:"type:text;not null" json:"status"`
	Evidence    string        `gorm:"type:text" json:"evidence,omitempty"`
	ErrorDetail string        `gorm:"type:text" json:"error_detail,omitempty"`
	DurationMs  int64         `json:"duration_ms"`
	Position    int           `json:"position"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TableName returns the database table name for QaCheck.
func (QaCheck) TableName() string {
	return "qa_checks"
}
