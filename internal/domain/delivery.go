package domain

import (
	"database/sql/driver"
	"time"
)

// DeliveryStatus represents the lifecycle of a delivery artifact.
type DeliveryStatus string

const (
	DeliveryStatusRunning       DeliveryStatus = "running"
	DeliveryStatusReviewPending DeliveryStatus = "review_pending"
	DeliveryStatusDelivered     DeliveryStatus = "delivered"
	DeliveryStatusSuccess       DeliveryStatus = "success"
	DeliveryStatusFailed        DeliveryStatus = "failed"
	DeliveryStatusArchived      DeliveryStatus = "archived"
)

// IsDelivered reports whether the artifact reached a terminal success state.
func (s DeliveryStatus) IsDelivered() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusSuccess
}

// Verdict is the readiness tier produced by the quality gate.
type Verdict string

const (
	VerdictReadyToSend  Verdict = "READY_TO_SEND"
	VerdictReviewNeeded Verdict = "REVIEW_NEEDED"
	VerdictFailed       Verdict = "FAILED"
)

// History event names.
const (
	EventCreated     = "created"
	EventRegenerated = "regenerated"
	EventUploaded    = "uploaded"
	EventEvaluated   = "evaluated"
	EventRetry       = "retry"
	EventRetryFailed = "retry_failed"
	EventFailed      = "failed"
	EventSent        = "sent"
)

// HistoryEntry is one append-only event on an artifact.
type HistoryEntry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Attempt int       `json:"attempt,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// History is the artifact event log stored as a JSON column.
type History []HistoryEntry

// Value implements the driver.Valuer interface for database serialization.
func (h History) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	return marshalColumn(h)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (h *History) Scan(value interface{}) error {
	if value == nil {
		*h = History{}
		return nil
	}
	return unmarshalColumn(value, h)
}

// DeliveryArtifact is the generated report for a meeting.
// Several versions may exist per subject; each row is one version.
type DeliveryArtifact struct {
	ID             string         `gorm:"type:text;primaryKey" json:"id"`
	TemplateRef    string         `gorm:"type:text" json:"template_ref"`
	SubjectRef     string         `gorm:"type:text;not null;index:idx_deliveries_subject_version,unique" json:"subject_ref"`
	Version        int            `gorm:"not null;index:idx_deliveries_subject_version,unique" json:"version"`
	Status         DeliveryStatus `gorm:"type:text;index:idx_deliveries_status;default:running" json:"status"`
	Content        string         `gorm:"type:text" json:"content"`
	QualityScore   *float64       `json:"quality_score,omitempty"`
	QualityVerdict Verdict        `gorm:"type:text" json:"quality_verdict,omitempty"`
	CheckpointIDs  StringArray    `gorm:"type:text" json:"checkpoints"`
	Recipients     StringArray    `gorm:"type:text" json:"recipients"`
	StorageKey     string         `gorm:"type:text" json:"storage_key,omitempty"`
	ExternalURL    string         `gorm:"type:text" json:"external_url,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	Attempts       int            `gorm:"default:1" json:"attempts"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	History        History        `gorm:"type:text" json:"history"`
	Error          *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName returns the database table name for DeliveryArtifact.
func (DeliveryArtifact) TableName() string {
	return "delivery_artifacts"
}

// Append adds an event to the artifact history.
func (a *DeliveryArtifact) Append(entry HistoryEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	a.History = append(a.History, entry)
}

// ResetQuality drops the gate's score, verdict and checkpoint links. Called
// whenever the content changes, since they described the old content.
func (a *DeliveryArtifact) ResetQuality() {
	a.QualityScore = nil
	a.QualityVerdict = ""
	a.CheckpointIDs = StringArray{}
}

// SetError records err on the artifact, or clears it when err is nil.
func (a *DeliveryArtifact) SetError(err error) {
	if err == nil {
		a.Error = nil
		return
	}
	msg := err.Error()
	a.Error = &msg
}
