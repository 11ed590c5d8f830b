package domain

import (
	"database/sql/driver"
	"time"
)

// CheckpointKind names one of the quality checks.
type CheckpointKind string

const (
	CheckpointSpelling     CheckpointKind = "spelling"
	CheckpointFormat       CheckpointKind = "format"
	CheckpointCompleteness CheckpointKind = "completeness"
	CheckpointCoherence    CheckpointKind = "coherence"
	CheckpointCompliance   CheckpointKind = "compliance"
)

// CheckpointKinds lists the quality checks in evaluation order.
var CheckpointKinds = []CheckpointKind{
	CheckpointSpelling,
	CheckpointFormat,
	CheckpointCompleteness,
	CheckpointCoherence,
	CheckpointCompliance,
}

// CheckpointStatus is the outcome of one quality check.
type CheckpointStatus string

const (
	CheckpointPassed         CheckpointStatus = "passed"
	CheckpointFailed         CheckpointStatus = "failed"
	CheckpointReviewRequired CheckpointStatus = "review_required"
)

// Severity grades an issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue is a single finding reported by a check.
type Issue struct {
	Kind       string   `json:"kind"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// IssueList is stored as a JSON column.
type IssueList []Issue

// Value implements the driver.Valuer interface for database serialization.
func (l IssueList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalColumn(l)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *IssueList) Scan(value interface{}) error {
	if value == nil {
		*l = IssueList{}
		return nil
	}
	return unmarshalColumn(value, l)
}

// Checkpoint is the persisted result of one quality check against an artifact.
type Checkpoint struct {
	ID         string           `gorm:"type:text;primaryKey" json:"id"`
	ArtifactID string           `gorm:"type:text;not null;index:idx_checkpoints_artifact" json:"artifact_id"`
	Kind       CheckpointKind   `gorm:"type:text;not null" json:"kind"`
	Status     CheckpointStatus `gorm:"type:text;not null" json:"status"`
	Issues     IssueList        `gorm:"type:text" json:"issues"`
	Score      float64          `json:"score"`
	CreatedAt  time.Time        `json:"created_at"`
}

// TableName returns the database table name for Checkpoint.
func (Checkpoint) TableName() string {
	return "checkpoints"
}
