package domain

import "time"

// ReportStatus is the externally visible report flag on a meeting.
type ReportStatus string

const (
	ReportStatusNone       ReportStatus = "none"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusReady      ReportStatus = "report_ready"
	ReportStatusFailed     ReportStatus = "report_failed"
)

// Meeting is the unit of work a pipeline run turns into a delivery.
type Meeting struct {
	ID           string       `gorm:"type:text;primaryKey" json:"id"`
	Title        string       `gorm:"type:text;not null" json:"title"`
	Transcript   string       `gorm:"type:text" json:"transcript,omitempty"`
	AudioKey     string       `gorm:"type:text" json:"audio_key,omitempty"`
	AudioFormat  string       `gorm:"type:text" json:"audio_format,omitempty"`
	Participants StringArray  `gorm:"type:text" json:"participants"`
	ReportStatus ReportStatus `gorm:"type:text;index:idx_meetings_report_status;default:none" json:"report_status"`
	Synthetic    bool         `gorm:"default:false" json:"synthetic"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Meeting.
func (Meeting) TableName() string {
	return "meetings"
}
