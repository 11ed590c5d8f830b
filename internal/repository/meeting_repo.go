package repository

import (
	"context"

	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

var meetingColumns = map[string]string{
	"id":            "id",
	"title":         "title",
	"report_status": "report_status",
	"synthetic":     "synthetic",
}

// MeetingRepository handles meeting data operations.
type MeetingRepository struct {
	db *gorm.DB
}

// NewMeetingRepository creates a new MeetingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *MeetingRepository: repository instance bound to db.
func NewMeetingRepository(db *gorm.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

// Create inserts a new meeting record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meeting: meeting to insert.
//
// Returns:
//   - error: insert error, if any.
func (r *MeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	if meeting.ReportStatus == "" {
		meeting.ReportStatus = domain.ReportStatusNone
	}
	return r.db.WithContext(ctx).Create(meeting).Error
}

// Update saves every field of an existing meeting.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meeting: meeting to save.
//
// Returns:
//   - error: save error, if any.
func (r *MeetingRepository) Update(ctx context.Context, meeting *domain.Meeting) error {
	return r.db.WithContext(ctx).Save(meeting).Error
}

// GetByID retrieves a meeting by its ID.
// Returns gorm.ErrRecordNotFound when absent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meeting ID.
//
// Returns:
//   - *domain.Meeting: the meeting.
//   - error: gorm.ErrRecordNotFound when no meeting has the ID.
func (r *MeetingRepository) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	var meeting domain.Meeting
	if err := r.db.WithContext(ctx).First(&meeting, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &meeting, nil
}

// SetReportStatus updates only the external report flag.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meeting ID.
//   - status: new report status.
//
// Returns:
//   - error: gorm.ErrRecordNotFound when no meeting has the ID.
func (r *MeetingRepository) SetReportStatus(ctx context.Context, id string, status domain.ReportStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Meeting{}).Where("id = ?", id).Update("report_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindBy lists meetings whose field equals value, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - field: filter column; must be one of the indexed columns.
//   - value: value the column must equal.
//   - limit: maximum rows; 0 returns all.
//
// Returns:
//   - []domain.Meeting: matching meetings.
//   - error: ErrUnknownField for other columns.
func (r *MeetingRepository) FindBy(ctx context.Context, field string, value interface{}, limit int) ([]domain.Meeting, error) {
	return findBy[domain.Meeting](r.db.WithContext(ctx), meetingColumns, field, value, limit)
}

// List returns the most recent meetings.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: page size.
//   - offset: rows to skip.
//
// Returns:
//   - []domain.Meeting: one page of meetings.
//   - error: query error, if any.
func (r *MeetingRepository) List(ctx context.Context, limit, offset int) ([]domain.Meeting, error) {
	var meetings []domain.Meeting
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&meetings).Error
	return meetings, err
}
