package repository

import (
	"context"

	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

var deliveryColumns = map[string]string{
	"id":           "id",
	"subject_ref":  "subject_ref",
	"template_ref": "template_ref",
	"status":       "status",
	"version":      "version",
}

// DeliveryRepository handles delivery artifact data operations.
type DeliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new DeliveryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *DeliveryRepository: repository instance bound to db.
func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create inserts a new artifact version.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifact: artifact with SubjectRef and Version set.
//
// Returns:
//   - error: non-nil if the insert fails, including a duplicate (subject, version).
func (r *DeliveryRepository) Create(ctx context.Context, artifact *domain.DeliveryArtifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

// Update saves every field of an existing artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifact: artifact to save; every column is written.
//
// Returns:
//   - error: save error, if any.
func (r *DeliveryRepository) Update(ctx context.Context, artifact *domain.DeliveryArtifact) error {
	return r.db.WithContext(ctx).Save(artifact).Error
}

// SetStatus updates only the status column, leaving history and content
// written by concurrent callers untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: artifact ID.
//   - status: new status.
//
// Returns:
//   - error: gorm.ErrRecordNotFound when no artifact has the ID.
func (r *DeliveryRepository) SetStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.DeliveryArtifact{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetByID retrieves an artifact by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: artifact ID.
//
// Returns:
//   - *domain.DeliveryArtifact: the artifact.
//   - error: gorm.ErrRecordNotFound when no artifact has the ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryArtifact, error) {
	var artifact domain.DeliveryArtifact
	if err := r.db.WithContext(ctx).First(&artifact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}

// LatestVersion returns the highest version stored for a subject, 0 when none.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - subjectRef: meeting ID.
//
// Returns:
//   - int: highest version, or 0 when the meeting has none.
//   - error: query error, if any.
func (r *DeliveryRepository) LatestVersion(ctx context.Context, subjectRef string) (int, error) {
	var latest int
	err := r.db.WithContext(ctx).
		Model(&domain.DeliveryArtifact{}).
		Where("subject_ref = ?", subjectRef).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error
	return latest, err
}

// ListBySubject returns every version of a subject's artifact, newest version first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - subjectRef: meeting ID.
//
// Returns:
//   - []domain.DeliveryArtifact: all versions.
//   - error: query error, if any.
func (r *DeliveryRepository) ListBySubject(ctx context.Context, subjectRef string) ([]domain.DeliveryArtifact, error) {
	var artifacts []domain.DeliveryArtifact
	err := r.db.WithContext(ctx).
		Where("subject_ref = ?", subjectRef).
		Order("version DESC").
		Find(&artifacts).Error
	return artifacts, err
}

// FindBy lists artifacts whose field equals value, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - field: filter column; must be one of the indexed columns.
//   - value: value the column must equal.
//   - limit: maximum rows; 0 returns all.
//
// Returns:
//   - []domain.DeliveryArtifact: matching artifacts.
//   - error: ErrUnknownField for other columns.
func (r *DeliveryRepository) FindBy(ctx context.Context, field string, value interface{}, limit int) ([]domain.DeliveryArtifact, error) {
	return findBy[domain.DeliveryArtifact](r.db.WithContext(ctx), deliveryColumns, field, value, limit)
}
