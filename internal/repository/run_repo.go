package repository

import (
	"context"

	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

var runColumns = map[string]string{
	"id":          "id",
	"subject_id":  "subject_id",
	"artifact_id": "artifact_id",
	"status":      "status",
	"trigger":     "trigger",
	"run_kind":    "run_kind",
}

// RunRepository persists pipeline run records. Runs are never deleted.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run to insert.
//
// Returns:
//   - error: insert error, if any.
func (r *RunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Save writes the current state of the run, steps included.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run to save, steps included.
//
// Returns:
//   - error: save error, if any.
func (r *RunRepository) Save(ctx context.Context, run *domain.PipelineRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//
// Returns:
//   - *domain.PipelineRun: the run.
//   - error: gorm.ErrRecordNotFound when no run has the ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBySubject returns the runs of one subject, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - subjectID: meeting ID.
//   - limit: maximum rows; 0 returns all.
//
// Returns:
//   - []domain.PipelineRun: runs of the meeting.
//   - error: query error, if any.
func (r *RunRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.PipelineRun, error) {
	return r.FindBy(ctx, "subject_id", subjectID, limit)
}

// FindBy lists runs whose field equals value, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - field: filter column; must be one of the indexed columns.
//   - value: value the column must equal.
//   - limit: maximum rows; 0 returns all.
//
// Returns:
//   - []domain.PipelineRun: matching runs.
//   - error: ErrUnknownField for other columns.
func (r *RunRepository) FindBy(ctx context.Context, field string, value interface{}, limit int) ([]domain.PipelineRun, error) {
	return findBy[domain.PipelineRun](r.db.WithContext(ctx), runColumns, field, value, limit)
}
