package repository

import (
	"context"

	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

// CheckpointRepository stores quality gate results.
type CheckpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new CheckpointRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *CheckpointRepository: repository instance bound to db.
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// CreateBatch inserts all checkpoints of one evaluation atomically.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - checkpoints: checkpoints to insert, IDs already set.
//
// Returns:
//   - error: insert error; nothing is written on failure.
func (r *CheckpointRepository) CreateBatch(ctx context.Context, checkpoints []*domain.Checkpoint) error {
	if len(checkpoints) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&checkpoints).Error
	})
}

// ListByArtifact returns all checkpoints recorded for an artifact, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: artifact the checkpoints were recorded for.
//
// Returns:
//   - []domain.Checkpoint: checkpoints of the artifact.
//   - error: query error, if any.
func (r *CheckpointRepository) ListByArtifact(ctx context.Context, artifactID string) ([]domain.Checkpoint, error) {
	var checkpoints []domain.Checkpoint
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("created_at DESC").
		Find(&checkpoints).Error
	return checkpoints, err
}

// GetByIDs returns the checkpoints with the given ids.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: checkpoint IDs to load.
//
// Returns:
//   - []domain.Checkpoint: checkpoints found; unknown IDs are skipped.
//   - error: query error, if any.
func (r *CheckpointRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Checkpoint, error) {
	if len(ids) == 0 {
		return []domain.Checkpoint{}, nil
	}
	var checkpoints []domain.Checkpoint
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&checkpoints).Error
	return checkpoints, err
}
