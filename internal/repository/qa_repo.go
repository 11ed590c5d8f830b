package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/recap/internal/domain"
	"gorm.io/gorm"
)

// ErrRunFinalized is returned when a QA run that already left RUNNING is written again.
var ErrRunFinalized = errors.New("qa run already finalized")

// QaRepository is the audit trail of QA harness runs.
type QaRepository struct {
	db *gorm.DB
}

// NewQaRepository creates a new QaRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *QaRepository: repository instance bound to db.
func NewQaRepository(db *gorm.DB) *QaRepository {
	return &QaRepository{db: db}
}

// CreateRun inserts a run in the RUNNING state.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run to insert, normally RUNNING.
//
// Returns:
//   - error: insert error, if any.
func (r *QaRepository) CreateRun(ctx context.Context, run *domain.QaRun) error {
	run.Status = domain.QaRunRunning
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRun retrieves a QA run by its id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - runID: QA run ID.
//
// Returns:
//   - *domain.QaRun: the run.
//   - error: gorm.ErrRecordNotFound when no run has the ID.
func (r *QaRepository) GetRun(ctx context.Context, runID string) (*domain.QaRun, error) {
	var run domain.QaRun
	if err := r.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns recent QA runs, newest first, optionally filtered by kind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: run kind filter; empty matches every kind.
//   - limit: maximum rows; 0 returns all.
//
// Returns:
//   - []domain.QaRun: matching runs.
//   - error: query error, if any.
func (r *QaRepository) ListRuns(ctx context.Context, kind domain.QaRunKind, limit int) ([]domain.QaRun, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if kind != "" {
		q = q.Where("run_kind = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []domain.QaRun
	err := q.Find(&runs).Error
	return runs, err
}

// ListChecks returns the checks of a run in execution order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - runID: QA run ID.
//
// Returns:
//   - []domain.QaCheck: checks of the run.
//   - error: query error, if any.
func (r *QaRepository) ListChecks(ctx context.Context, runID string) ([]domain.QaCheck, error) {
	var checks []domain.QaCheck
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&checks).Error
	return checks, err
}

// Finalize stores the checks and the terminal run state in one transaction.
// The run row is only updated while still RUNNING, so a second finalize fails
// with ErrRunFinalized and leaves the first result intact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run carrying its terminal status and counts.
//   - checks: checks to store with the run.
//
// Returns:
//   - error: ErrRunFinalized when the run was already finalized.
func (r *QaRepository) Finalize(ctx context.Context, run *domain.QaRun, checks []domain.QaCheck) error {
	if run.Status == domain.QaRunRunning {
		return fmt.Errorf("finalize %s: status must be terminal", run.RunID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.QaRun{}).
			Where("run_id = ? AND status = ?", run.RunID, domain.QaRunRunning).
			Updates(map[string]interface{}{
				"status":        run.Status,
				"passed_count":  run.PassedCount,
				"failed_count":  run.FailedCount,
				"skipped_count": run.SkippedCount,
				"notes":         run.Notes,
				"finished_at":   run.FinishedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&domain.QaRun{}).Where("run_id = ?", run.RunID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return fmt.Errorf("%w: %s", ErrRunFinalized, run.RunID)
		}
		if len(checks) == 0 {
			return nil
		}
		return tx.Create(&checks).Error
	})
}
