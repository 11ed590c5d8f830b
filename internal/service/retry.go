package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/repository"
)

// RetryPolicy bounds operator-triggered retries. Zero values disable the
// corresponding guard.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// subjectLocker is implemented by executors that expose their per-subject
// lock, such as Orchestrator.
type subjectLocker interface {
	LockSubject(ctx context.Context, subjectID string) (func(), error)
}

// RetryCoordinator re-runs the pipeline for a failed delivery artifact.
type RetryCoordinator struct {
	deliveries *repository.DeliveryRepository
	executor   Executor
	policy     RetryPolicy
	now        func() time.Time
}

// NewRetryCoordinator creates a new retry coordinator.
// Parameters:
//   - deliveries: artifact repository.
//   - executor: pipeline that regenerates the artifact.
//   - policy: attempt cap and backoff; zero values disable them.
//
// Returns:
//   - *RetryCoordinator: initialized coordinator.
func NewRetryCoordinator(deliveries *repository.DeliveryRepository, executor Executor, policy RetryPolicy) *RetryCoordinator {
	return &RetryCoordinator{
		deliveries: deliveries,
		executor:   executor,
		policy:     policy,
		now:        time.Now,
	}
}

// Retry re-executes the pipeline for artifactID as a new attempt.
// Delivered artifacts are rejected with ErrAlreadyDelivered, and a meeting
// with a run in progress with ErrSubjectBusy, before anything is written.
// A failed attempt marks the artifact failed and returns the
// pipeline error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: artifact to retry.
//
// Returns:
//   - *ExecuteResult: outcome of the new run.
//   - error: ErrAlreadyDelivered, ErrRetryExhausted, ErrRetryTooSoon, ErrSubjectBusy, or the pipeline error.
func (c *RetryCoordinator) Retry(ctx context.Context, artifactID string) (*ExecuteResult, error) {
	artifact, err := c.deliveries.GetByID(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
	}
	if err := c.check(artifact); err != nil {
		return nil, err
	}

	// Hold the subject lock across the bookkeeping and the run so that a
	// busy subject is rejected before the artifact is touched.
	locked := false
	if l, ok := c.executor.(subjectLocker); ok {
		release, err := l.LockSubject(ctx, artifact.SubjectRef)
		if err != nil {
			return nil, err
		}
		defer release()
		locked = true

		if artifact, err = c.deliveries.GetByID(ctx, artifactID); err != nil {
			return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
		}
		if err := c.check(artifact); err != nil {
			return nil, err
		}
	}

	now := c.now()
	artifact.Status = domain.DeliveryStatusRunning
	artifact.Attempts++
	artifact.LastAttemptAt = &now
	artifact.SetError(nil)
	artifact.Append(domain.HistoryEntry{At: now, Event: domain.EventRetry, Attempt: artifact.Attempts})
	if err := c.deliveries.Update(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	ctx = logger.WithTrace(ctx, logger.Trace{ArtifactID: artifact.ID})
	logger.CtxInfo(ctx, "Retrying delivery (attempt %d)", artifact.Attempts)

	res, execErr := c.executor.Execute(ctx, artifact.SubjectRef, ExecuteOptions{
		Trigger:       domain.TriggerRetry,
		Attempt:       artifact.Attempts,
		ArtifactID:    artifact.ID,
		SubjectLocked: locked,
	})
	if execErr == nil {
		return res, nil
	}

	// the pipeline may have written the artifact; continue from its state
	if fresh, err := c.deliveries.GetByID(ctx, artifact.ID); err == nil {
		artifact = fresh
	}
	runID := ""
	if res != nil {
		runID = res.RunID
	}
	artifact.Status = domain.DeliveryStatusFailed
	artifact.SetError(execErr)
	artifact.Append(domain.HistoryEntry{
		At:      c.now(),
		Event:   domain.EventRetryFailed,
		Attempt: artifact.Attempts,
		RunID:   runID,
		Detail:  execErr.Error(),
	})
	if err := c.deliveries.Update(ctx, artifact); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record retry failure")
	}
	return res, execErr
}

func (c *RetryCoordinator) check(artifact *domain.DeliveryArtifact) error {
	if artifact.Status.IsDelivered() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyDelivered, artifact.ID, artifact.Status)
	}
	if c.policy.MaxAttempts > 0 && artifact.Attempts >= c.policy.MaxAttempts {
		return fmt.Errorf("%w: %d of %d used", ErrRetryExhausted, artifact.Attempts, c.policy.MaxAttempts)
	}
	if c.policy.Backoff > 0 && artifact.LastAttemptAt != nil {
		if wait := artifact.LastAttemptAt.Add(c.policy.Backoff).Sub(c.now()); wait > 0 {
			return fmt.Errorf("%w: retry in %s", ErrRetryTooSoon, wait.Round(time.Second))
		}
	}
	return nil
}
